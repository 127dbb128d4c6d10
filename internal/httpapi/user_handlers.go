package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"docbase.org/internal/audit"
	"docbase.org/internal/identity"
)

type createUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateUserRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensureAccess(w, r, catalogUsers, "read") {
			return
		}
		users, err := a.identity.ListUsers(r.Context())
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})
	case http.MethodPost:
		if !a.ensureAccess(w, r, catalogUsers, "create") {
			return
		}
		var req createUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.identity.CreateUser(r.Context(), req.Name, req.Email, req.Password)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "identity.user.created", map[string]any{
			"target_user_id": user.ID,
			"email":          user.Email,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", user.ID))
		writeJSON(w, http.StatusCreated, user)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	userID := parts[0]

	switch {
	case len(parts) == 1:
		a.handleUser(w, r, userID)
	case len(parts) == 2 && parts[1] == "roles":
		a.handleUserRoles(w, r, userID)
	case len(parts) == 3 && parts[1] == "roles":
		a.handleUserRole(w, r, userID, parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUser(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensureAccess(w, r, catalogUsers, "read") {
			return
		}
		user, err := a.identity.GetUser(r.Context(), userID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	case http.MethodPatch:
		if !a.ensureAccess(w, r, catalogUsers, "update") {
			return
		}
		var req updateUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.identity.UpdateUser(r.Context(), userID, identity.UserUpdate{
			Name:     req.Name,
			Email:    req.Email,
			Password: req.Password,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "identity.user.updated", map[string]any{
			"target_user_id": user.ID,
		})
		writeJSON(w, http.StatusOK, user)
	case http.MethodDelete:
		if !a.ensureAccess(w, r, catalogUsers, "delete") {
			return
		}
		if err := a.identity.DeleteUser(r.Context(), userID); err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "identity.user.deleted", map[string]any{
			"target_user_id": userID,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleUserRoles(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensureAccess(w, r, catalogUsers, "read") {
			return
		}
		memberships, err := a.rbac.MembershipsForUser(r.Context(), userID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"memberships": memberships})
	case http.MethodPost:
		if !a.ensureAccess(w, r, catalogPermissions, "update") {
			return
		}
		var req assignRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		membership, err := a.rbac.AssignRole(r.Context(), userID, req.RoleID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.assigned", map[string]any{
			"target_user_id": userID,
			"role_id":        membership.RoleID,
		})
		writeJSON(w, http.StatusCreated, membership)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleUserRole(w http.ResponseWriter, r *http.Request, userID, roleID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if !a.ensureAccess(w, r, catalogPermissions, "update") {
		return
	}
	if err := a.rbac.RemoveRole(r.Context(), userID, roleID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.role.unassigned", map[string]any{
		"target_user_id": userID,
		"role_id":        roleID,
	})
	w.WriteHeader(http.StatusNoContent)
}
