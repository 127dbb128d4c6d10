package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"docbase.org/internal/audit"
	"docbase.org/internal/rbac"
)

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type updateRoleRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type upsertGrantRequest struct {
	EntityID  string `json:"entity_id"`
	CanCreate bool   `json:"can_create"`
	CanRead   bool   `json:"can_read"`
	CanUpdate bool   `json:"can_update"`
	CanDelete bool   `json:"can_delete"`
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensureAccess(w, r, catalogRoles, "read") {
			return
		}
		roles, err := a.rbac.ListRoles(r.Context())
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
	case http.MethodPost:
		if !a.ensureAccess(w, r, catalogRoles, "create") {
			return
		}
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.rbac.CreateRole(r.Context(), req.Name, req.Description)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.created", map[string]any{
			"role_id": role.ID,
			"name":    role.Name,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	roleID := parts[0]

	switch {
	case len(parts) == 1:
		a.handleRole(w, r, roleID)
	case len(parts) == 2 && parts[1] == "grants":
		a.handleRoleGrants(w, r, roleID)
	case len(parts) == 3 && parts[1] == "grants":
		a.handleRoleGrant(w, r, roleID, parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleRole(w http.ResponseWriter, r *http.Request, roleID string) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensureAccess(w, r, catalogRoles, "read") {
			return
		}
		role, err := a.rbac.GetRole(r.Context(), roleID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
	case http.MethodPatch:
		if !a.ensureAccess(w, r, catalogRoles, "update") {
			return
		}
		var req updateRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.rbac.UpdateRole(r.Context(), roleID, rbac.RoleUpdate{
			Name:        req.Name,
			Description: req.Description,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.updated", map[string]any{
			"role_id": role.ID,
		})
		writeJSON(w, http.StatusOK, role)
	case http.MethodDelete:
		if !a.ensureAccess(w, r, catalogRoles, "delete") {
			return
		}
		if err := a.rbac.DeleteRole(r.Context(), roleID); err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.deleted", map[string]any{
			"role_id": roleID,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleRoleGrants(w http.ResponseWriter, r *http.Request, roleID string) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensureAccess(w, r, catalogPermissions, "read") {
			return
		}
		grants, err := a.rbac.GrantsForRole(r.Context(), roleID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"grants": grants})
	case http.MethodPut:
		if !a.ensureAccess(w, r, catalogPermissions, "update") {
			return
		}
		var req upsertGrantRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		grant, err := a.rbac.UpsertGrant(r.Context(), rbac.Grant{
			RoleID:   roleID,
			EntityID: req.EntityID,
			Create:   req.CanCreate,
			Read:     req.CanRead,
			Update:   req.CanUpdate,
			Delete:   req.CanDelete,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.grant.upserted", map[string]any{
			"role_id":    grant.RoleID,
			"entity_id":  grant.EntityID,
			"can_create": grant.Create,
			"can_read":   grant.Read,
			"can_update": grant.Update,
			"can_delete": grant.Delete,
		})
		writeJSON(w, http.StatusOK, grant)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) handleRoleGrant(w http.ResponseWriter, r *http.Request, roleID, entityID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if !a.ensureAccess(w, r, catalogPermissions, "update") {
		return
	}
	if err := a.rbac.RevokeGrant(r.Context(), roleID, entityID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.grant.revoked", map[string]any{
		"role_id":   roleID,
		"entity_id": entityID,
	})
	w.WriteHeader(http.StatusNoContent)
}
