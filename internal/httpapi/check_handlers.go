package httpapi

import (
	"net/http"
	"strings"

	"docbase.org/internal/identity"
	"docbase.org/internal/rbac"
)

type checkRequest struct {
	UserID    string `json:"user_id"`
	Entity    string `json:"entity"`
	Operation string `json:"operation"`
}

type checkPayloadRequest struct {
	UserID    string         `json:"user_id"`
	Entity    string         `json:"entity"`
	Operation string         `json:"operation"`
	Payload   map[string]any `json:"payload"`
}

type checkPayloadResponse struct {
	Decision     rbac.Decision  `json:"decision"`
	Payload      map[string]any `json:"payload,omitempty"`
	UniqueProbes []string       `json:"unique_probes,omitempty"`
}

// handleCheck answers "may user U do operation O on entity E". Checking on
// behalf of another user requires read access on the permissions catalog;
// checking yourself is open to any authenticated caller.
func (a *API) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req checkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	userID, ok := a.resolveCheckSubject(w, r, req.UserID)
	if !ok {
		return
	}
	op, err := rbac.ParseOperation(req.Operation)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	decision, err := a.kernel.Authorize(r.Context(), userID, req.Entity, op)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// handleCheckPayload combines the authorization decision with schema
// validation. Authorization runs first; a denied caller gets no detail
// about the entity's shape.
func (a *API) handleCheckPayload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req checkPayloadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	userID, ok := a.resolveCheckSubject(w, r, req.UserID)
	if !ok {
		return
	}
	op, err := rbac.ParseOperation(req.Operation)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	result, err := a.kernel.AuthorizeAndValidate(r.Context(), userID, req.Entity, op, req.Payload)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkPayloadResponse{
		Decision:     result.Decision,
		Payload:      result.Payload,
		UniqueProbes: result.UniqueProbes,
	})
}

func (a *API) resolveCheckSubject(w http.ResponseWriter, r *http.Request, requested string) (string, bool) {
	callerID, ok := identity.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return "", false
	}
	requested = strings.TrimSpace(requested)
	if requested == "" || requested == callerID {
		return callerID, true
	}
	if !a.ensureAccess(w, r, catalogPermissions, "read") {
		return "", false
	}
	return requested, true
}
