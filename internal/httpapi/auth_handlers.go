package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"docbase.org/internal/audit"
	"docbase.org/internal/identity"
)

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Roles     []string  `json:"roles"`
	ExpiresAt time.Time `json:"expires_at"`
}

type passwordResetRequest struct {
	UserID string `json:"user_id"`
}

type passwordResetConfirmRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

const tokenTTL = 15 * time.Minute

func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, err := a.identity.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	roles, err := a.identity.RolesForUser(r.Context(), user.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	token, err := identity.GenerateToken(user.ID, roles, tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	expiresAt := time.Now().UTC().Add(tokenTTL)
	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"user_id":    user.ID,
		"roles":      roles,
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		UserID:    user.ID,
		Roles:     roles,
		ExpiresAt: expiresAt,
	})
}

// handlePasswordReset issues a fresh single-use reset token. Issuing a new
// token invalidates any earlier one for the same user immediately. The
// endpoint is public, so the response never reveals whether the user exists
// and never carries the token itself; delivery happens out of band from the
// audit stream.
func (a *API) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req passwordResetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		writeError(w, r, http.StatusBadRequest, "user_id is required")
		return
	}

	token, err := a.identity.IssueResetToken(r.Context(), req.UserID)
	switch {
	case err == nil:
		_ = audit.LogEvent(r.Context(), "auth.password_reset.issued", map[string]any{
			"user_id": req.UserID,
			"token":   token,
		})
	case errors.Is(err, identity.ErrNotFound):
		// Fall through to the uniform response.
	default:
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
}

func (a *API) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req passwordResetConfirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.identity.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		handleServiceError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.password_reset.confirmed", nil)
	w.WriteHeader(http.StatusNoContent)
}
