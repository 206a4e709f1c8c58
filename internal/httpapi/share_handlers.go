package httpapi

import (
	"net/http"
	"strings"

	"lekha.app/internal/access"
	"lekha.app/internal/auth"
)

type inviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type revokeRequest struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// handleShare serves grant listing and invitations on one ledger.
func (a *API) handleShare(w http.ResponseWriter, r *http.Request, id auth.Identity, accountID string) {
	switch r.Method {
	case http.MethodGet:
		grants, err := a.access.List(r.Context(), accountID, actorOf(id))
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": grants})
	case http.MethodPost:
		var req inviteRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		g, err := a.access.Invite(r.Context(), accountID, actorOf(id), req.Email, access.Role(req.Role))
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, g)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRevoke(w http.ResponseWriter, r *http.Request, id auth.Identity, accountID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req revokeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	kind := access.RefKind(strings.TrimSpace(req.Kind))
	if kind != access.ByUserID && kind != access.ByEmail {
		writeError(w, http.StatusBadRequest, "kind must be user_id or email")
		return
	}
	grantee := access.GranteeRef{Kind: kind, Value: req.Value}
	if err := a.access.Revoke(r.Context(), accountID, actorOf(id), grantee); err != nil {
		handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleActivity serves the persisted activity trail, visible under the
// same rule as the grant list.
func (a *API) handleActivity(w http.ResponseWriter, r *http.Request, id auth.Identity, accountID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if a.activity == nil {
		writeError(w, http.StatusNotFound, "activity trail not available")
		return
	}
	if _, err := a.resolveScope(r, id, accountID, access.RoleViewer); err != nil {
		handleDomainError(w, err)
		return
	}
	limit := parseLimit(r.URL.Query().Get("limit"), 50)
	items, err := a.activity.ListActivity(r.Context(), accountID, limit)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
