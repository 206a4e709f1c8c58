package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"lekha.app/internal/access"
	"lekha.app/internal/auth"
	"lekha.app/internal/ledger"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/register",
	"/v1/auth/login",
	"/healthz",
	"/readyz",
	"/metrics",
	"/v1/info",
	"/",
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		identity, err := a.auth.AuthenticateToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			writeError(w, http.StatusInternalServerError, "authentication error")
			return
		}
		ctx := auth.ContextWithIdentity(r.Context(), identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func identity(r *http.Request) (auth.Identity, bool) {
	return auth.IdentityFromContext(r.Context())
}

func actorOf(id auth.Identity) access.Actor {
	return access.Actor{ID: id.UserID, Email: id.Email}
}

// resolveScope decides whose ledger data the call operates on. With no
// account the caller acts on their own records. With an account the
// owner passes straight through; anyone else must hold a grant at the
// required role, and the operation then runs in the owner's scope.
//
// A grant covers exactly one ledger. Handlers that load or write
// entries must also pass the entry through requireEntryAccounts so a
// grant on one account cannot reach the owner's other accounts.
func (a *API) resolveScope(r *http.Request, id auth.Identity, accountID string, required access.Role) (string, error) {
	if accountID == "" {
		return id.UserID, nil
	}
	ownerID, err := a.owners.AccountOwner(r.Context(), accountID)
	if err != nil {
		return "", err
	}
	if ownerID == id.UserID {
		return ownerID, nil
	}
	if err := a.access.Require(r.Context(), accountID, actorOf(id), required); err != nil {
		return "", err
	}
	return ownerID, nil
}

// requireEntryAccounts verifies the actor holds the required role on
// every account an entry touches. Owners pass through. Entries not
// attached to any account are reachable only by their owner: grants
// are keyed by account, so there is nothing a grant could cover.
// Strangers to a referenced account get not-found, never forbidden.
func (a *API) requireEntryAccounts(r *http.Request, id auth.Identity, e ledger.Entry, required access.Role) error {
	if e.OwnerID == id.UserID {
		return nil
	}
	if e.AccountID == "" {
		return access.ErrNotFound
	}
	for _, accID := range []string{e.AccountID, e.LinkedAccountID} {
		if accID == "" {
			continue
		}
		if err := a.access.Require(r.Context(), accID, actorOf(id), required); err != nil {
			return err
		}
	}
	return nil
}
