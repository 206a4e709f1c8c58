package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"lekha.app/internal/access"
	"lekha.app/internal/auth"
	"lekha.app/internal/events"
	"lekha.app/internal/ledger"
	"lekha.app/internal/money"
	"lekha.app/internal/obs"
)

type createAccountRequest struct {
	Name            string `json:"name"`
	Type            string `json:"type"`
	InitialBalance  string `json:"initial_balance"`
	CreditLimit     string `json:"credit_limit"`
	LinkedAccountID string `json:"linked_account_id"`
}

func (a *API) handleAccountsCollection(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	switch r.Method {
	case http.MethodPost:
		a.createAccount(w, r, id.UserID)
	case http.MethodGet:
		accounts, err := a.ledger.ListAccounts(r.Context(), id.UserID)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": accounts})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createAccount(w http.ResponseWriter, r *http.Request, userID string) {
	var req createAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	initial, err := parseOptionalAmount(req.InitialBalance)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid initial_balance")
		return
	}
	limit, err := parseOptionalAmount(req.CreditLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid credit_limit")
		return
	}
	acc, err := a.ledger.CreateAccount(r.Context(), ledger.Account{
		OwnerID:         userID,
		Name:            req.Name,
		Type:            ledger.AccountType(req.Type),
		InitialBalance:  initial,
		CreditLimit:     limit,
		LinkedAccountID: strings.TrimSpace(req.LinkedAccountID),
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}
	w.Header().Set("Location", "/v1/accounts/"+acc.ID)
	writeJSON(w, http.StatusCreated, acc)
}

// handleAccountResource dispatches /v1/accounts/{id} and its subpaths.
func (a *API) handleAccountResource(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/accounts/")
	accountID, sub, _ := strings.Cut(path, "/")
	if accountID == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch sub {
	case "":
		a.accountByID(w, r, id, accountID)
	case "cash-check":
		a.handleCashCheck(w, r, id, accountID)
	case "recompute":
		a.handleRecompute(w, r, id, accountID)
	case "repair":
		a.handleRepair(w, r, id, accountID)
	case "share":
		a.handleShare(w, r, id, accountID)
	case "share/revoke":
		a.handleRevoke(w, r, id, accountID)
	case "activity":
		a.handleActivity(w, r, id, accountID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (a *API) accountByID(w http.ResponseWriter, r *http.Request, id auth.Identity, accountID string) {
	switch r.Method {
	case http.MethodGet:
		ownerID, err := a.resolveScope(r, id, accountID, access.RoleViewer)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		acc, err := a.ledger.GetAccount(r.Context(), ownerID, accountID)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, acc)
	case http.MethodDelete:
		// Deleting an account stays owner-only, and a shared ledger must
		// be un-shared first.
		ownerID, err := a.owners.AccountOwner(r.Context(), accountID)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		if ownerID != id.UserID {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		grants, err := a.access.List(r.Context(), accountID, actorOf(id))
		if err != nil {
			handleDomainError(w, err)
			return
		}
		if len(grants) > 0 {
			writeError(w, http.StatusConflict, "revoke all grants before deleting the account")
			return
		}
		if err := a.ledger.DeleteAccount(r.Context(), id.UserID, accountID); err != nil {
			handleDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodDelete)
	}
}

// --- reconciliation ---

type cashCheckRequest struct {
	Day           string `json:"day"`
	ActualBalance string `json:"actual_balance"`
	Reason        string `json:"reason"`
	Note          string `json:"note"`
	AutoAdjust    bool   `json:"auto_adjust"`
}

func (a *API) handleCashCheck(w http.ResponseWriter, r *http.Request, id auth.Identity, accountID string) {
	switch r.Method {
	case http.MethodGet:
		ownerID, err := a.resolveScope(r, id, accountID, access.RoleViewer)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		day, err := parseDay(r.URL.Query().Get("day"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid day, want YYYY-MM-DD")
			return
		}
		snap, err := a.ledger.CashCheckStatus(r.Context(), ownerID, accountID, day)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	case http.MethodPost:
		ownerID, err := a.resolveScope(r, id, accountID, access.RoleEditor)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		var req cashCheckRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		day, err := parseDay(req.Day)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid day, want YYYY-MM-DD")
			return
		}
		actual, err := money.Parse(req.ActualBalance)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid actual_balance")
			return
		}
		check, err := a.ledger.SubmitCashCheck(r.Context(), ledger.CheckRequest{
			OwnerID:       ownerID,
			AccountID:     accountID,
			Day:           day,
			ActualBalance: actual,
			Reason:        req.Reason,
			Note:          req.Note,
			AutoAdjust:    req.AutoAdjust,
		})
		if err != nil {
			handleDomainError(w, err)
			return
		}
		obs.CountCashCheck(string(check.Status))
		a.publish(r.Context(), events.Event{
			Type:      events.TypeCashCheckSubmitted,
			OwnerID:   ownerID,
			AccountID: accountID,
			Amount:    int64(check.Difference),
			Status:    string(check.Status),
		})
		writeJSON(w, http.StatusCreated, check)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// --- consistency auditor ---

func (a *API) handleRecompute(w http.ResponseWriter, r *http.Request, id auth.Identity, accountID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	ownerID, err := a.resolveScope(r, id, accountID, access.RoleViewer)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	truth, err := a.ledger.Recompute(r.Context(), ownerID, accountID)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account_id": accountID,
		"computed":   truth,
	})
}

func (a *API) handleRepair(w http.ResponseWriter, r *http.Request, id auth.Identity, accountID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	ownerID, err := a.resolveScope(r, id, accountID, access.RoleEditor)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	res, err := a.ledger.RecomputeAndRepair(r.Context(), ownerID, accountID)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	outcome := "clean"
	if res.Drift != 0 {
		outcome = "repaired"
	}
	obs.CountRepair(outcome)
	writeJSON(w, http.StatusOK, res)
}

// --- helpers ---

func parseOptionalAmount(s string) (money.Amount, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	return money.Parse(s)
}

func parseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Now().UTC(), nil
	}
	return time.Parse("2006-01-02", s)
}

func parseLimit(raw string, def int) int {
	if strings.TrimSpace(raw) == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
