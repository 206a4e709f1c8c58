package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"lekha.app/internal/access"
	"lekha.app/internal/auth"
	"lekha.app/internal/events"
	"lekha.app/internal/ledger"
	"lekha.app/internal/money"
	"lekha.app/internal/obs"
)

type entryRequest struct {
	Direction       string `json:"direction"`
	Amount          string `json:"amount"`
	Category        string `json:"category"`
	Description     string `json:"description"`
	Date            string `json:"date"`
	AccountID       string `json:"account_id"`
	LinkedAccountID string `json:"linked_account_id"`
}

func (req entryRequest) toEntry(ownerID string) (ledger.Entry, error) {
	amount, err := money.Parse(req.Amount)
	if err != nil {
		return ledger.Entry{}, err
	}
	date, err := parseEntryDate(req.Date)
	if err != nil {
		return ledger.Entry{}, err
	}
	return ledger.Entry{
		OwnerID:         ownerID,
		Direction:       ledger.Direction(req.Direction),
		Amount:          amount,
		Category:        strings.TrimSpace(req.Category),
		Description:     strings.TrimSpace(req.Description),
		Date:            date,
		AccountID:       strings.TrimSpace(req.AccountID),
		LinkedAccountID: strings.TrimSpace(req.LinkedAccountID),
	}, nil
}

func parseEntryDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func (a *API) handleEntriesCollection(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	switch r.Method {
	case http.MethodPost:
		a.createEntry(w, r, id)
	case http.MethodGet:
		accountID := strings.TrimSpace(r.URL.Query().Get("account_id"))
		ownerID, err := a.resolveScope(r, id, accountID, access.RoleViewer)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		entries, err := a.ledger.ListEntries(r.Context(), ownerID, accountID)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": entries})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createEntry(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	var req entryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ownerID, err := a.resolveScope(r, id, strings.TrimSpace(req.AccountID), access.RoleEditor)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	e, err := req.toEntry(ownerID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// A collaborator may only write into accounts they were granted;
	// the linked side counts too, it moves that balance as well.
	if err := a.requireEntryAccounts(r, id, e, access.RoleEditor); err != nil {
		handleDomainError(w, err)
		return
	}
	created, err := a.ledger.CreateEntry(r.Context(), e)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	obs.CountEntryOp("create")
	a.publish(r.Context(), events.Event{
		Type:      events.TypeEntryCreated,
		OwnerID:   ownerID,
		AccountID: created.AccountID,
		EntryID:   created.ID,
		Amount:    int64(created.BalanceImpact),
	})
	w.Header().Set("Location", "/v1/entries/"+created.ID)
	writeJSON(w, http.StatusCreated, created)
}

// handleEntryResource dispatches /v1/entries/{id}. Collaborators acting
// on a shared ledger pass ?account_id= so the call can be resolved into
// the owner's scope.
func (a *API) handleEntryResource(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	entryID := strings.TrimPrefix(r.URL.Path, "/v1/entries/")
	if entryID == "" || strings.Contains(entryID, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	accountID := strings.TrimSpace(r.URL.Query().Get("account_id"))

	switch r.Method {
	case http.MethodGet:
		ownerID, err := a.resolveScope(r, id, accountID, access.RoleViewer)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		e, err := a.ledger.GetEntry(r.Context(), ownerID, entryID)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		if err := a.requireEntryAccounts(r, id, e, access.RoleViewer); err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	case http.MethodPut:
		var req entryRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		scope := accountID
		if scope == "" {
			scope = strings.TrimSpace(req.AccountID)
		}
		ownerID, err := a.resolveScope(r, id, scope, access.RoleEditor)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		// Both the entry as stored and the entry as rewritten must stay
		// inside the collaborator's grants: the update reverts balances
		// on the old accounts and applies them on the new ones.
		current, err := a.ledger.GetEntry(r.Context(), ownerID, entryID)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		if err := a.requireEntryAccounts(r, id, current, access.RoleEditor); err != nil {
			handleDomainError(w, err)
			return
		}
		e, err := req.toEntry(ownerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		e.ID = entryID
		if err := a.requireEntryAccounts(r, id, e, access.RoleEditor); err != nil {
			handleDomainError(w, err)
			return
		}
		updated, err := a.ledger.UpdateEntry(r.Context(), e)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		obs.CountEntryOp("update")
		a.publish(r.Context(), events.Event{
			Type:      events.TypeEntryUpdated,
			OwnerID:   ownerID,
			AccountID: updated.AccountID,
			EntryID:   updated.ID,
			Amount:    int64(updated.BalanceImpact),
		})
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		ownerID, err := a.resolveScope(r, id, accountID, access.RoleEditor)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		e, err := a.ledger.GetEntry(r.Context(), ownerID, entryID)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		if err := a.requireEntryAccounts(r, id, e, access.RoleEditor); err != nil {
			handleDomainError(w, err)
			return
		}
		if err := a.ledger.DeleteEntry(r.Context(), ownerID, entryID); err != nil {
			handleDomainError(w, err)
			return
		}
		obs.CountEntryOp("delete")
		a.publish(r.Context(), events.Event{
			Type:    events.TypeEntryDeleted,
			OwnerID: ownerID,
			EntryID: entryID,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

type bulkDeleteRequest struct {
	AccountID string   `json:"account_id"`
	EntryIDs  []string `json:"entry_ids"`
}

func (a *API) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req bulkDeleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.EntryIDs) == 0 {
		writeError(w, http.StatusBadRequest, "entry_ids is required")
		return
	}
	ownerID, err := a.resolveScope(r, id, strings.TrimSpace(req.AccountID), access.RoleEditor)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	// In a shared scope every targeted entry has to sit on a granted
	// account. Unknown ids stay skippable, as in the owner path.
	if ownerID != id.UserID {
		for _, eid := range req.EntryIDs {
			e, err := a.ledger.GetEntry(r.Context(), ownerID, eid)
			if errors.Is(err, ledger.ErrNotFound) {
				continue
			}
			if err != nil {
				handleDomainError(w, err)
				return
			}
			if err := a.requireEntryAccounts(r, id, e, access.RoleEditor); err != nil {
				handleDomainError(w, err)
				return
			}
		}
	}
	n, err := a.ledger.BulkDeleteEntries(r.Context(), ownerID, req.EntryIDs)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	obs.CountEntryOp("bulk_delete")
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}
