package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"lekha.app/internal/access"
	"lekha.app/internal/audit"
	"lekha.app/internal/auth"
	"lekha.app/internal/events"
	"lekha.app/internal/ledger"
	"lekha.app/internal/obs"
)

// ReadyProbe reports whether the backing store is reachable.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// ActivityLister exposes the persisted activity trail, when the backing
// store keeps one.
type ActivityLister interface {
	ListActivity(ctx context.Context, ledgerID string, limit int) ([]audit.Event, error)
}

// API is the HTTP layer over the ledger engine.
type API struct {
	mux       *http.ServeMux
	ledger    ledger.Service
	owners    access.OwnerResolver
	access    *access.Service
	auth      *auth.Service
	publisher events.Publisher
	activity  ActivityLister
	probe     ReadyProbe
	version   string
}

// Options carries the collaborators New wires up. Publisher and
// Activity may be nil.
type Options struct {
	Ledger    ledger.Service
	Owners    access.OwnerResolver
	Access    *access.Service
	Auth      *auth.Service
	Publisher events.Publisher
	Activity  ActivityLister
	Probe     ReadyProbe
	Version   string
}

func New(opts Options) (*API, error) {
	if opts.Ledger == nil || opts.Owners == nil || opts.Access == nil || opts.Auth == nil {
		return nil, errors.New("httpapi: ledger, owners, access and auth are required")
	}
	a := &API{
		mux:       http.NewServeMux(),
		ledger:    opts.Ledger,
		owners:    opts.Owners,
		access:    opts.Access,
		auth:      opts.Auth,
		publisher: opts.Publisher,
		activity:  opts.Activity,
		probe:     opts.Probe,
		version:   opts.Version,
	}
	if a.publisher == nil {
		a.publisher = events.Noop{}
	}

	a.mux.HandleFunc("/healthz", a.healthz)
	a.mux.HandleFunc("/readyz", a.ready)
	a.mux.HandleFunc("/v1/info", a.info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)

	a.mux.HandleFunc("/v1/accounts", a.handleAccountsCollection)
	a.mux.HandleFunc("/v1/accounts/", a.handleAccountResource)

	a.mux.HandleFunc("/v1/entries", a.handleEntriesCollection)
	a.mux.HandleFunc("/v1/entries/bulk-delete", a.handleBulkDelete)
	a.mux.HandleFunc("/v1/entries/", a.handleEntryResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	return a, nil
}

// Handler wraps the mux with authentication and metrics.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.withAuth(a.mux))
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "lekha-api",
		"version": a.version,
	})
}

func (a *API) ready(w http.ResponseWriter, r *http.Request) {
	if err := a.probe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "lekha-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleDomainError maps engine and gate sentinels to HTTP statuses.
// A stranger probing someone else's ledger sees 404, not 403: grants
// below the required rank are the only case that discloses existence.
func handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidInput),
		errors.Is(err, access.ErrInvalidInput),
		errors.Is(err, auth.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, ledger.ErrForbidden), errors.Is(err, access.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, access.ErrNotFound),
		errors.Is(err, auth.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, ledger.ErrConflict), errors.Is(err, ledger.ErrAccountInUse),
		errors.Is(err, access.ErrConflict), errors.Is(err, auth.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (a *API) publish(ctx context.Context, ev events.Event) {
	if err := a.publisher.Publish(ctx, ev); err != nil {
		obs.Logger().Printf(`{"type":"event_publish_error","event":%q,"error":%q}`, ev.Type, err.Error())
	}
}
