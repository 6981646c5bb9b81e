package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"

	"github.com/ccastromar/availability-gate/internal/logx"
	"github.com/ccastromar/availability-gate/internal/mgmt"
)

// adminAPI lets operators and deploy tooling drive the management namespace
// over HTTP.
type adminAPI struct {
	registry *mgmt.Registry
	apiKey   string
}

type emitRequest struct {
	Kind string `json:"kind"`
}

type eventResponse struct {
	ID        string `json:"id"`
	Sequence  uint64 `json:"sequence"`
	Source    string `json:"source"`
	Kind      string `json:"kind"`
	Timestamp string `json:"timestamp"`
}

func (a *adminAPI) register(r *mux.Router) {
	s := r.PathPrefix("/admin").Subrouter()
	s.Use(a.authMiddleware)
	s.HandleFunc("/deployments", a.handleList).Methods(http.MethodGet)
	s.HandleFunc("/deployments/{name}", a.handleRegister).Methods(http.MethodPut)
	s.HandleFunc("/deployments/{name}", a.handleUnregister).Methods(http.MethodDelete)
	s.HandleFunc("/deployments/{name}/events", a.handleEmit).Methods(http.MethodPost)
}

// checkAuth enforces the admin key when configured
func (a *adminAPI) checkAuth(r *http.Request) bool {
	if a.apiKey == "" {
		return true
	}
	if k := r.Header.Get("X-API-Key"); k != "" && k == a.apiKey {
		return true
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		token := strings.TrimSpace(auth[7:])
		return token == a.apiKey
	}
	return false
}

func (a *adminAPI) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.checkAuth(r) {
			w.Header().Set("WWW-Authenticate", "Bearer, X-API-Key")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *adminAPI) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"deployments": a.registry.Resources()})
}

func (a *adminAPI) handleRegister(w http.ResponseWriter, r *http.Request) {
	name, ok := deploymentParam(w, r)
	if !ok {
		return
	}
	switch err := a.registry.RegisterResource(name); {
	case err == nil:
		logx.Info("Mgmt", "registered %s via admin API", name)
		writeJSON(w, http.StatusCreated, map[string]string{"name": name})
	case errors.Is(err, mgmt.ErrAlreadyExists):
		http.Error(w, "already registered", http.StatusConflict)
	case errors.Is(err, mgmt.ErrMalformedName):
		http.Error(w, "malformed deployment name", http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (a *adminAPI) handleUnregister(w http.ResponseWriter, r *http.Request) {
	name, ok := deploymentParam(w, r)
	if !ok {
		return
	}
	switch err := a.registry.UnregisterResource(name); {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, mgmt.ErrInstanceNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, mgmt.ErrMalformedName):
		http.Error(w, "malformed deployment name", http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (a *adminAPI) handleEmit(w http.ResponseWriter, r *http.Request) {
	req := emitRequest{Kind: mgmt.KindDeploymentDeployed}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
	}
	if strings.TrimSpace(req.Kind) == "" {
		http.Error(w, "kind is required", http.StatusBadRequest)
		return
	}

	name, ok := deploymentParam(w, r)
	if !ok {
		return
	}
	ev, err := a.registry.Emit(name, req.Kind)
	switch {
	case err == nil:
	case errors.Is(err, mgmt.ErrInstanceNotFound):
		http.Error(w, "not found", http.StatusNotFound)
		return
	case errors.Is(err, mgmt.ErrMalformedName):
		http.Error(w, "malformed deployment name", http.StatusBadRequest)
		return
	case errors.Is(err, mgmt.ErrClosed):
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	logx.Info("Mgmt", "admin API emitted %s for %s", ev.Kind, ev.Source)
	writeJSON(w, http.StatusAccepted, eventResponse{
		ID:        ev.ID,
		Sequence:  ev.Sequence,
		Source:    ev.Source,
		Kind:      ev.Kind,
		Timestamp: ev.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

// deploymentParam decodes the {name} segment, which may carry escaped '/'.
func deploymentParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw, err := url.PathUnescape(mux.Vars(r)["name"])
	if err != nil {
		http.Error(w, "malformed deployment name", http.StatusBadRequest)
		return "", false
	}
	return mgmt.DeploymentName(raw), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
