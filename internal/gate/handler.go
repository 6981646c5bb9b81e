// Package gate answers 503 for gated paths until the watched deployment
// reports that it has been deployed, then lets every request through.
package gate

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/ccastromar/availability-gate/internal/logx"
	"github.com/ccastromar/availability-gate/internal/metrics"
	"github.com/ccastromar/availability-gate/internal/mgmt"
	"github.com/ccastromar/availability-gate/internal/readiness"
)

type Config struct {
	// PathPattern is a regular expression that must match the whole request path.
	PathPattern string
	// DeploymentName is the deployment whose availability opens the gate.
	DeploymentName string
}

type Option func(*Handler)

// WithState shares an existing readiness state, e.g. with a health endpoint.
func WithState(s *readiness.State) Option {
	return func(h *Handler) {
		if s != nil {
			h.state = s
		}
	}
}

// WithRejectStatus overrides the status written while not ready.
func WithRejectStatus(code int) Option {
	return func(h *Handler) {
		if code >= 100 && code <= 999 {
			h.rejectStatus = code
		}
	}
}

type Handler struct {
	cfg          Config
	src          mgmt.Source
	next         http.Handler
	state        *readiness.State
	rejectStatus int

	once       sync.Once
	initErr    error
	matcher    *Matcher
	objectName string
}

// New returns a gate in front of next. Setup runs on the first request, or
// earlier through Init.
func New(cfg Config, src mgmt.Source, next http.Handler, opts ...Option) *Handler {
	h := &Handler{
		cfg:          cfg,
		src:          src,
		next:         next,
		state:        readiness.New(),
		rejectStatus: http.StatusServiceUnavailable,
	}
	if name := strings.TrimSpace(cfg.DeploymentName); name != "" {
		h.objectName = mgmt.DeploymentName(cfg.DeploymentName)
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Init runs the one-time setup and returns its configuration error, if any.
// Concurrent callers wait for the single run to finish. A failed setup is
// not retried.
func (h *Handler) Init() error {
	h.once.Do(func() {
		h.initErr = h.setup()
	})
	return h.initErr
}

func (h *Handler) setup() error {
	if strings.TrimSpace(h.cfg.PathPattern) == "" {
		return fmt.Errorf("%w: path pattern is empty", ErrConfiguration)
	}
	if strings.TrimSpace(h.cfg.DeploymentName) == "" {
		return fmt.Errorf("%w: deployment name is empty", ErrConfiguration)
	}

	m, err := CompileMatcher(h.cfg.PathPattern)
	if err != nil {
		return err
	}
	h.matcher = m

	l := NewListener(h.objectName, h.state)
	if !Subscribe(h.src, h.objectName, l) {
		logx.Warn("Gate", "initialization of availability detection failed, marking the application as ready")
		if h.state.MarkReady() {
			metrics.GateTransitions.Inc(map[string]string{"cause": "fallback"})
		}
	}
	logx.Info("Gate", "gating %s until %s is deployed", h.matcher, h.objectName)
	return nil
}

// Ready reports whether gated paths are let through.
func (h *Handler) Ready() bool {
	return h.state.Ready()
}

// State returns the readiness latch driven by this gate.
func (h *Handler) State() *readiness.State {
	return h.state
}

// ObjectName is the watched resource, or "" when no deployment is configured.
func (h *Handler) ObjectName() string {
	return h.objectName
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.Init(); err != nil {
		metrics.GateRequests.Inc(map[string]string{"outcome": "fault"})
		logx.Error("Gate", "rejecting %s %s: %v", r.Method, r.URL.Path, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if !h.matcher.Match(r.URL.Path) {
		metrics.GateRequests.Inc(map[string]string{"outcome": "bypassed"})
		h.next.ServeHTTP(w, r)
		return
	}

	if h.state.Ready() {
		metrics.GateRequests.Inc(map[string]string{"outcome": "passed"})
		h.next.ServeHTTP(w, r)
		return
	}

	metrics.GateRequests.Inc(map[string]string{"outcome": "rejected"})
	w.WriteHeader(h.rejectStatus)
}
