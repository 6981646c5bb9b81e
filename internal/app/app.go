package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/ccastromar/availability-gate/internal/config"
	"github.com/ccastromar/availability-gate/internal/gate"
	"github.com/ccastromar/availability-gate/internal/health"
	"github.com/ccastromar/availability-gate/internal/kafkabridge"
	"github.com/ccastromar/availability-gate/internal/logx"
	"github.com/ccastromar/availability-gate/internal/metrics"
	"github.com/ccastromar/availability-gate/internal/mgmt"
	"github.com/ccastromar/availability-gate/internal/readiness"
)

type runner interface {
	Run(ctx context.Context) error
}

type App struct {
	env      *config.EnvVars
	registry *mgmt.Registry
	state    *readiness.State
	gate     *gate.Handler
	consumer runner
	http     *HTTPServer
}

func New(env *config.EnvVars) (*App, error) {
	if env == nil {
		return nil, errors.New("config must not be nil")
	}
	registry := mgmt.NewRegistry()
	for _, d := range append([]string{env.GateDeploymentName}, env.Deployments...) {
		err := registry.RegisterResource(mgmt.DeploymentName(d))
		if err != nil && !errors.Is(err, mgmt.ErrAlreadyExists) {
			return nil, fmt.Errorf("registering deployment %q: %w", d, err)
		}
	}

	downstream, err := newDownstream(env.UpstreamURL)
	if err != nil {
		return nil, err
	}

	state := readiness.New()
	inner := mux.NewRouter()
	inner.HandleFunc("/health/live", health.LiveHandler).Methods(http.MethodGet)
	inner.HandleFunc("/health/ready", health.ReadyHandler(state)).Methods(http.MethodGet)
	inner.PathPrefix("/").Handler(downstream)

	g := gate.New(
		gate.Config{PathPattern: env.GatePathPattern, DeploymentName: env.GateDeploymentName},
		registry,
		inner,
		gate.WithState(state),
		gate.WithRejectStatus(env.GateRejectStatus),
	)
	// Subscribe before any event source runs so an early deployed event is
	// not emitted to zero listeners.
	if err := g.Init(); err != nil {
		registry.Close()
		return nil, err
	}

	root := mux.NewRouter().UseEncodedPath()
	root.HandleFunc("/metrics", metrics.ServeHTTP).Methods(http.MethodGet)
	if env.AdminEnabled {
		(&adminAPI{registry: registry, apiKey: env.AdminAPIKey}).register(root)
	}
	root.PathPrefix("/").Handler(g)

	a := &App{
		env:      env,
		registry: registry,
		state:    state,
		gate:     g,
		http: NewHTTPServer(fmt.Sprintf(":%d", env.Port), root,
			env.ReadTimeout, env.WriteTimeout, env.ShutdownTimeout),
	}

	if len(env.KafkaBrokers) > 0 {
		c, err := kafkabridge.NewConsumer(kafkabridge.Config{
			Brokers: env.KafkaBrokers,
			Topic:   env.KafkaTopic,
			GroupID: env.KafkaGroupID,
		}, registry)
		if err != nil {
			return nil, err
		}
		a.consumer = c
	}
	return a, nil
}

func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.http.Start(gctx)
	})
	if a.consumer != nil {
		g.Go(func() error {
			return a.consumer.Run(gctx)
		})
	}
	if a.env != nil && a.env.AutoDeployAfter > 0 {
		g.Go(func() error {
			return a.autoDeploy(gctx, a.env.AutoDeployAfter)
		})
	}

	logx.Info("App", "availability gate started")

	err := g.Wait()
	if a.registry != nil {
		a.registry.Close()
	}
	return err
}

// autoDeploy reports the gated deployment as deployed once d has elapsed,
// for setups without an external management source.
func (a *App) autoDeploy(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil
	case <-t.C:
	}
	name := mgmt.DeploymentName(a.env.GateDeploymentName)
	if _, err := a.registry.Emit(name, mgmt.KindDeploymentDeployed); err != nil {
		logx.Warn("App", "auto deploy of %s failed: %v", name, err)
		return nil
	}
	logx.Info("App", "auto deploy reported %s as deployed after %s", name, d)
	return nil
}

func newDownstream(upstream string) (http.Handler, error) {
	if upstream == "" {
		return http.HandlerFunc(statusHandler), nil
	}
	u, err := url.Parse(upstream)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL %q", upstream)
	}
	return httputil.NewSingleHostReverseProxy(u), nil
}

func statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "path": r.URL.Path})
}
