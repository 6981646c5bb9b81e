package app

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/handlers"

	"github.com/ccastromar/availability-gate/internal/logx"
	"github.com/ccastromar/availability-gate/internal/metrics"
)

type HTTPServer struct {
	srv             *http.Server
	shutdownTimeout time.Duration
}

func NewHTTPServer(addr string, root http.Handler, readTimeout, writeTimeout, shutdownTimeout time.Duration) *HTTPServer {
	return &HTTPServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           wrapHandler(root),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       readTimeout,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 20, // 1MB
		},
		shutdownTimeout: shutdownTimeout,
	}
}

func (h *HTTPServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		logx.Info("HTTP", "listening on %s", h.srv.Addr)
		errCh <- h.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logx.Info("HTTP", "shutting down server...")
		timeout := h.shutdownTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		shutCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return h.srv.Shutdown(shutCtx)
	}
}

// wrapHandler stacks, outermost first: panic recovery, access log, request
// metrics and security headers.
func wrapHandler(root http.Handler) http.Handler {
	h := secureMiddleware(root)
	h = instrument(h)
	h = handlers.CombinedLoggingHandler(accessLog{}, h)
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLog{}),
		handlers.PrintRecoveryStack(false),
	)(h)
}

func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		lbls := map[string]string{"method": r.Method, "status": strconv.Itoa(m.Code)}
		metrics.HTTPRequests.Inc(lbls)
		metrics.HTTPDuration.Observe(lbls, m.Duration.Seconds())
	})
}

// secureMiddleware adds basic hardening to HTTP server:
// - Common security headers
// - Body size limit
// - Block TRACE method
func secureMiddleware(next http.Handler) http.Handler {
	const maxBody = 1 << 20 // 1MB
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Block TRACE to avoid request smuggling tricks
		if r.Method == http.MethodTrace {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// accessLog routes gorilla access log lines through logx.
type accessLog struct{}

func (accessLog) Write(p []byte) (int, error) {
	logx.Debug("HTTP", "%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

type recoveryLog struct{}

func (recoveryLog) Println(v ...interface{}) {
	logx.Error("HTTP", "panic recovered: %v", v)
}
