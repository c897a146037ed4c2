package ping

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/airhacks/ping/api/health"
	"github.com/airhacks/ping/api/hello"
	"github.com/airhacks/ping/pkg/config"
)

type Server struct {
	cfg     config.ServerConfig
	log     logrus.FieldLogger
	probe   *health.Probe
	metrics *httpMetrics
	handler http.Handler
}

// ErrorResponse is the body of every error produced by the server itself.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Handle preflight checks
func corsHandler(f http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			cors(w, r)
			return
		}
		setCORSHeaders(w)
		f.ServeHTTP(w, r)
	}
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type,access-control-allow-origin, access-control-allow-headers")
}

func cors(w http.ResponseWriter, _ *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.WriteHeader(http.StatusOK)
}

func retError(w http.ResponseWriter, emsg string, status int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: emsg})
}

// NewServer returns a ping server for cfg. env is consulted by the greeting
// on every request; nil means the process environment.
func NewServer(cfg config.ServerConfig, log logrus.FieldLogger, env hello.Env) *Server {
	s := &Server{
		cfg:   cfg,
		log:   log.WithField("subsystem", "ping"),
		probe: health.NewProbe(),
	}
	if cfg.Metrics {
		s.metrics = newHTTPMetrics()
	}
	s.handler = s.logRequests(s.routes(hello.NewHandler(env, log)))
	return s
}

// routes wires up every HTTP route.
func (s *Server) routes(greeting http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		retError(w, "no route for "+r.URL.Path, http.StatusNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", "GET, OPTIONS")
		retError(w, "method "+r.Method+" not allowed", http.StatusMethodNotAllowed)
	})

	addRoutes(r, map[string]http.Handler{
		"/hello":        greeting,
		"/health/live":  http.HandlerFunc(s.probe.Live),
		"/health/ready": http.HandlerFunc(s.probe.Readiness),
	})
	if s.metrics != nil {
		addRoutes(r, map[string]http.Handler{
			"/metrics": s.metrics.handler(),
		})
		r.Use(s.metrics.middleware)
	}
	return r
}

// addRoutes registers GET handlers and wraps them in CORS.
func addRoutes(r *mux.Router, routes map[string]http.Handler) {
	for path, h := range routes {
		r.Handle(path, corsHandler(h)).Methods(http.MethodGet, http.MethodOptions)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := newStatusRecorder(w)
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start),
		}).Debug("Endpoint hit")
	})
}

// Handler returns the fully wired HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Probe exposes the readiness state reported by the health routes.
func (s *Server) Probe() *health.Probe {
	return s.probe
}

// Run binds the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	lis, err := s.listen(ctx)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

// listen binds the listen address, retrying with exponential backoff until
// the bind timeout elapses. Ports are often still held by a previous
// replica during a rolling restart.
func (s *Server) listen(ctx context.Context) (net.Listener, error) {
	var bo backoff.BackOff = &backoff.StopBackOff{}
	if s.cfg.BindTimeout > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.MaxElapsedTime = s.cfg.BindTimeout
		bo = eb
	}

	var lis net.Listener
	bind := func() error {
		l, err := net.Listen("tcp", s.cfg.ListenAddr)
		if err != nil {
			return err
		}
		lis = l
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.log.WithError(err).WithField("retry_in", wait).Warn("Failed to bind listener")
	}
	if err := backoff.RetryNotify(bind, backoff.WithContext(bo, ctx), notify); err != nil {
		return nil, errors.Wrapf(err, "could not listen on %s", s.cfg.ListenAddr)
	}
	return lis, nil
}

// Serve accepts connections on lis until ctx is done, then drains in-flight
// requests within the shutdown timeout. The server reports not ready while
// draining.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(lis)
	}()
	s.probe.SetReady(true)
	s.log.WithField("address", lis.Addr().String()).Info("Ping API listening")

	select {
	case err := <-errCh:
		s.probe.SetReady(false)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "ping API stopped")
	case <-ctx.Done():
	}

	s.probe.SetReady(false)
	s.log.Info("Shutting down ping API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "graceful shutdown failed")
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "ping API stopped")
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
