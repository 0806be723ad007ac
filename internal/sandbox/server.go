package sandbox

// Package sandbox serves a local stand-in for the remote verification
// service. It keeps the same routes, step guards and error bodies, and hands
// image checks to the worker through the queue.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"swiftkyc-client/internal/queue"
	"swiftkyc-client/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// APIPrefix is the versioned root every client route hangs off.
const APIPrefix = "/api/v1"

// maxUploadBytes bounds one multipart upload.
const maxUploadBytes = 10 << 20

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "swiftkyc_sandbox_http_requests_total",
	Help: "Sandbox HTTP requests by route and status code.",
}, []string{"route", "code"})

// Options configures a Server.
type Options struct {
	Store     *store.Store
	Queue     queue.Queue
	UploadDir string
	// RateLimit is the number of requests allowed per client IP per minute.
	// Zero disables limiting.
	RateLimit int
	Logger    *slog.Logger
}

// Server holds the handlers' dependencies.
type Server struct {
	store     *store.Store
	queue     queue.Queue
	uploadDir string
	rateLimit int
	logger    *slog.Logger
}

func NewServer(opts Options) *Server {
	return &Server{
		store:     opts.Store,
		queue:     opts.Queue,
		uploadDir: opts.UploadDir,
		rateLimit: opts.RateLimit,
		logger:    opts.Logger,
	}
}

// Handler builds the full router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route(APIPrefix, func(r chi.Router) {
		if s.rateLimit > 0 {
			r.Use(rateLimit(s.rateLimit, time.Minute))
		}
		r.Route("/kyc/session", func(r chi.Router) {
			r.Post("/", s.createSession)
			r.Get("/{id}", s.getSession)
			r.Post("/{id}/select-document", s.selectDocument)
			r.Post("/{id}/enter-doc-number", s.enterDocNumber)
			r.Post("/{id}/validate-document", s.validateDocument)
			r.Post("/{id}/selfie", s.uploadSelfie)
		})
		r.Route("/admin/kyc/sessions", func(r chi.Router) {
			r.Get("/", s.listSessions)
			r.Get("/{id}", s.sessionDetail)
			r.Post("/{id}/approve", s.approve)
			r.Post("/{id}/reject", s.reject)
		})
	})

	return otelhttp.NewHandler(r, "swiftkyc-sandbox")
}

func rateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
			writeDetail(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
		}),
	)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		requestsTotal.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
		s.logger.Debug("HTTP request", "method", r.Method, "route", route,
			"status", ww.Status(), "duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDetail writes the {"detail": ...} error body. detail is either a
// message string or a coded error object.
func writeDetail(w http.ResponseWriter, code int, detail any) {
	writeJSON(w, code, map[string]any{"detail": detail})
}

// codedError is the object form of an error detail.
type codedError struct {
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// writeStoreError maps a store failure onto a response.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error, notFound any) {
	if errors.Is(err, store.ErrNotFound) {
		writeDetail(w, http.StatusNotFound, notFound)
		return
	}
	s.logger.Error("Sandbox: request failed", "path", r.URL.Path, "error", err)
	writeDetail(w, http.StatusInternalServerError, "Internal server error.")
}
