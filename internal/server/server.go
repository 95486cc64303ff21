// Package server exposes the toolbox over HTTP. Every request gets its own
// session, so no state is shared between callers.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/menta2k/toolbox/internal/config"
	"github.com/menta2k/toolbox/pkg/bundle"
	"github.com/menta2k/toolbox/pkg/detection"
	"github.com/menta2k/toolbox/pkg/processing"
	"github.com/menta2k/toolbox/pkg/raster"
	"github.com/menta2k/toolbox/pkg/session"
)

// Server serves the JSON/multipart API
type Server struct {
	cfg       *config.Config
	processor *processing.Processor
	extractor *raster.Extractor
	detector  *detection.Detector
	log       zerolog.Logger
	version   string
}

// Option configures a Server
type Option func(*Server)

// WithDetector enables POST /api/suggest
func WithDetector(d *detection.Detector) Option {
	return func(s *Server) { s.detector = d }
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithVersion sets the version reported by /api/health
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New creates a server sharing one processor and extractor across requests
func New(cfg *config.Config, processor *processing.Processor, extractor *raster.Extractor, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		processor: processor,
		extractor: extractor,
		log:       zerolog.Nop(),
		version:   "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler wrapped in the middleware chain
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	GET := api.Methods(http.MethodGet, http.MethodHead).Subrouter()
	POST := api.Methods(http.MethodPost).Subrouter()

	GET.HandleFunc("/health", s.Health).Name("health")
	GET.HandleFunc("/icons/sizes", s.IconSizes).Name("icon-sizes")

	POST.HandleFunc("/crop", s.Crop).Name("crop")
	POST.HandleFunc("/icons", s.Icons).Name("icons")
	POST.HandleFunc("/convert", s.Convert).Name("convert")
	POST.HandleFunc("/remove-bg", s.RemoveBackground).Name("remove-bg")
	POST.HandleFunc("/suggest", s.Suggest).Name("suggest")

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("not found"))
	})

	standard := alice.New(
		hlog.NewHandler(s.log),
		hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			hlog.FromRequest(r).Info().
				Str("method", r.Method).
				Stringer("url", r.URL).
				Int("status", status).
				Int("size", size).
				Dur("duration", duration).
				Msg("request")
		}),
		hlog.RemoteAddrHandler("ip"),
		hlog.RequestIDHandler("req_id", "X-Request-Id"),
		s.recoverer,
		s.cors,
		s.limitBody,
	)
	return standard.Then(router)
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Msg("listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				hlog.FromRequest(r).Error().Interface("panic", rec).Msg("handler panic")
				writeError(w, http.StatusInternalServerError, errors.New("internal error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.cfg.Server.AllowedOrigin; origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	limit := int64(s.cfg.Server.MaxUploadMB) << 20
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		next.ServeHTTP(w, r)
	})
}

// Health reports liveness
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.version})
}

// IconSizes lists the icon palette and default selection
func (s *Server) IconSizes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]int{
		"palette": session.Palette(),
		"default": s.cfg.Icons.Sizes,
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeFile(w http.ResponseWriter, name, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, processing.ErrNotImage):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, processing.ErrUnsupportedFormat),
		errors.Is(err, bundle.ErrUnknownFormat),
		errors.Is(err, bundle.ErrEmpty),
		errors.Is(err, session.ErrUnknownSize),
		errors.Is(err, raster.ErrInvalidTransform),
		errors.Is(err, raster.ErrEmptyRegion),
		errors.Is(err, raster.ErrSurfaceTooLarge),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	ev := hlog.FromRequest(r).Warn()
	if status >= 500 {
		ev = hlog.FromRequest(r).Error()
	}
	ev.Err(err).Int("status", status).Msg("request failed")
	writeError(w, status, err)
}
