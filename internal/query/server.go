package query

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 5 * time.Second
)

type ctxKey struct{}

// RequestID returns the ID assigned to the request by the handler, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Server exposes a Service over HTTP. Every endpoint accepts any method.
type Server struct {
	service *Service
	logger  *slog.Logger
}

// NewServer creates an HTTP front end for service.
func NewServer(service *Service) *Server {
	return &Server{
		service: service,
		logger:  slog.Default().With("component", "http"),
	}
}

// Router returns the handler for all endpoints.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.root)
	mux.HandleFunc("/test", s.test)
	mux.HandleFunc("/search", s.search)
	mux.HandleFunc("/query", s.query)
	mux.HandleFunc("/annotations", s.annotations)
	return s.logRequests(mux)
}

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, fmt.Errorf("no endpoint at %s", r.URL.Path))
		return
	}
	s.test(w, r)
}

// test is the liveness probe.
func (s *Server) test(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, "OK")
}

func (s *Server) search(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Search())
}

func (s *Server) annotations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, []any{})
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("failed to read body: %w", err))
		return
	}

	req, err := ParseRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	results, err := s.service.Query(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if IsClientError(err) {
			status = http.StatusBadRequest
		}
		s.logger.Error("Query failed", "request_id", RequestID(r.Context()), "error", err)
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)
		r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, id))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		s.logger.Debug("Handled request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

// Serve listens on addr until ctx is canceled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	return serve(ctx, addr, handler, nil)
}

// ServeTLS is Serve over HTTPS with the given configuration.
func ServeTLS(ctx context.Context, addr string, handler http.Handler, tlsConfig *tls.Config) error {
	if tlsConfig == nil {
		return errors.New("tls config is required")
	}
	return serve(ctx, addr, handler, tlsConfig)
}

func serve(ctx context.Context, addr string, handler http.Handler, tlsConfig *tls.Config) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if tlsConfig != nil {
			slog.Info("Query server listening", "addr", addr, "tls", true)
			// Certificates come from TLSConfig
			errCh <- srv.ListenAndServeTLS("", "")
			return
		}
		slog.Info("Query server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("query server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down query server: %w", err)
	}
	slog.Info("Query server stopped")
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
