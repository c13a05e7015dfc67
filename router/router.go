// Package router wires the destination registry behind a minimal chi
// proxy surface. The middleware chain (request ID, panic recovery,
// request logging, body-size limit) and health endpoints are grounded
// on the teacher's services/gateway/router/router.go; the proxy route
// itself is new, since the teacher's proxy targeted fixed LLM vendor
// paths rather than an arbitrary caller-supplied destination.
package router

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/alfreddev/fusegate/config"
	"github.com/alfreddev/fusegate/destination"
	"github.com/alfreddev/fusegate/fuse"
)

// New returns a configured chi Router exposing health endpoints and a
// /proxy/{destination}/* passthrough that forwards through the fuse
// client for that destination.
func New(cfg *config.Config, logger zerolog.Logger, registry *destination.Registry) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(logger))
	r.Use(maxBodySize(1 * 1024 * 1024))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"fusegate"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready","service":"fusegate"}`))
	})

	handler := NewProxyHandler(logger, registry)
	r.Route("/proxy/{destination}", func(r chi.Router) {
		r.HandleFunc("/*", handler.ServeHTTP)
	})

	return r
}

// ProxyHandler forwards an incoming request to the destination named
// in the URL, through that destination's fuse.Client.
type ProxyHandler struct {
	logger   zerolog.Logger
	registry *destination.Registry
}

// NewProxyHandler constructs a ProxyHandler.
func NewProxyHandler(logger zerolog.Logger, registry *destination.Registry) *ProxyHandler {
	return &ProxyHandler{
		logger:   logger.With().Str("component", "proxy-handler").Logger(),
		registry: registry,
	}
}

func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	dest := chi.URLParam(r, "destination")
	if dest == "" {
		http.Error(w, `{"error":"missing_destination"}`, http.StatusBadRequest)
		return
	}
	path := chi.URLParam(r, "*")
	if path != "" {
		path = "/" + path
	}

	client := h.registry.Get(dest)

	var body fuse.Body
	if r.Body != nil && r.ContentLength != 0 {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, `{"error":"body_read_failed"}`, http.StatusBadRequest)
			return
		}
		body = &readerBody{data: b, contentType: r.Header.Get("Content-Type")}
	}

	headers := r.Header.Clone()
	status, respBody, err := client.Do(r.Context(), r.Method, path, headers, body)
	if err != nil {
		h.logger.Warn().Err(err).Str("destination", dest).Msg("proxied request failed")
		http.Error(w, `{"error":"upstream_unavailable"}`, http.StatusBadGateway)
		return
	}

	if status <= 0 {
		// A nil error with a non-positive status is a network/timeout
		// fault surviving to the caller after retries were exhausted
		// (spec.md §7); WriteHeader(0) would panic, so map it to a
		// real upstream-failure status instead of passing it through.
		status = http.StatusBadGateway
	}
	w.WriteHeader(status)
	_, _ = w.Write(respBody)
}

// readerBody passes the inbound request body through unmodified,
// satisfying fuse.Body.
type readerBody struct {
	data        []byte
	contentType string
}

func (b *readerBody) Prepare(headers http.Header) (io.Reader, error) {
	if b.contentType != "" {
		headers.Set("Content-Type", b.contentType)
	}
	return &byteReader{data: b.data}, nil
}

type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

func maxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > 0 && r.ContentLength > maxBytes {
				http.Error(w, `{"error":"request_too_large"}`, http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rw, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("req_id", chimw.GetReqID(r.Context())).
				Int("status", rw.Status()).
				Dur("duration", time.Since(start)).
				Msg("request completed")
		})
	}
}
