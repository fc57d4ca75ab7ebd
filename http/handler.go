package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sagarc03/stashbox"
)

// Service is the storage API the handler exposes over HTTP.
type Service interface {
	InitUpload(ctx context.Context, ownerID string, req stashbox.InitUploadRequest) (stashbox.UploadTicket, error)
	Upload(ctx context.Context, token string, content io.Reader) (stashbox.Object, error)
	GetObject(ctx context.Context, ownerID, bucket, key string) (stashbox.DownloadTicket, error)
	Download(ctx context.Context, token string) (stashbox.Download, error)
	Delete(ctx context.Context, ownerID, bucket, key string) error
	List(ctx context.Context, ownerID string, q stashbox.ListQuery) (stashbox.ListResult, error)
}

type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type HandlerConfig struct {
	Auth OwnerVerifier
	CORS CORSConfig
	// MaxUploadSize bounds upload bodies in bytes. 0 means unlimited.
	MaxUploadSize int64
	// PublicURL is prepended to the presigned and download paths the service
	// returns. Empty keeps them relative.
	PublicURL string
	// Metrics records request counters when set.
	Metrics *Metrics
	// Gatherer backs GET /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// Health is called by GET /healthz. Nil always reports ok.
	Health func(ctx context.Context) error
}

// Handler provides HTTP handlers for object storage operations.
type Handler struct {
	config   HandlerConfig
	service  Service
	validate *validator.Validate
}

// NewHandler creates a new Handler with the given configuration and service.
func NewHandler(config *HandlerConfig, service Service) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		config:   *config,
		service:  service,
		validate: v,
	}
}

// Router returns an http.Handler with every storage route mounted.
//
// Owner routes need a bearer JWT. Upload and download routes are
// authorized by the capability token in their path.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger)
	if h.config.Metrics != nil {
		r.Use(h.config.Metrics.Handler)
	}

	if h.config.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.config.CORS.AllowedOrigins,
			AllowedMethods:   h.config.CORS.AllowedMethods,
			AllowedHeaders:   h.config.CORS.AllowedHeaders,
			ExposedHeaders:   h.config.CORS.ExposedHeaders,
			AllowCredentials: h.config.CORS.AllowCredentials,
			MaxAge:           h.config.CORS.MaxAge,
		}))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, http.StatusNotFound, "not_found", "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	})

	r.Get("/healthz", h.handleHealth)
	if h.config.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.config.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/storage", func(r chi.Router) {
		r.Put("/upload/{token}", h.handleUpload)
		r.Get("/downloads/{token}", h.handleDownload)

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.config.Auth))
			r.Post("/init-upload", h.handleInitUpload)
			r.Get("/objects", h.handleGetObjects)
			r.Delete("/objects", h.handleDelete)
		})
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.config.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.config.Health(ctx); err != nil {
			_ = WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}

	_ = WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleInitUpload(w http.ResponseWriter, r *http.Request) {
	owner, ok := OwnerFromContext(r.Context())
	if !ok {
		HandleError(w, ErrMissingOwner)
		return
	}

	var req stashbox.InitUploadRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		HandleError(w, fmt.Errorf("%w: %w", errInvalidBody, err))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		HandleError(w, err)
		return
	}

	ticket, err := h.service.InitUpload(r.Context(), owner, req)
	if err != nil {
		HandleError(w, err)
		return
	}

	ticket.PresignedURL = h.publicURL(ticket.PresignedURL)
	_ = WriteJSON(w, http.StatusCreated, ticket)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	body := io.Reader(r.Body)
	if h.config.MaxUploadSize > 0 {
		body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadSize)
	}

	obj, err := h.service.Upload(r.Context(), chi.URLParam(r, "token"), body)
	if err != nil {
		HandleError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, obj)
}

// handleGetObjects serves a download ticket when key is given and a listing
// of the bucket otherwise.
func (h *Handler) handleGetObjects(w http.ResponseWriter, r *http.Request) {
	owner, ok := OwnerFromContext(r.Context())
	if !ok {
		HandleError(w, ErrMissingOwner)
		return
	}

	q := r.URL.Query()
	if q.Has("key") {
		ticket, err := h.service.GetObject(r.Context(), owner, q.Get("bucket"), q.Get("key"))
		if err != nil {
			HandleError(w, err)
			return
		}

		ticket.DownloadURL = h.publicURL(ticket.DownloadURL)
		_ = WriteJSON(w, http.StatusOK, ticket)
		return
	}

	limit := 0
	if limitStr := q.Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			WriteError(w, http.StatusBadRequest, "invalid_input", "limit must be a positive integer")
			return
		}
		limit = min(1000, parsed)
	}

	result, err := h.service.List(r.Context(), owner, stashbox.ListQuery{
		Bucket:    q.Get("bucket"),
		KeyPrefix: q.Get("prefix"),
		Limit:     limit,
		Cursor:    q.Get("cursor"),
	})
	if err != nil {
		HandleError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	dl, err := h.service.Download(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		HandleError(w, err)
		return
	}
	defer func() { _ = dl.Content.Close() }()

	w.Header().Set("Content-Type", dl.MimeType)
	w.Header().Set("Cache-Control", "private, no-store")

	http.ServeContent(w, r, "", time.Time{}, dl.Content)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	owner, ok := OwnerFromContext(r.Context())
	if !ok {
		HandleError(w, ErrMissingOwner)
		return
	}

	q := r.URL.Query()
	if err := h.service.Delete(r.Context(), owner, q.Get("bucket"), q.Get("key")); err != nil {
		HandleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) publicURL(path string) string {
	if h.config.PublicURL == "" {
		return path
	}
	return strings.TrimSuffix(h.config.PublicURL, "/") + path
}
