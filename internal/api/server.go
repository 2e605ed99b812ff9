// Package api exposes the profile service over HTTP/JSON.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sells-group/brand-cli/internal/model"
	"github.com/sells-group/brand-cli/internal/profile"
	"github.com/sells-group/brand-cli/internal/scorer"
	"github.com/sells-group/brand-cli/internal/store"
)

// ProfileService is the profile lifecycle the API drives.
type ProfileService interface {
	CreateFromExtraction(ctx context.Context, req profile.CreateRequest) (*model.Profile, error)
	ReCrawl(ctx context.Context, brandID, actorID string) (*model.Profile, model.Changes, error)
	UpdateField(ctx context.Context, brandID string, upd profile.FieldUpdate, editorID string) (*model.Profile, error)
	ApproveField(ctx context.Context, brandID, fieldPath, editorID string) (*model.Profile, error)
	AcceptChanges(ctx context.Context, brandID string, accepted model.Changes, editorID string) (*model.Profile, error)
	Get(ctx context.Context, brandID string) (*model.Profile, error)
	List(ctx context.Context, filter store.ListFilter) ([]model.Profile, error)
	Delete(ctx context.Context, brandID string) error
	GetVersion(ctx context.Context, brandID, versionID string) (*model.VersionEntry, error)
	Score(ctx context.Context, brandID string) (scorer.Breakdown, error)
}

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BreakerStates reports upstream circuit breaker states.
type BreakerStates interface {
	States() map[string]string
}

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// Handler serves the profile API.
type Handler struct {
	svc      ProfileService
	pinger   Pinger
	breakers BreakerStates
	validate *validator.Validate
}

// NewHandler creates a Handler. pinger and breakers may be nil.
func NewHandler(svc ProfileService, pinger Pinger, breakers BreakerStates) *Handler {
	return &Handler{
		svc:      svc,
		pinger:   pinger,
		breakers: breakers,
		validate: validator.New(),
	}
}

// Router builds the chi router with middleware and routes.
func (h *Handler) Router(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}

	r.Get("/health", h.health)
	r.Route("/profiles", func(r chi.Router) {
		r.Post("/", h.createProfile)
		r.Get("/", h.listProfiles)
		r.Route("/{brandID}", func(r chi.Router) {
			r.Get("/", h.getProfile)
			r.Delete("/", h.deleteProfile)
			r.Post("/recrawl", h.reCrawl)
			r.Patch("/fields", h.updateField)
			r.Post("/fields/approve", h.approveField)
			r.Post("/fields/accept", h.acceptChanges)
			r.Get("/versions/{versionID}", h.getVersion)
			r.Get("/score", h.score)
		})
	})
	return r
}

// requestLogger logs each request through the global zap logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
