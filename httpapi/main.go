// Package httpapi exposes the suggestion pipeline over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"kibarashidev/contextual"
	"kibarashidev/keypool"
	"kibarashidev/logger"
	"kibarashidev/suggestion"
	"kibarashidev/voiceguide"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// SuggestionService is the orchestrator as seen by the controllers.
type SuggestionService interface {
	GenerateSuggestions(ctx context.Context, req suggestion.Request) ([]suggestion.Suggestion, error)
	GenerateEnhancedSuggestions(ctx context.Context, req suggestion.Request, level voiceguide.DetailLevel, includeVoice bool) ([]suggestion.EnhancedSuggestion, error)
	KeyPoolStats() keypool.Stats
	ForceKeyRotation(ctx context.Context) int
	ResetAllCooldowns(ctx context.Context)
}

type ContextSource interface {
	Snapshot(ctx context.Context) (contextual.Snapshot, error)
}

type RouterConnectProps struct {
	Logger      *logger.LogMiddleware
	Suggestions SuggestionService
	// Context backs GET /api/v1/context. The route is not mounted without it.
	Context ContextSource
	// RateLimit applies per client IP to every /api/v1 route.
	// EnhancedRateLimit is counted separately on /suggestions/enhanced.
	RateLimit         RateLimit
	EnhancedRateLimit RateLimit
	Now               func() time.Time
}

type handlers struct {
	logger        *logger.LogMiddleware
	suggestions   SuggestionService
	contextSource ContextSource
	now           func() time.Time
}

// NewRouter builds the routed, instrumented handler.
func NewRouter(args RouterConnectProps) http.Handler {
	if args.Logger == nil {
		args.Logger = logger.Nop()
	}
	if args.Now == nil {
		args.Now = time.Now
	}
	h := &handlers{logger: args.Logger, suggestions: args.Suggestions, contextSource: args.Context, now: args.Now}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLoggerMiddleware(args.Logger))

	apiLimiter := newIPRateLimiter("api", "too many requests from this IP, please try again later", args.RateLimit, args.Logger, args.Now)
	enhancedLimiter := newIPRateLimiter("enhanced", "too many enhanced suggestion requests, please try again later", args.EnhancedRateLimit, args.Logger, args.Now)

	r.Get("/health", h.health)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apiLimiter.Middleware)
		r.Get("/suggestions", h.getSuggestions)
		r.With(enhancedLimiter.Middleware).Get("/suggestions/enhanced", h.getEnhancedSuggestions)
		if args.Context != nil {
			r.Get("/context", h.getContext)
		}
		r.Route("/admin/keys", func(r chi.Router) {
			r.Get("/", h.getKeyStats)
			r.Post("/rotate", h.rotateKey)
			r.Post("/reset", h.resetCooldowns)
		})
	})

	return otelhttp.NewHandler(r, "kibarashi.http")
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": h.now().UTC(),
	})
}
