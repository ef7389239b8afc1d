package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "contact-service/docs"
	"contact-service/internal/config"
	"contact-service/internal/metrics"
	"contact-service/internal/submission"
)

// Submitter runs one contact submission to completion.
type Submitter interface {
	HandleSubmission(ctx context.Context, in submission.Payload) submission.Outcome
}

type API struct {
	Submitter Submitter
	Cfg       *config.Config
	Log       zerolog.Logger
}

func NewAPI(s Submitter, cfg *config.Config, logger zerolog.Logger) *API {
	a := &API{
		Submitter: s,
		Cfg:       cfg,
		Log:       logger.With().Str("component", "api").Logger(),
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		a.Log.Warn().Msg("ALLOWED_ORIGINS is empty, CORS allows every origin")
	}
	return a
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(a.Log))
	r.Use(requestIDLogger)
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(a.corsHandler())

	// Public
	r.Get("/", a.Health)
	r.Post("/contact", a.SubmitContact)

	// Operational
	r.Handle("/metrics", metrics.Handler())
	r.Get("/swagger/*", httpSwagger.WrapHandler)

	return r
}

// requestIDLogger tags the request logger with chi's request ID.
func requestIDLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("request_id", id)
			})
		}
		next.ServeHTTP(w, r)
	})
}

// corsHandler allows the configured front-end origins to POST and GET
// with credentials. An empty list allows any origin.
func (a *API) corsHandler() func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   a.Cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodPost, http.MethodGet},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}).Handler
}
