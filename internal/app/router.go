package app

import (
	"database/sql"
	"net/http"
	"time"

	"qbank/internal/app/observability"
	"qbank/internal/auth"
	"qbank/internal/generate"
	"qbank/internal/pool"
	"qbank/internal/review"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Deps holds the long-lived pieces main needs to keep a handle on.
type Deps struct {
	Sessions  *review.Store
	Limiter   *RateLimiter
	Collector *observability.Collector
}

func NewRouter(cfg Config, db *sql.DB, deps Deps) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	collector := deps.Collector
	if collector == nil {
		collector = observability.NewCollector(db)
	}
	r.Use(collector.Middleware)

	sessions := deps.Sessions
	if sessions == nil {
		sessions = review.NewStore(cfg.ReviewSessionTTL)
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = NewRateLimiter(cfg.GenerateRateLimitPerMin, time.Minute)
	}

	var authSvc *auth.Service
	if !cfg.AuthDisabled {
		var err error
		authSvc, err = auth.NewService(cfg.Accounts)
		if err != nil {
			return nil, err
		}
	}
	authHandler := auth.NewHandler(authSvc, auth.HandlerConfig{
		Disabled:      cfg.AuthDisabled,
		MaxFailures:   cfg.AuthMaxFailures,
		FailureWindow: cfg.AuthFailureWindow,
	})

	poolSvc := pool.NewService(db)
	poolHandler := pool.NewHandler(poolSvc)

	genSvc := generate.NewService(generate.ServiceConfig{
		Runner: generate.NewRouter(generate.RouterConfig{
			GeminiAPIKey:     cfg.GeminiAPIKey,
			OpenRouterAPIKey: cfg.OpenRouterAPIKey,
			SiteURL:          cfg.SiteURL,
			Timeout:          cfg.LLMTimeout,
		}),
		DefaultModel:   cfg.DefaultModel,
		Extractor:      generate.Extractor{PDFToText: cfg.PDFToText},
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	reviewHandler := review.NewHandler(review.HandlerConfig{
		Store:            sessions,
		Generator:        genSvc,
		Pools:            poolSvc,
		Committer:        review.NewBatchCommitter(poolSvc),
		Observer:         collector,
		MaxBulkQuestions: cfg.MaxBulkQuestions,
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", collector.MetricsHandler)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(CSRFMiddleware(cfg.CSRFEnforced))

		api.Group(func(secure chi.Router) {
			secure.Use(authHandler.RequireAuth)
			secure.Get("/auth/me", authHandler.Me)

			secure.Route("/review-sessions", func(rs chi.Router) {
				rs.Post("/paste", reviewHandler.CreateFromPaste)
				rs.Group(func(gen chi.Router) {
					gen.Use(RateLimitMiddleware(limiter))
					gen.Post("/generate", reviewHandler.CreateFromPrompt)
					gen.Post("/generate-from-file", reviewHandler.CreateFromFile)
				})
				rs.Get("/{id}", reviewHandler.GetSession)
				rs.Post("/{id}/candidates/{candidateID}/toggle", reviewHandler.ToggleCandidate)
				rs.Put("/{id}/cursor", reviewHandler.SetCursor)
				rs.Post("/{id}/commit", reviewHandler.Commit)
				rs.Delete("/{id}", reviewHandler.Cancel)
			})

			secure.Route("/pools", func(p chi.Router) {
				p.With(authHandler.RequireRoles(auth.RoleAdmin, auth.RoleAuthor)).Post("/", poolHandler.CreatePool)
				p.Get("/", poolHandler.ListPools)
				p.Get("/{id}", poolHandler.GetPool)
				p.Get("/{id}/questions", poolHandler.ListQuestions)
				p.Post("/{id}/questions/batch", poolHandler.SaveBatch)
				p.Post("/{id}/questions/import", poolHandler.ImportExcel)
				p.Get("/{id}/export.xlsx", poolHandler.ExportExcel)
				p.Get("/{id}/export.yaml", poolHandler.ExportYAML)
			})
		})
	})

	return r, nil
}
