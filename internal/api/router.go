package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/fitroom/tryon-engine/internal/api/handlers"
	"github.com/fitroom/tryon-engine/internal/api/middleware"
	"github.com/fitroom/tryon-engine/internal/auth"
	"github.com/fitroom/tryon-engine/internal/cache"
	"github.com/fitroom/tryon-engine/internal/config"
	"github.com/fitroom/tryon-engine/internal/history"
	"github.com/fitroom/tryon-engine/internal/imagestore"
	"github.com/fitroom/tryon-engine/internal/promptstore"
	"github.com/fitroom/tryon-engine/internal/queue"
)

type Router struct {
	mux   *chi.Mux
	db    *pgxpool.Pool
	redis *redis.Client
	cfg   *config.Config
	jwt   *auth.JWTMiddleware
	store promptstore.Store
}

func NewRouter(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config, store promptstore.Store) *Router {
	return &Router{
		mux:   chi.NewRouter(),
		db:    db,
		redis: rdb,
		cfg:   cfg,
		jwt:   auth.NewJWTMiddleware(cfg.Auth.JWTSecret),
		store: store,
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	rl := middleware.NewRateLimiter(100, 200)
	r.Use(rl.Limit)

	health := handlers.NewHealthHandler(rt.db, rt.redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	histSvc := history.NewService(rt.db)
	images := imagestore.NewLocal(rt.cfg.Storage.PhotosDir)
	queueClient := queue.NewClient(rt.cfg.Redis)
	var progressCache *cache.Cache
	if rt.redis != nil {
		progressCache = cache.NewCache(rt.redis)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.jwt.Authenticate)

		tryonH := handlers.NewTryonHandler(histSvc, images, queueClient, progressCache)
		r.Route("/tryons", func(r chi.Router) {
			r.Post("/", tryonH.Create)
			r.Get("/{id}", tryonH.Get)
			r.Get("/{id}/result", tryonH.Result)
			r.Get("/{id}/progress", tryonH.Progress)
		})

		promptsH := handlers.NewPromptsHandler(rt.store)
		r.Get("/prompts/{category}", promptsH.Get)
	})

	return r
}
