package server

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"proposal-backend/internal/analyses"
	"proposal-backend/internal/billing"
	"proposal-backend/internal/invoke"
	"proposal-backend/internal/llm"
	"proposal-backend/internal/llm/anthropic"
	"proposal-backend/internal/llm/openai"
	"proposal-backend/internal/shared/config"
	"proposal-backend/internal/shared/metrics"
	"proposal-backend/internal/shared/server/middleware"
	"proposal-backend/internal/shared/server/respond"
	"proposal-backend/internal/shared/storage/db"
	"proposal-backend/internal/usage"
)

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(cfg config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
	)

	// Dependencies
	var sqlDB *sql.DB
	if cfg.DatabaseURL != "" {
		dbConn, err := db.Connect(context.Background(), cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
		if err != nil {
			log.Printf("failed to connect database, falling back to memory: %v", err)
		} else {
			sqlDB = migrateOrFallback(context.Background(), dbConn, db.RunMigrations)
		}
	}

	var usageStore usage.Store
	var billingStore billing.Store
	var analysisRepo analyses.Repo
	if sqlDB != nil {
		usageStore = usage.NewPGStore(sqlDB)
		billingStore = billing.NewPGStore(sqlDB)
		analysisRepo = &analyses.PGRepo{DB: sqlDB}
	} else {
		usageStore = usage.NewMemoryStore()
		billingStore = billing.NewMemoryStore()
		analysisRepo = analyses.NewMemoryRepo()
	}

	usageSvc := usage.NewService(usageStore, usage.NewPriceTable())
	billingSvc := billing.NewService(billingStore, cfg.InitialAllowance)

	clients := make(map[string]llm.Client)
	if cfg.OpenAIAPIKey != "" {
		client, err := openai.NewClient(cfg.OpenAIAPIKey)
		if err != nil {
			log.Printf("openai client unavailable: %v", err)
		} else {
			clients["openai"] = client
		}
	}
	if cfg.AnthropicKey != "" {
		client, err := anthropic.NewClient(cfg.AnthropicKey)
		if err != nil {
			log.Printf("anthropic client unavailable: %v", err)
		} else {
			clients["anthropic"] = client
		}
	}
	mux := llm.NewMux(clients)

	invoker := invoke.New(mux, invoke.DefaultOptions(), usageSvc, &invoke.LogTracer{})
	candidates := append([]string{cfg.PrimaryModel}, cfg.FallbackModels...)

	analysisSvc := analyses.NewService(analysisRepo, billingSvc, usageSvc, invoker, candidates, cfg.EstimatedRunCost)
	analysisHandler := analyses.NewHandler(analysisSvc, usageSvc)
	billingHandler := billing.NewHandler(billingSvc)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})

	api.Use(
		middleware.Identity(),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules: map[string]middleware.RateLimitRule{
				middleware.AnalysisStartGroup: {Rate: 0.2, Burst: 3},
			},
			GroupFor: func(c *gin.Context) string {
				if c.Request.Method == http.MethodPost && c.FullPath() == "/api/v1/analyses" {
					return middleware.AnalysisStartGroup
				}
				return ""
			},
		}),
	)
	analysisHandler.RegisterRoutes(api)
	billingHandler.RegisterRoutes(api)

	return r
}

// migrateOrFallback runs migrations on an open pool. On failure the pool is
// closed and nil is returned so the caller falls back to memory stores
// without leaking connections.
func migrateOrFallback(ctx context.Context, conn *sql.DB, migrate func(context.Context, *sql.DB) error) *sql.DB {
	if err := migrate(ctx, conn); err != nil {
		log.Printf("failed to run migrations, falling back to memory: %v", err)
		if cerr := conn.Close(); cerr != nil {
			log.Printf("failed to close database pool: %v", cerr)
		}
		return nil
	}
	return conn
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
