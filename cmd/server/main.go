package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/genfoo/backend/docs"
	"github.com/genfoo/backend/internal/audit"
	"github.com/genfoo/backend/internal/completion"
	"github.com/genfoo/backend/internal/config"
	"github.com/genfoo/backend/internal/database"
	"github.com/genfoo/backend/internal/handlers"
	"github.com/genfoo/backend/internal/identity"
	"github.com/genfoo/backend/internal/ledger"
	"github.com/genfoo/backend/internal/logger"
	"github.com/genfoo/backend/internal/metrics"
	mW "github.com/genfoo/backend/internal/middleware"
	"github.com/genfoo/backend/internal/payments"
	"github.com/genfoo/backend/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// @title GenFoo Backend API
// @version 1.0
// @description Credit ledger, checkout and metered chat for GenFoo
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Could not read .env: %v", err)
	}

	v := viper.New()
	config.SetDefaults(v)
	cfg, err := config.Load(v)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, zl *zap.Logger) error {
	ctx := context.Background()

	docs.SwaggerInfo.Host = ""
	docs.SwaggerInfo.BasePath = "/api/v1"

	db, err := database.Open(ctx, cfg.Database, zl)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, cfg.Database.Driver); err != nil {
			return err
		}
		zl.Info("database migrations applied", zap.String("driver", cfg.Database.Driver))
	}

	redisClient, err := database.NewRedis(ctx, cfg.Redis, zl)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	identityVerifier, err := identity.NewVerifier(cfg.Webhooks.IdentitySecret, cfg.Webhooks.Tolerance)
	if err != nil {
		return err
	}
	paymentVerifier := payments.NewWebhookVerifier(cfg.Webhooks.PaymentSecret, cfg.Webhooks.Tolerance)

	modelSet, err := completion.NewModelSet(cfg.Completion.DefaultModel, cfg.Completion.Models)
	if err != nil {
		return err
	}

	authenticator, err := mW.NewAuthenticator(cfg.Auth, zl)
	if err != nil {
		return err
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	store := ledger.NewSQLStore(db, cfg.Database.Driver)
	deps := services.Deps{
		Store:   store,
		Redis:   redisClient,
		Log:     zl,
		Audit:   audit.NewLogger(zl),
		Metrics: m,
	}
	catalog := services.NewCatalog(cfg.Billing.Products)

	provisioner := services.NewProvisioner(deps, identityVerifier, cfg.Billing.StartingBalance, cfg.Redis.WebhookDedupTTL)
	fulfiller := services.NewFulfiller(deps, paymentVerifier, catalog)
	meter := services.NewMeter(deps, cfg.Billing.CostPerTurn)

	zl.Info("billing configured",
		zap.Strings("products", catalog.ProductIDs()),
		zap.Int64("starting_balance", cfg.Billing.StartingBalance),
		zap.Int64("cost_per_turn", meter.Cost()),
	)
	zl.Info("completion models configured",
		zap.String("default", modelSet.Default()),
		zap.Strings("allowed", modelSet.Models()),
		zap.Duration("timeout", cfg.Completion.Timeout),
	)

	// No client timeout: streams are bounded per request by the proxy.
	proxy := completion.NewProxy(cfg.Completion, &http.Client{})
	checkoutClient := payments.NewCheckoutClient(cfg.Billing.StripeAPIURL, cfg.Billing.StripeSecretKey,
		&http.Client{Timeout: 15 * time.Second})

	chatHandler := handlers.NewChatHandler(meter, proxy, modelSet, m, zl)
	creditsHandler := handlers.NewCreditsHandler(store, zl)
	checkoutHandler := handlers.NewCheckoutHandler(checkoutClient, catalog, cfg.Server.PublicURL, cfg.Server.AllowedOrigins, zl)
	webhookHandler := handlers.NewWebhookHandler(provisioner, fulfiller)
	healthHandler := handlers.NewHealthHandler(store, zl)
	chatLimiter := mW.NewRateLimiter(redisClient, cfg.Redis.RateLimitPerMinute, "chat", zl)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mW.RequestLogger(zl, m))
	r.Use(middleware.Recoverer)
	r.Use(mW.SecurityHeaders)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", healthHandler.Health)
	r.Handle("/metrics", promhttp.Handler())

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// Provider callbacks authenticate by signature, not bearer token.
	r.Route("/webhooks", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Post("/identity", webhookHandler.Identity)
		r.Post("/payments", webhookHandler.Payments)
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authenticator.Middleware)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(30 * time.Second))
				r.Get("/credits", creditsHandler.GetCredits)
				r.Post("/checkout", checkoutHandler.CreateCheckoutSession)
			})

			// Streams are bounded by the completion timeout instead.
			r.With(chatLimiter.Middleware).Post("/chat", chatHandler.Chat)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	serverErr := make(chan error, 1)
	go func() {
		zl.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return err
	case <-quit:
	}

	zl.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	zl.Info("server stopped")
	return nil
}
