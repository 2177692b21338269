package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/trektally/backend/docs"
	"github.com/trektally/backend/internal/config"
	"github.com/trektally/backend/internal/database"
	"github.com/trektally/backend/internal/handlers"
	mW "github.com/trektally/backend/internal/middleware"
	"github.com/trektally/backend/internal/services"
	"github.com/trektally/backend/internal/storage"
	"github.com/trektally/backend/pkg/logging"
)

// @title TrekTally Backend API
// @version 1.0
// @description API for trek expense splitting and settlement tracking
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	logging.Setup()

	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	if err := viper.ReadInConfig(); err != nil {
		slog.Info("config file not found, using environment and defaults", "error", err)
	}

	appCfg := config.Load()

	// Initialize Swagger docs
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		slog.Error("schema bootstrap failed", "error", err)
		os.Exit(1)
	}

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	receiptStore, err := storage.NewDiskStore(appCfg.ReceiptDir, appCfg.ReceiptBaseURL)
	if err != nil {
		slog.Error("failed to initialize receipt store", "error", err)
		os.Exit(1)
	}

	authService := services.NewAuthService(db, redisClient)
	expenseService := services.NewExpenseService(db, receiptStore, appCfg)
	shareService := services.NewShareService(db)
	categoryService := services.NewCategoryService(db)
	eventService := services.NewEventService(db, redisClient, appCfg)
	qrService := services.NewQRService(db, redisClient, appCfg)
	qrHandler := handlers.NewQRHandler(qrService)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(mW.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(mW.Metrics)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// Static file server for receipt attachments
	r.Handle(appCfg.ReceiptBaseURL+"/*", http.StripPrefix(appCfg.ReceiptBaseURL+"/",
		mW.StaticFileServer(appCfg.ReceiptDir)))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/account", authService.GetAccount)

			r.Get("/events", eventService.ListEvents)
			r.Post("/events/{eventId}/registrations", eventService.Register)
			r.Delete("/events/{eventId}/registrations", eventService.Cancel)

			r.Get("/events/{eventId}/expenses", expenseService.ListEventExpenses)
			r.Post("/events/{eventId}/expenses", expenseService.CreateExpense)
			r.Delete("/expenses/{expenseId}", expenseService.DeleteExpense)

			r.Put("/shares/{shareId}/status", shareService.UpdateStatus)
			r.Get("/shares/{shareId}/qr", qrHandler.GetShareQR)
			r.Post("/shares/payment-nonce", qrHandler.ResolvePaymentNonce)

			r.Get("/categories", categoryService.ListCategories)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		slog.Info("server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
