package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apexvest/backend/docs"
	"github.com/apexvest/backend/internal/audit"
	"github.com/apexvest/backend/internal/config"
	"github.com/apexvest/backend/internal/database"
	"github.com/apexvest/backend/internal/handlers"
	mW "github.com/apexvest/backend/internal/middleware"
	"github.com/apexvest/backend/internal/notify"
	"github.com/apexvest/backend/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title ApexVest Ledger API
// @version 1.0
// @description Account ledger, investments and copy trading backend
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env
	viper.ReadInConfig()        // read .env file

	viper.SetEnvPrefix("")

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
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "ApexVest Ledger API"
	docs.SwaggerInfo.Description = "Account ledger, investments and copy trading backend"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize infrastructure
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	ledgerCfg := config.LoadLedgerConfig()
	notifier := notify.NewPublisher(redisClient, db)
	auditLogger := audit.NewLogger(db)

	// Initialize services
	ledgerService := services.NewLedgerService(db, ledgerCfg, notifier, auditLogger)
	schedulerService := services.NewProfitAccrualService(db, redisClient, ledgerCfg)
	distributionService := services.NewDistributionService(db, ledgerCfg, notifier, auditLogger)
	copyTradingService := services.NewCopyTradingService(db, notifier)
	voucherService := services.NewVoucherService(db, notifier, auditLogger)
	authService := services.NewAuthService(db, redisClient)

	ledgerHandler := handlers.NewLedgerHandler(db, ledgerService, schedulerService)
	adminHandler := handlers.NewAdminHandler(ledgerService, distributionService)
	copyTradingHandler := handlers.NewCopyTradingHandler(db, copyTradingService)
	voucherHandler := handlers.NewVoucherHandler(voucherService)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/me", authService.GetUser)

			r.Get("/account", ledgerHandler.GetAccount)
			r.Get("/transactions", ledgerHandler.ListTransactions)
			r.Post("/transactions/{id}/dispute", ledgerHandler.FileDispute)

			r.Post("/deposits", ledgerHandler.RequestDeposit)
			r.Post("/withdrawals", ledgerHandler.RequestWithdrawal)
			r.Post("/transfers", ledgerHandler.Transfer)

			r.Post("/investments", ledgerHandler.Invest)
			r.Post("/investments/withdraw", ledgerHandler.RequestInvestmentWithdrawal)

			r.Get("/copytrading/subscriptions", copyTradingHandler.ListSubscriptions)
			r.Post("/copytrading/subscriptions", copyTradingHandler.Subscribe)
			r.Delete("/copytrading/subscriptions/{id}", copyTradingHandler.Unsubscribe)
			r.Put("/copytrading/subscriptions/{id}/settings", copyTradingHandler.UpdateSettings)

			r.Post("/vouchers", voucherHandler.Create)
			r.Post("/vouchers/redeem", voucherHandler.Redeem)
			r.Post("/vouchers/cancel", voucherHandler.Cancel)

			// Admin endpoints
			r.Group(func(r chi.Router) {
				r.Use(mW.AdminOnly)

				r.Post("/admin/deposits/{id}/approve", adminHandler.ApproveDeposit)
				r.Post("/admin/deposits/{id}/reject", adminHandler.RejectDeposit)
				r.Post("/admin/withdrawals/{id}/approve", adminHandler.ApproveWithdrawal)
				r.Post("/admin/withdrawals/{id}/reject", adminHandler.RejectWithdrawal)
				r.Post("/admin/investment-withdrawals/{id}/approve", adminHandler.ApproveInvestmentWithdrawal)
				r.Post("/admin/investment-withdrawals/{id}/reject", adminHandler.RejectInvestmentWithdrawal)
				r.Post("/admin/adjustments/balance", adminHandler.AdjustBalance)
				r.Post("/admin/adjustments/investment", adminHandler.AdjustInvestment)
				r.Post("/admin/kyc/{userId}/approve", adminHandler.ApproveKYC)
				r.Post("/admin/disputes/{id}/escalate", adminHandler.EscalateDispute)
				r.Post("/admin/disputes/{id}/resolve", adminHandler.ResolveDispute)
				r.Post("/admin/disputes/{id}/refund", adminHandler.RefundDispute)
				r.Post("/admin/copytrading/distribute", adminHandler.DistributeProfits)
			})
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
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
