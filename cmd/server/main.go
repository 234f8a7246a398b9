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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/liquidgold/wallet/docs"
	"github.com/liquidgold/wallet/internal/config"
	"github.com/liquidgold/wallet/internal/database"
	"github.com/liquidgold/wallet/internal/handlers"
	mW "github.com/liquidgold/wallet/internal/middleware"
	"github.com/liquidgold/wallet/internal/services"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title Liquid Gold Wallet API
// @version 1.0
// @description Personal digital wallet: ledger, savings goals, scheduled payments, split bills and rewards
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()
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
	viper.BindEnv("wallet.signup_bonus", "WALLET_SIGNUP_BONUS")
	viper.BindEnv("wallet.deposit_max", "WALLET_DEPOSIT_MAX")
	viper.BindEnv("wallet.transfer_limit", "WALLET_TRANSFER_LIMIT")
	viper.BindEnv("wallet.fee_basis_points", "WALLET_FEE_BASIS_POINTS")
	viper.BindEnv("wallet.fee_threshold", "WALLET_FEE_THRESHOLD")
	viper.BindEnv("wallet.system_fee_account", "WALLET_SYSTEM_FEE_ACCOUNT")
	viper.BindEnv("scheduler.spec", "SCHEDULER_SPEC")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "Liquid Gold Wallet API"
	docs.SwaggerInfo.Description = "Personal digital wallet API"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	cfg := config.LoadWalletConfig()

	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Core services
	auditRecorder := services.NewAuditRecorder(db)
	notificationService := services.NewNotificationService(db, redisClient)
	dispatcher := services.NewDispatcher(auditRecorder, notificationService)
	gamificationService := services.NewGamificationService(db)
	ledgerService := services.NewLedgerService(db, cfg, gamificationService, auditRecorder, dispatcher)
	accountService := services.NewAccountService(db, cfg, ledgerService, gamificationService, dispatcher)
	savingsService := services.NewSavingsService(db, cfg, ledgerService, gamificationService, dispatcher)
	scheduledService := services.NewScheduledService(db, cfg, ledgerService, gamificationService, dispatcher)
	splitBillService := services.NewSplitBillService(db, cfg, ledgerService, gamificationService, dispatcher)
	budgetService := services.NewBudgetService(db)
	transactionService := services.NewTransactionService(db)
	qrService := services.NewQRService(redisClient, cfg)
	qrHandler := handlers.NewQRHandler(qrService, accountService)

	// Scheduled payment evaluation loop
	scheduler := services.NewScheduler(scheduledService)
	if err := scheduler.Start(cfg.SchedulerSpec); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer scheduler.Stop()

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
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
		// Public: the auth boundary exchanges a verified identity for a session
		r.Post("/session", accountService.CreateSession)

		// Protected endpoints
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/me", accountService.GetProfile)
			r.Get("/balance", accountService.GetBalance)
			r.Get("/lookup", accountService.LookupRecipient)
			r.Delete("/account", accountService.DeactivateAccount)
			r.Get("/activity", auditRecorder.GetActivity)

			r.Post("/deposit", ledgerService.DepositFunds)
			r.Post("/withdraw", ledgerService.WithdrawFunds)
			r.Post("/transfer", ledgerService.TransferFunds)

			r.Get("/transactions", transactionService.GetTransactions)
			r.Get("/analytics", transactionService.GetAnalytics)

			r.Get("/savings", savingsService.ListSavingsGoals)
			r.Post("/savings", savingsService.CreateSavingsGoal)
			r.Post("/savings/{id}/deposit", savingsService.DepositToSavingsGoal)
			r.Post("/savings/{id}/withdraw", savingsService.WithdrawFromSavingsGoal)
			r.Delete("/savings/{id}", savingsService.DeleteSavingsGoal)

			r.Get("/scheduled", scheduledService.ListScheduledPayments)
			r.Post("/scheduled", scheduledService.CreateScheduledPayment)
			r.Delete("/scheduled/{id}", scheduledService.CancelScheduledPayment)

			r.Get("/split", splitBillService.ListSplitBills)
			r.Post("/split", splitBillService.CreateSplitBill)
			r.Post("/split/{id}/pay", splitBillService.PaySplitShare)

			r.Get("/budgets", budgetService.ListBudgets)
			r.Put("/budgets/{id}", budgetService.UpdateBudget)

			r.Get("/notifications", notificationService.ListNotifications)
			r.Post("/notifications/read", notificationService.MarkNotificationsRead)
			r.Post("/notifications/{id}/read", notificationService.MarkNotificationRead)

			r.Get("/leaderboard", gamificationService.GetLeaderboard)

			r.Post("/qr/generate", qrHandler.GenerateQR)
			r.Post("/qr/resolve", qrHandler.ResolveQR)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

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
