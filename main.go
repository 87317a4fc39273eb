package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"referral-service/handlers"
	"referral-service/middleware"
	"referral-service/models"
	"referral-service/services"
	"referral-service/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024, // 1MB — JSON-only API
	})

	// 🔐 GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	// Load allowed origins from environment variable
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Wallet{},
		&models.Referral{},
		&models.Ambassador{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	walletService := services.NewWalletService(db)
	referralService := services.NewReferralService(db, walletService)
	leaderboardService := services.NewLeaderboardService(db)
	ambassadorService := services.NewAmbassadorService(db)
	repairService := services.NewRepairService(db, walletService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Optional pull-based intake from the hosted signup service. The signup
	// frontends normally POST directly; the worker covers deployments where
	// they cannot reach this service.
	if signupServiceURL := os.Getenv("SIGNUP_SERVICE_URL"); signupServiceURL != "" {
		serviceToken := os.Getenv("REFERRAL_SERVICE_TOKEN")
		intakeWorker := workers.NewSignupIntakeWorker(walletService, referralService, signupServiceURL, serviceToken)
		intakeWorker.Start(ctx)
	}

	// Nightly repair sweep: nullify duplicated codes, regenerate flagged rows
	repairInterval := 24 * time.Hour
	if v := os.Getenv("REPAIR_INTERVAL"); v != "" {
		if parsed, perr := time.ParseDuration(v); perr == nil && parsed > 0 {
			repairInterval = parsed
		} else {
			log.Printf("⚠️  Invalid REPAIR_INTERVAL %q, using default 24h", v)
		}
	}
	repairService.StartRepairScheduler(repairInterval)

	handlers.SetupWalletRoutes(app, walletService, leaderboardService)
	handlers.SetupReferralRoutes(app, referralService, leaderboardService)
	handlers.SetupAdminRoutes(app, repairService, ambassadorService)

	port := os.Getenv("PORT")
	if port == "" {
		port = "5300"
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", port)
	log.Printf("✅ Repair sweep scheduled every %s", repairInterval)
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
