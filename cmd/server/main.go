// Package main is the entry point for the settlement API server. It wires
// the database, cache, bridge client, settlement engine and reconciliation
// loop, then serves the HTTP API until interrupted.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crest/internal/config"
	"crest/internal/repositories"
	"crest/internal/routes"
	"crest/internal/services/auth"
	"crest/internal/services/bridge"
	"crest/internal/services/pricing"
	"crest/internal/services/reconciler"
	"crest/internal/services/settlement"
	"crest/internal/services/wallet"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

func main() {
	config.LoadEnv()

	logger := newLogger()
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	db, err := repositories.InitDB()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	redisClient, cacheService := repositories.InitCache()
	defer cacheService.Close()

	settlementCfg := config.LoadSettlement()
	bridgeCfg := config.LoadBridge()

	userRepo := repositories.NewUserRepository(db)
	walletRepo := repositories.NewWalletRepository(db)
	transferRepo := repositories.NewTransferRepository(db)
	ledgerRepo := repositories.NewLedgerRepository(db)

	bridgeClient := bridge.NewClient(bridgeCfg)
	pricingService := pricing.NewService(config.GetEnv("PRICING_API_URL", ""), cacheService)

	authService := auth.NewService(userRepo)
	walletService := wallet.NewService(walletRepo, transferRepo, cacheService, pricingService)
	settlementService := settlement.NewService(
		transferRepo,
		ledgerRepo,
		walletRepo,
		bridgeClient,
		cacheService,
		nil,
		nil,
		settlementCfg,
	)

	loopCtx, cancelLoop := context.WithCancel(context.Background())
	loop := reconciler.New(settlementService, settlementCfg)
	loop.Start(loopCtx)

	app := fiber.New(fiber.Config{
		AppName:      "crest",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: config.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173"),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH",
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        config.GetIntEnv("RATE_LIMIT_MAX", 60),
		Expiration: time.Minute,
	}))

	routes.SetupRoutes(app, routes.Deps{
		DB:         db,
		Redis:      redisClient,
		Users:      userRepo,
		Wallets:    walletRepo,
		Auth:       authService,
		Wallet:     walletService,
		Settlement: settlementService,
	})

	go func() {
		addr := ":" + config.GetEnv("PORT", "8080")
		if err := app.Listen(addr); err != nil {
			zap.L().Fatal("Server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zap.L().Info("Shutting down")

	// Stop polling before the HTTP server so no transition commits mid
	// shutdown, then drain in-flight requests.
	cancelLoop()
	loop.Stop()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		zap.L().Error("Forced shutdown", zap.Error(err))
	}
}

func newLogger() *zap.Logger {
	if config.IsProduction() {
		logger, err := zap.NewProduction()
		if err != nil {
			log.Fatalf("Failed to build logger: %v", err)
		}
		return logger
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	return logger
}
