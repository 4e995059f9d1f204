// Package routes defines the API routing configuration.
package routes

import (
	"crest/internal/handlers"
	"crest/internal/middleware"
	"crest/internal/repositories"
	"crest/internal/services/auth"
	"crest/internal/services/settlement"
	"crest/internal/services/wallet"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps carries the already-wired services the routes expose. Services are
// built in main so the reconciler and the HTTP layer share one settlement
// service instance.
type Deps struct {
	DB         *gorm.DB
	Redis      *redis.Client
	Users      repositories.UserRepository
	Wallets    repositories.WalletRepository
	Auth       auth.Service
	Wallet     wallet.Service
	Settlement settlement.Service
}

// SetupRoutes configures all application routes.
func SetupRoutes(app *fiber.App, deps Deps) {
	authHandler := handlers.NewAuthHandler(deps.Auth, deps.Wallet)
	walletHandler := handlers.NewWalletHandler(deps.Wallet)
	transferHandler := handlers.NewTransferHandler(deps.Settlement, deps.Wallets)
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Redis)

	authMiddleware := middleware.NewAuthMiddleware(deps.Users)

	app.Get("/health", healthHandler.Check)

	api := app.Group("/api")

	api.Post("/register", authHandler.Register)
	api.Post("/login", authHandler.Login)
	api.Post("/refresh", authHandler.Refresh)

	authed := api.Group("", authMiddleware.Handler)
	authed.Post("/logout", authHandler.Logout)

	authed.Get("/wallet", walletHandler.GetWallet)
	authed.Get("/wallet/history", walletHandler.GetHistory)

	authed.Post("/deposits", transferHandler.CreateDeposit)
	authed.Get("/deposits/:id", transferHandler.GetDeposit)
	authed.Post("/withdrawals", transferHandler.CreateWithdrawal)
	authed.Get("/withdrawals/:id", transferHandler.GetWithdrawal)

	authed.Post("/transfers/:id/presentation", transferHandler.AttachPresentation)
}
