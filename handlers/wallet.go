// handlers/wallet.go
package handlers

import (
	"referral-service/services"

	"github.com/gofiber/fiber/v2"
)

func SetupWalletRoutes(app *fiber.App, walletService *services.WalletService, leaderboardService *services.LeaderboardService) {
	// Registration is open to every signup frontend (still behind Gateway auth)
	app.Post("/wallets", walletService.RegisterWalletHandler)
	app.Get("/wallets/:address", walletService.GetWalletHandler)
	app.Get("/wallets/:address/points", leaderboardService.WalletPointsHandler)
}
