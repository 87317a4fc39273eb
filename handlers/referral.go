// handlers/referral.go
package handlers

import (
	"referral-service/services"

	"github.com/gofiber/fiber/v2"
)

func SetupReferralRoutes(app *fiber.App, referralService *services.ReferralService, leaderboardService *services.LeaderboardService) {
	app.Post("/referrals", referralService.RecordReferralHandler)
	app.Get("/referrals/count/:code", referralService.CountHandler)
	app.Get("/leaderboard", leaderboardService.TopReferrersHandler)
}
