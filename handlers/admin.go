// handlers/admin.go
package handlers

import (
	"referral-service/middleware"
	"referral-service/services"

	"github.com/gofiber/fiber/v2"
)

func SetupAdminRoutes(app *fiber.App, repairService *services.RepairService, ambassadorService *services.AmbassadorService) {
	// 🔒 Admin-only routes — repair runs and ambassador management
	admin := app.Group("/admin", middleware.AdminContextMiddleware())

	admin.Post("/repair", repairService.RunRepairHandler)

	admin.Post("/ambassadors", ambassadorService.CreateAmbassador)
	admin.Get("/ambassadors", ambassadorService.ListAmbassadors)
	admin.Patch("/ambassadors/:id", ambassadorService.UpdateAmbassador)
	admin.Delete("/ambassadors/:id", ambassadorService.DeleteAmbassador)
}
