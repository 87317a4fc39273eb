// middleware/gateway.go
package middleware

import (
	"log"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// GatewayAuthMiddleware validates the Bearer token from the Gateway. The
// signup frontends never talk to this service directly; every request must
// carry the shared service token the Gateway injects.
func GatewayAuthMiddleware() fiber.Handler {
	expectedToken := os.Getenv("REFERRAL_SERVICE_TOKEN")
	if expectedToken == "" {
		log.Fatal("❌ REFERRAL_SERVICE_TOKEN is not set — service cannot authenticate Gateway")
	}

	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			log.Printf("🚫 [GATEWAY_AUTH] Missing Authorization header for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "gateway authentication token missing",
			})
		}

		// Parse "Bearer <token>", falling back to the raw header value if the
		// Gateway sends the token without a prefix.
		token := strings.TrimPrefix(authHeader, "Bearer ")

		if token != expectedToken {
			log.Printf("❌ [GATEWAY_AUTH] Invalid token for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid gateway authentication token",
			})
		}

		return c.Next()
	}
}
