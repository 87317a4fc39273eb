// middleware/auth.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// AdminContextMiddleware extracts the user identity and roles set by the
// Gateway and rejects requests whose role list does not include "admin".
// Applied to the /admin route group (repair runs, ambassador management).
func AdminContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-ID")
		rolesStr := c.Get("X-User-Roles")

		if userID == "" {
			log.Printf("❌ [ADMIN_CTX] X-User-ID missing on admin route: %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID — request must come through gateway with auth context",
			})
		}

		var roles []string
		for _, r := range strings.Split(rolesStr, ",") {
			r = strings.TrimSpace(r)
			if r != "" {
				roles = append(roles, r)
			}
		}

		isAdmin := false
		for _, r := range roles {
			if strings.EqualFold(r, "admin") {
				isAdmin = true
				break
			}
		}
		if !isAdmin {
			log.Printf("🚫 [ADMIN_CTX] UserID=%s lacks admin role on %s", userID, c.Path())
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "admin privileges required",
			})
		}

		c.Locals("user_id", userID)
		c.Locals("user_roles", roles)

		return c.Next()
	}
}
