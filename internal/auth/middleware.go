package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// LocalRunnerID is the fiber locals key holding the authenticated runner.
const LocalRunnerID = "runner_id"

// JWTMiddleware validates bearer tokens and stores runner_id in locals.
func JWTMiddleware(secret string) fiber.Handler {
	svc := NewService(secret)
	return func(c *fiber.Ctx) error {
		token := bearerFromHeader(c.Get("Authorization"))
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		runnerID, err := svc.ValidateAccessToken(token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}

		c.Locals(LocalRunnerID, runnerID)
		return c.Next()
	}
}

// RunnerID reads the runner stored by JWTMiddleware.
func RunnerID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalRunnerID).(string)
	return id
}

func bearerFromHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
