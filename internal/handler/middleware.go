package handler

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

// ActorHeader carries the identity of the caller, set by the auth layer in
// front of the service.
const ActorHeader = "X-Actor-ID"

const anonymousActor = "anonymous"

// AdminAuth requires "Authorization: Bearer <token>" on every request. An
// empty token disables the check.
func AdminAuth(token string) fiber.Handler {
	want := []byte(token)
	return func(c *fiber.Ctx) error {
		if token == "" {
			return c.Next()
		}
		got, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}
		return c.Next()
	}
}

// actorID returns the caller identity for audit fields.
func actorID(c *fiber.Ctx) string {
	if actor := strings.TrimSpace(c.Get(ActorHeader)); actor != "" {
		return utils.CopyString(actor)
	}
	return anonymousActor
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok {
		return id
	}
	return c.Get(fiber.HeaderXRequestID)
}
