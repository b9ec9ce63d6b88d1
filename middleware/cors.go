package middleware

import "github.com/gofiber/fiber/v2"

// CORS allowance sent on every response.
const (
	AllowOrigin  = "*"
	AllowMethods = "POST, OPTIONS"
	AllowHeaders = "Content-Type"
)

// SetCORSHeaders writes the allowance headers to the response.
func SetCORSHeaders(c *fiber.Ctx) {
	c.Set(fiber.HeaderAccessControlAllowOrigin, AllowOrigin)
	c.Set(fiber.HeaderAccessControlAllowMethods, AllowMethods)
	c.Set(fiber.HeaderAccessControlAllowHeaders, AllowHeaders)
}

// CORS answers preflight probes with 204 before any other handler runs and
// decorates every other response. Unlike fiber's cors middleware it does not
// depend on an Origin header being present.
func CORS() fiber.Handler {
	return func(c *fiber.Ctx) error {
		SetCORSHeaders(c)
		if c.Method() == fiber.MethodOptions {
			c.Status(fiber.StatusNoContent)
			return nil
		}
		return c.Next()
	}
}
