package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

// ForwardedForResolver returns a client ID resolver keyed on X-Forwarded-For.
//
// Parameters:
//   - fallbackToRemote: use the socket address when the header is missing.
//
// Returns:
//   - func(*fiber.Ctx) string: the resolver; an empty result means the
//     client could not be identified.
//
// Only the first entry of a chained header is used, which is the original
// client as reported by the outermost proxy.
func ForwardedForResolver(fallbackToRemote bool) func(*fiber.Ctx) string {
	return func(c *fiber.Ctx) string {
		header := c.Get(fiber.HeaderXForwardedFor)
		first, _, _ := strings.Cut(header, ",")
		if clientId := strings.TrimSpace(first); clientId != "" {
			return utils.CopyString(clientId)
		}

		if fallbackToRemote {
			return utils.CopyString(c.IP())
		}
		return ""
	}
}
