package middleware

import (
	"math"
	"strconv"

	"github.com/gabisonia/fiber-chat-proxy/apierror"
	"github.com/gabisonia/fiber-chat-proxy/strategies"
	"github.com/gofiber/fiber/v2"
)

const admissionKey = "rate_limit_admission"

// RateLimitingMiddleware creates a Fiber middleware that applies rate limiting
// using the provided strategy and client ID resolver function.
//
// Parameters:
//   - strategy: RateLimitStrategy that defines how rate limits are enforced.
//   - clientIdResolver: function to extract a unique client ID from the request.
//
// Returns:
//   - fiber.Handler: the middleware function that checks rate limits.
//
// A request without a client ID fails with ClientUnidentified (400). If the
// client exceeds the allowed rate, the middleware fails with
// RateLimitExceeded (429) and sets Retry-After from the strategy. Otherwise the admission is
// stored on the context for the downstream handler, which must Commit it
// once the request has actually been served.
func RateLimitingMiddleware(strategy strategies.RateLimitStrategy, clientIdResolver func(*fiber.Ctx) string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientId := clientIdResolver(c)
		if clientId == "" {
			return apierror.ClientUnidentified()
		}

		admission, err := strategy.IsRequestAllowed(c.UserContext(), clientId)
		if err != nil {
			return apierror.Internal(err)
		}

		// Remaining is advertised as if this request has been served.
		remaining := admission.Remaining()
		if admission.Allowed && remaining > 0 {
			remaining--
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(admission.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(admission.ResetAt.Unix(), 10))

		if !admission.Allowed {
			wait, err := strategy.RetryAfter(c.UserContext(), clientId)
			if err != nil {
				return apierror.Internal(err)
			}
			if wait > 0 {
				seconds := int64(math.Ceil(wait.Seconds()))
				c.Set(fiber.HeaderRetryAfter, strconv.FormatInt(seconds, 10))
			}
			return apierror.RateLimitExceeded()
		}

		c.Locals(admissionKey, admission)
		return c.Next()
	}
}

// AdmissionFrom returns the admission stored by RateLimitingMiddleware.
func AdmissionFrom(c *fiber.Ctx) (*strategies.Admission, bool) {
	admission, ok := c.Locals(admissionKey).(*strategies.Admission)
	return admission, ok && admission != nil
}
