package apierror

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Body is the JSON envelope of every error response.
type Body struct {
	Error string `json:"error"`
}

// Handler returns a fiber.ErrorHandler that renders errors as {"error": ...}.
// decorate runs before the body is written so response headers such as CORS
// survive error paths.
func Handler(logger *zap.Logger, decorate func(*fiber.Ctx)) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *fiber.Ctx, err error) error {
		apiErr, status := From(err)

		fields := []zap.Field{
			zap.String("kind", string(apiErr.Kind)),
			zap.Int("status", status),
			zap.String("path", c.Path()),
			zap.String("method", c.Method()),
		}
		if apiErr.Err != nil {
			fields = append(fields, zap.Error(apiErr.Err))
		}
		if status >= fiber.StatusInternalServerError {
			logger.Error("request failed", fields...)
		} else {
			logger.Debug("request rejected", fields...)
		}

		if decorate != nil {
			decorate(c)
		}
		return c.Status(status).JSON(Body{Error: apiErr.Message})
	}
}
