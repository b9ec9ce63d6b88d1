package middleware

import (
	"github.com/gabisonia/fiber-chat-proxy/apierror"
	"github.com/gabisonia/fiber-chat-proxy/metrics"
	"github.com/gofiber/fiber/v2"
)

// Outcomes records the terminal outcome of each chat request.
func Outcomes(collector *metrics.Collector) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		collector.RecordOutcome(outcomeOf(err))
		return err
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return metrics.OutcomeReplied
	}

	apiErr, _ := apierror.From(err)
	switch apiErr.Kind {
	case apierror.KindRateLimitExceeded:
		return metrics.OutcomeRejected
	case apierror.KindInvalidRequest, apierror.KindClientUnidentified, apierror.KindMethodNotAllowed:
		return metrics.OutcomeInvalid
	case apierror.KindUpstreamError:
		return metrics.OutcomeUpstreamError
	default:
		return metrics.OutcomeInternalError
	}
}
