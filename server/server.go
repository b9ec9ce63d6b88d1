// Package server assembles the fiber application serving /chat.
package server

import (
	"context"
	"time"

	"github.com/gabisonia/fiber-chat-proxy/apierror"
	"github.com/gabisonia/fiber-chat-proxy/config"
	"github.com/gabisonia/fiber-chat-proxy/handler"
	"github.com/gabisonia/fiber-chat-proxy/metrics"
	"github.com/gabisonia/fiber-chat-proxy/middleware"
	"github.com/gabisonia/fiber-chat-proxy/strategies"
	"github.com/gabisonia/fiber-chat-proxy/upstream"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Pinger reports backend reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators injected into the server. Metrics, Health and
// Logger are optional.
type Deps struct {
	Strategy  strategies.RateLimitStrategy
	Completer upstream.Completer
	Metrics   *metrics.Collector
	Health    Pinger
	Logger    *zap.Logger
}

// Server wraps the fiber application and its listen address.
type Server struct {
	app    *fiber.App
	addr   string
	logger *zap.Logger
}

// New builds the application from configuration and dependencies.
func New(cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:               "chatproxy",
		DisableStartupMessage: true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		BodyLimit:             cfg.Server.BodyLimit,
		ErrorHandler:          apierror.Handler(logger, middleware.SetCORSHeaders),
	})

	// Order matters: the logger resolves chain errors, so recover sits
	// inside it to turn panics into logged 500s.
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(middleware.RequestLogger(logger))
	app.Use(fiberrecover.New())
	app.Use(middleware.CORS())

	s := &Server{app: app, addr: cfg.Server.Addr(), logger: logger}
	s.registerRoutes(cfg, deps)
	return s
}

func (s *Server) registerRoutes(cfg *config.Config, deps Deps) {
	chat := handler.NewChatHandler(deps.Strategy, deps.Completer, deps.Metrics, s.logger)
	limiter := middleware.RateLimitingMiddleware(deps.Strategy, middleware.ForwardedForResolver(cfg.Client.FallbackRemoteAddr))

	s.app.Post("/chat", middleware.Outcomes(deps.Metrics), limiter, chat.Handle)
	s.app.All("/chat", middleware.Outcomes(deps.Metrics), handler.MethodNotAllowed)

	s.app.Get("/healthz", healthHandler(deps.Health))
	if cfg.Metrics.Enabled && deps.Metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics.Handler()))
	}
}

func healthHandler(pinger Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if pinger != nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
			defer cancel()
			if err := pinger.Ping(ctx); err != nil {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
			}
		}
		return c.JSON(fiber.Map{"status": "ok"})
	}
}

// App exposes the fiber application for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.addr))
	return s.app.Listen(s.addr)
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.app.ShutdownWithContext(ctx)
}
