package server

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/techwithparamesh/agent-app-sub006/internal/controllers"
	"github.com/techwithparamesh/agent-app-sub006/internal/version"
)

const ServiceName = "flowcore"

type HTTPServerDependencies struct {
	WebhookController *controllers.WebhookController
	// DisableRequestLog drops the access log middleware, mostly for tests.
	DisableRequestLog bool
}

func NewHTTPServer(deps HTTPServerDependencies) *fiber.App {
	router := fiber.New(fiber.Config{
		AppName: ServiceName,
	})

	router.Use(recoverer.New())
	router.Use(cors.New())

	if !deps.DisableRequestLog {
		router.Use(logger.New())
	}

	router.Get("/health", func(c fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":    "healthy",
			"service":   ServiceName,
			"version":   version.GetVersion(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	router.All("/webhooks/workflow/:webhookID", deps.WebhookController.HandleWebhook)

	return router
}
