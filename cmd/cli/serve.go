package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/techwithparamesh/agent-app-sub006/internal/initialization"
	"github.com/techwithparamesh/agent-app-sub006/internal/server"
	"github.com/techwithparamesh/agent-app-sub006/internal/version"
)

func NewServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the trigger dispatcher and the webhook server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe()
		},
	}
}

func (a *app) runServe() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info().Str("version", version.GetVersion()).Msg("Starting flowcore")

	container, err := initialization.BuildContainer(ctx, a.config)
	if err != nil {
		return err
	}
	defer container.Close(context.Background())

	if err := container.Dispatcher.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := container.Dispatcher.Stop(); err != nil {
			log.Warn().Err(err).Msg("Failed to stop dispatcher")
		}
	}()

	app := server.NewHTTPServer(server.HTTPServerDependencies{
		WebhookController: container.WebhookController,
	})

	log.Info().Str("address", a.config.HTTP.Address).Msg("Webhook server listening")

	if err := app.Listen(a.config.HTTP.Address, fiber.ListenConfig{
		GracefulContext:       ctx,
		DisableStartupMessage: true,
	}); err != nil {
		log.Error().Err(err).Msg("HTTP server failed")
		return err
	}

	log.Info().Msg("flowcore stopped")

	return nil
}
