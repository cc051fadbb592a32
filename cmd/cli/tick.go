package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/techwithparamesh/agent-app-sub006/internal/initialization"
)

func NewTickCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Evaluate every active workflow's triggers once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			container, err := initialization.BuildContainer(ctx, a.config)
			if err != nil {
				return err
			}
			defer container.Close(context.Background())

			summary, err := container.Dispatcher.Tick(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "workflows=%d executions=%d failures=%d\n", summary.Workflows, summary.Executions, summary.Failures)

			return nil
		},
	}
}
