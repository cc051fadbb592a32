package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/techwithparamesh/agent-app-sub006/internal/initialization"
	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
	"github.com/techwithparamesh/agent-app-sub006/pkg/domain/executor"
)

func NewRunCommand(a *app) *cobra.Command {
	var (
		data    string
		history int
	)

	cmd := &cobra.Command{
		Use:   "run <workflowID>",
		Short: "Run a workflow once with a manual trigger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			triggerData := map[string]any{}
			if data != "" {
				if err := json.Unmarshal([]byte(data), &triggerData); err != nil {
					return fmt.Errorf("--data must be a JSON object: %w", err)
				}
			}

			container, err := initialization.BuildContainer(ctx, a.config)
			if err != nil {
				return err
			}
			defer container.Close(context.Background())

			workflow, err := container.WorkflowStore.GetWorkflow(ctx, args[0])
			if err != nil {
				return err
			}

			execution, err := container.ExecutorService.Run(ctx, executor.RunParams{
				Workflow:    workflow,
				TriggerKind: domain.TriggerKindManual,
				TriggerData: triggerData,
			})
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")

			if err := encoder.Encode(execution); err != nil {
				return err
			}

			if history > 0 {
				executions, err := container.ExecutionStore.ListExecutions(ctx, workflow.ID, history)
				if err != nil {
					return err
				}

				for _, past := range executions {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%dms\n", past.ID, past.Status, past.CreatedAt.Format(time.RFC3339), past.DurationMs)
				}
			}

			if execution.Status == domain.ExecutionStatusError {
				return fmt.Errorf("execution %s failed: %s", execution.ID, execution.ErrorMessage)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&data, "data", "", "Trigger data as a JSON object")
	cmd.Flags().IntVar(&history, "history", 0, "Also list this many recent executions of the workflow")

	return cmd
}
