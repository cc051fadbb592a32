package controllers

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/clbanning/mxj/v2"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
	"github.com/techwithparamesh/agent-app-sub006/pkg/domain/executor"
)

// WebhookController turns inbound requests on a workflow's webhook URL into
// executions.
type WebhookController struct {
	workflowStore       domain.WorkflowStore
	executorService     executor.WorkflowExecutorService
	integrationSelector domain.IntegrationSelector
}

type WebhookControllerDependencies struct {
	WorkflowStore       domain.WorkflowStore
	ExecutorService     executor.WorkflowExecutorService
	IntegrationSelector domain.IntegrationSelector
}

func NewWebhookController(deps WebhookControllerDependencies) *WebhookController {
	return &WebhookController{
		workflowStore:       deps.WorkflowStore,
		executorService:     deps.ExecutorService,
		integrationSelector: deps.IntegrationSelector,
	}
}

func skipped(ctx fiber.Ctx, reason string) error {
	return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "skipped",
		"reason": reason,
	})
}

func (c *WebhookController) HandleWebhook(ctx fiber.Ctx) error {
	webhookID := ctx.Params("webhookID")

	workflow, err := c.workflowStore.GetWorkflowByWebhookID(ctx.Context(), webhookID)
	if err != nil {
		if errors.Is(err, domain.ErrWorkflowNotFound) {
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "webhook not found",
			})
		}

		log.Error().Err(err).Str("webhookID", webhookID).Msg("Failed to look up webhook workflow")

		return fiber.NewError(fiber.StatusInternalServerError, "failed to look up webhook")
	}

	if !workflow.IsActive {
		return skipped(ctx, "workflow inactive")
	}

	trigger, ok := workflow.TriggerNode()
	if !ok {
		return skipped(ctx, "workflow has no trigger node")
	}

	kind := workflow.ResolveTriggerKind(trigger)
	if kind != "" && kind != domain.TriggerKindWebhook {
		return skipped(ctx, "workflow is not webhook triggered")
	}

	request := NewWebhookRequest(ctx)

	eventType := ""

	triggerConfig, _ := trigger.TriggerConfig()
	if filterConfig := triggerConfig.Webhook; filterConfig != nil && (filterConfig.Provider != "" || filterConfig.Event != "" || filterConfig.SigningSecret != "") {
		provider := filterConfig.Provider
		if provider == "" {
			provider = domain.IntegrationType_Webhook
		}

		filter, err := c.integrationSelector.SelectWebhookFilter(ctx.Context(), domain.SelectIntegrationParams{
			IntegrationType: provider,
		})
		if err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		// Only a failed signature is refused. Deliveries the filter cannot read are
		// skipped like non-matching ones so senders do not retry them.
		match, err := filter.Match(ctx.Context(), request, *filterConfig)
		if errors.Is(err, domain.ErrWebhookSignature) {
			log.Warn().Err(err).Str("workflowID", workflow.ID).Str("provider", string(provider)).Msg("Webhook rejected")

			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		if err != nil {
			log.Info().Err(err).Str("workflowID", workflow.ID).Str("provider", string(provider)).Msg("Webhook delivery not understood by filter")

			return skipped(ctx, "delivery does not match trigger filter")
		}

		if !match.Matched {
			return skipped(ctx, "event type does not match trigger")
		}

		eventType = match.EventType
	}

	triggerData := map[string]any{
		"headers":   request.Headers,
		"query":     request.Query,
		"body":      parseBody(request.Headers["content-type"], request.Body),
		"method":    request.Method,
		"webhookId": webhookID,
	}

	if eventType != "" {
		triggerData["eventType"] = eventType
	}

	execution, err := c.executorService.Run(ctx.Context(), executor.RunParams{
		Workflow:    workflow,
		TriggerKind: domain.TriggerKindWebhook,
		TriggerData: triggerData,
	})
	if err != nil {
		log.Error().Err(err).Str("workflowID", workflow.ID).Msg("Failed to run webhook execution")

		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":      "error",
			"executionId": execution.ID,
			"error":       err.Error(),
		})
	}

	if execution.Status == domain.ExecutionStatusError {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":      "error",
			"executionId": execution.ID,
			"error":       execution.ErrorMessage,
		})
	}

	return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":      "success",
		"executionId": execution.ID,
		"output":      execution.OutputData,
	})
}

// NewWebhookRequest copies the parts of the request filters and executions need.
// Repeated headers are joined with ", ".
func NewWebhookRequest(ctx fiber.Ctx) domain.WebhookRequest {
	headers := map[string]string{}
	for key, values := range ctx.GetReqHeaders() {
		headers[strings.ToLower(key)] = strings.Join(values, ", ")
	}

	query := map[string]string{}
	for key, value := range ctx.Queries() {
		query[key] = value
	}

	return domain.WebhookRequest{
		Method:  ctx.Method(),
		Headers: headers,
		Query:   query,
		Body:    append([]byte(nil), ctx.Body()...),
	}
}

// parseBody decodes JSON and XML payloads; anything else is passed on as text.
func parseBody(contentType string, body []byte) any {
	if len(body) == 0 {
		return nil
	}

	if strings.Contains(contentType, "xml") {
		if parsed, err := mxj.NewMapXml(body); err == nil {
			return map[string]any(parsed)
		}
	}

	var parsed any
	if err := json.Unmarshal(body, &parsed); err == nil {
		return parsed
	}

	return string(body)
}
