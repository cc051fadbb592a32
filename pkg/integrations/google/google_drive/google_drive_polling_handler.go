package googledrive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/drive/v3"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
	"github.com/techwithparamesh/agent-app-sub006/pkg/integrations/google"
)

const (
	EventType_FileCreated = "file_created"
	EventType_FileUpdated = "file_updated"

	pollPageSize = 50
	fileFields   = "files(id,name,mimeType,createdTime,modifiedTime,webViewLink,parents,size)"
)

// PollSettings are read from the poll trigger's settings map.
type PollSettings struct {
	FolderID string `json:"folder_id"`
}

type GoogleDrivePollingHandler struct {
	// endpoint overrides the Drive API base URL; empty means production.
	endpoint string
}

type GoogleDrivePollingHandlerDeps struct {
	Endpoint string
}

func NewGoogleDrivePollingHandler(deps GoogleDrivePollingHandlerDeps) domain.IntegrationPoller {
	return &GoogleDrivePollingHandler{
		endpoint: deps.Endpoint,
	}
}

func (h *GoogleDrivePollingHandler) Poll(ctx context.Context, p domain.PollParams) (domain.PollResult, error) {
	settings, err := domain.DecodePollSettings[PollSettings](p.Config)
	if err != nil {
		return domain.PollResult{}, err
	}

	eventType := p.Config.EventType
	if eventType == "" {
		eventType = EventType_FileCreated
	}

	if eventType != EventType_FileCreated && eventType != EventType_FileUpdated {
		return domain.PollResult{}, domain.NewConfigurationError("unsupported google drive event type %q", eventType)
	}

	service, err := newDriveService(ctx, p.Credential, h.endpoint)
	if err != nil {
		return domain.PollResult{}, err
	}

	// Oldest first from the watermark: CollectNewEvents emits the oldest items and
	// the watermark only moves up to them, so anything past this page is picked up
	// by the next poll.
	files, err := service.Files.List().
		Q(buildQuery(settings, eventType, p.State.LastSeenAt)).
		OrderBy(orderField(eventType)).
		Fields(fileFields).
		PageSize(pollPageSize).
		Context(ctx).
		Do()
	if err != nil {
		return domain.PollResult{}, google.NewAdapterError(domain.IntegrationType_Drive, eventType, err)
	}

	candidates := make([]domain.PollEvent, 0, len(files.Files))

	for _, file := range files.Files {
		event, err := toPollEvent(file, eventType)
		if err != nil {
			log.Warn().Err(err).Str("workflowID", p.WorkflowID).Str("fileID", file.Id).Msg("Skipping drive file with unreadable timestamp")
			continue
		}

		candidates = append(candidates, event)
	}

	events, nextState := domain.CollectNewEvents(p.State, candidates, p.Now, p.MaxEvents)

	return domain.PollResult{
		Events:    events,
		NextState: nextState,
	}, nil
}

// buildQuery selects non trashed files, narrowed to a folder and to items at or
// after the watermark when there is one.
func buildQuery(settings PollSettings, eventType string, since time.Time) string {
	clauses := []string{"trashed = false"}

	if settings.FolderID != "" {
		clauses = append(clauses, fmt.Sprintf("'%s' in parents", escapeQueryValue(settings.FolderID)))
	}

	if !since.IsZero() {
		clauses = append(clauses, fmt.Sprintf("%s >= '%s'", orderField(eventType), since.UTC().Format(time.RFC3339)))
	}

	return strings.Join(clauses, " and ")
}

func orderField(eventType string) string {
	if eventType == EventType_FileUpdated {
		return "modifiedTime"
	}

	return "createdTime"
}

func escapeQueryValue(value string) string {
	return strings.ReplaceAll(value, "'", `\'`)
}

func toPollEvent(file *drive.File, eventType string) (domain.PollEvent, error) {
	timestamp := file.CreatedTime
	id := file.Id

	if eventType == EventType_FileUpdated {
		timestamp = file.ModifiedTime
		// every modification of the same file is a separate event
		id = file.Id + "@" + file.ModifiedTime
	}

	occurredAt, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return domain.PollEvent{}, err
	}

	return domain.PollEvent{
		ID:         id,
		OccurredAt: occurredAt,
		Data: map[string]any{
			"file": fileToMap(file),
		},
	}, nil
}

func fileToMap(file *drive.File) map[string]any {
	parents := file.Parents
	if parents == nil {
		parents = []string{}
	}

	return map[string]any{
		"id":           file.Id,
		"name":         file.Name,
		"mimeType":     file.MimeType,
		"createdTime":  file.CreatedTime,
		"modifiedTime": file.ModifiedTime,
		"webViewLink":  file.WebViewLink,
		"parents":      parents,
		"size":         file.Size,
	}
}
