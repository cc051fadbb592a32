package googledrive

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/drive/v3"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
	"github.com/techwithparamesh/agent-app-sub006/pkg/integrations/google"
)

const (
	IntegrationActionType_ListFiles domain.IntegrationActionType = "list_files"
	IntegrationActionType_GetFile   domain.IntegrationActionType = "get_file"
)

type GoogleDriveIntegrationCreator struct {
	endpoint string
}

func NewGoogleDriveIntegrationCreator(deps GoogleDrivePollingHandlerDeps) domain.IntegrationCreator {
	return &GoogleDriveIntegrationCreator{
		endpoint: deps.Endpoint,
	}
}

func (c *GoogleDriveIntegrationCreator) CreateIntegration(ctx context.Context, p domain.CreateIntegrationParams) (domain.IntegrationExecutor, error) {
	service, err := newDriveService(ctx, p.Credential, c.endpoint)
	if err != nil {
		return nil, err
	}

	integration := &GoogleDriveIntegration{
		driveService: service,
	}

	integration.actionManager = domain.NewIntegrationActionManager(domain.IntegrationType_Drive).
		Add(IntegrationActionType_ListFiles, integration.ListFiles).
		Add(IntegrationActionType_GetFile, integration.GetFile)

	return integration, nil
}

type GoogleDriveIntegration struct {
	driveService  *drive.Service
	actionManager *domain.IntegrationActionManager
}

func (i *GoogleDriveIntegration) Execute(ctx context.Context, params domain.IntegrationInput) (domain.IntegrationOutput, error) {
	return i.actionManager.Run(ctx, params)
}

type ListFilesParams struct {
	FolderID string `json:"folder_id"`
	Query    string `json:"query"`
	Limit    int64  `json:"limit"`
}

func (i *GoogleDriveIntegration) ListFiles(ctx context.Context, input domain.IntegrationInput) (domain.IntegrationOutput, error) {
	params := ListFilesParams{}
	if err := input.BindParams(&params); err != nil {
		return domain.IntegrationOutput{}, err
	}

	if params.Limit <= 0 {
		params.Limit = pollPageSize
	}

	query := buildQuery(PollSettings{FolderID: params.FolderID}, EventType_FileCreated, time.Time{})
	if params.Query != "" {
		query = fmt.Sprintf("%s and (%s)", query, params.Query)
	}

	files, err := i.driveService.Files.List().
		Q(query).
		Fields(fileFields).
		PageSize(params.Limit).
		Context(ctx).
		Do()
	if err != nil {
		return domain.IntegrationOutput{}, google.NewAdapterError(domain.IntegrationType_Drive, string(input.ActionID), err)
	}

	result := make([]any, 0, len(files.Files))
	for _, file := range files.Files {
		result = append(result, fileToMap(file))
	}

	return domain.IntegrationOutput{Data: map[string]any{"files": result}}, nil
}

type GetFileParams struct {
	FileID string `json:"file_id"`
}

func (i *GoogleDriveIntegration) GetFile(ctx context.Context, input domain.IntegrationInput) (domain.IntegrationOutput, error) {
	params := GetFileParams{}
	if err := input.BindParams(&params); err != nil {
		return domain.IntegrationOutput{}, err
	}

	if params.FileID == "" {
		return domain.IntegrationOutput{}, domain.NewConfigurationError("file_id is required")
	}

	file, err := i.driveService.Files.Get(params.FileID).
		Fields("id,name,mimeType,createdTime,modifiedTime,webViewLink,parents,size").
		Context(ctx).
		Do()
	if err != nil {
		return domain.IntegrationOutput{}, google.NewAdapterError(domain.IntegrationType_Drive, string(input.ActionID), err)
	}

	return domain.IntegrationOutput{Data: fileToMap(file)}, nil
}

func newDriveService(ctx context.Context, credential domain.Credential, endpoint string) (*drive.Service, error) {
	options, err := google.ClientOptions(ctx, credential, endpoint)
	if err != nil {
		return nil, err
	}

	service, err := drive.NewService(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create google drive service: %w", err)
	}

	return service, nil
}
