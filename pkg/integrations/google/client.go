// Package google holds the pieces shared by the Google Workspace integrations.
package google

import (
	"context"
	"errors"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
)

// ClientOptions authenticates with the credential's OAuth access token. A non
// empty endpoint replaces the service base URL.
func ClientOptions(ctx context.Context, credential domain.Credential, endpoint string) ([]option.ClientOption, error) {
	oauthCredential, err := domain.DecodeCredentialPayload[domain.OAuthCredential](credential)
	if err != nil {
		return nil, err
	}

	if oauthCredential.AccessToken == "" {
		return nil, domain.NewConfigurationError("credential %s has no access token", credential.ID)
	}

	token := &oauth2.Token{
		AccessToken:  oauthCredential.AccessToken,
		RefreshToken: oauthCredential.RefreshToken,
		TokenType:    "Bearer",
	}

	options := []option.ClientOption{
		option.WithHTTPClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))),
	}

	if endpoint != "" {
		options = append(options, option.WithEndpoint(endpoint))
	}

	return options, nil
}

// NewAdapterError wraps a Google API failure, keeping the HTTP status when the
// API reported one.
func NewAdapterError(integrationType domain.IntegrationType, actionID string, err error) error {
	statusCode := 0

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		statusCode = apiErr.Code
	}

	return domain.NewAdapterError(integrationType, actionID, statusCode, err)
}
