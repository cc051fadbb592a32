package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
)

const (
	HTTPActionType_Request domain.IntegrationActionType = "request"

	maxResponseBytes = 10 << 20
)

type HTTPIntegrationCreator struct {
	transport http.RoundTripper
	timeout   time.Duration
}

type HTTPIntegrationCreatorDeps struct {
	Transport http.RoundTripper
	Timeout   time.Duration
}

func NewHTTPIntegrationCreator(deps HTTPIntegrationCreatorDeps) domain.IntegrationCreator {
	return &HTTPIntegrationCreator{
		transport: deps.Transport,
		timeout:   deps.Timeout,
	}
}

// CreateIntegration works without a credential; one with an auth_type adds
// authentication to every request.
func (c *HTTPIntegrationCreator) CreateIntegration(ctx context.Context, p domain.CreateIntegrationParams) (domain.IntegrationExecutor, error) {
	credential := HTTPCredential{}

	if p.Credential.ID != "" {
		decoded, err := domain.DecodeCredentialPayload[HTTPCredential](p.Credential)
		if err != nil {
			return nil, err
		}

		credential = decoded
	}

	client, err := NewHTTPClient(c.transport, credential, c.timeout)
	if err != nil {
		return nil, err
	}

	integration := &HTTPIntegration{
		client: client,
	}

	integration.actionManager = domain.NewIntegrationActionManager(domain.IntegrationType_HTTP).
		Add(HTTPActionType_Request, integration.Request)

	return integration, nil
}

type HTTPIntegration struct {
	client        *http.Client
	actionManager *domain.IntegrationActionManager
}

// Execute treats an empty action id as a plain request.
func (i *HTTPIntegration) Execute(ctx context.Context, params domain.IntegrationInput) (domain.IntegrationOutput, error) {
	if params.ActionID == "" {
		params.ActionID = HTTPActionType_Request
	}

	return i.actionManager.Run(ctx, params)
}

type RequestParams struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Query   map[string]string `json:"query"`
	Body    any               `json:"body"`
}

func (i *HTTPIntegration) Request(ctx context.Context, input domain.IntegrationInput) (domain.IntegrationOutput, error) {
	p := RequestParams{}
	if err := input.BindParams(&p); err != nil {
		return domain.IntegrationOutput{}, err
	}

	if p.Method == "" {
		p.Method = http.MethodGet
	}
	p.Method = strings.ToUpper(p.Method)

	requestURL, err := url.Parse(p.URL)
	if err != nil || requestURL.Scheme == "" || requestURL.Host == "" {
		return domain.IntegrationOutput{}, domain.NewConfigurationError("invalid url %q", p.URL)
	}

	if len(p.Query) > 0 {
		query := requestURL.Query()
		for key, value := range p.Query {
			query.Set(key, value)
		}
		requestURL.RawQuery = query.Encode()
	}

	body, contentType, err := encodeBody(p.Body)
	if err != nil {
		return domain.IntegrationOutput{}, err
	}

	req, err := http.NewRequestWithContext(ctx, p.Method, requestURL.String(), body)
	if err != nil {
		return domain.IntegrationOutput{}, domain.NewConfigurationError("invalid request: %v", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	for key, value := range p.Headers {
		req.Header.Set(key, value)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return domain.IntegrationOutput{}, domain.NewAdapterError(domain.IntegrationType_HTTP, string(input.ActionID), 0, err)
	}
	defer resp.Body.Close()

	responseBody, err := decodeResponseBody(resp)
	if err != nil {
		return domain.IntegrationOutput{}, domain.NewAdapterError(domain.IntegrationType_HTTP, string(input.ActionID), resp.StatusCode, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return domain.IntegrationOutput{}, domain.NewAdapterError(domain.IntegrationType_HTTP, string(input.ActionID), resp.StatusCode, fmt.Errorf("%s %s returned %s", p.Method, requestURL.Redacted(), resp.Status))
	}

	headers := map[string]any{}
	for key := range resp.Header {
		headers[strings.ToLower(key)] = resp.Header.Get(key)
	}

	return domain.IntegrationOutput{Data: map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        responseBody,
	}}, nil
}

// encodeBody sends strings as they are and everything else as JSON.
func encodeBody(body any) (io.Reader, string, error) {
	switch value := body.(type) {
	case nil:
		return nil, "", nil
	case string:
		return strings.NewReader(value), "text/plain; charset=utf-8", nil
	default:
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, "", domain.NewConfigurationError("request body is not serializable: %v", err)
		}

		return bytes.NewReader(raw), "application/json", nil
	}
}

func decodeResponseBody(resp *http.Response) (any, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if len(raw) == 0 {
		return nil, nil
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))

	if mediaType == "application/json" || strings.HasSuffix(mediaType, "+json") {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			return decoded, nil
		}
	}

	return string(raw), nil
}
