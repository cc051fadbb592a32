package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
)

type HTTPAuthType string

const (
	HTTPAuthType_None   HTTPAuthType = ""
	HTTPAuthType_Basic  HTTPAuthType = "basic"
	HTTPAuthType_Bearer HTTPAuthType = "bearer"
	HTTPAuthType_Header HTTPAuthType = "header"
	HTTPAuthType_Query  HTTPAuthType = "query"
)

// HTTPCredential is the decrypted payload of a generic http credential.
type HTTPCredential struct {
	AuthType        HTTPAuthType `json:"auth_type"`
	Username        string       `json:"username"`
	Password        string       `json:"password"`
	BearerToken     string       `json:"bearer_token"`
	QueryAuthKey    string       `json:"query_auth_key"`
	QueryAuthValue  string       `json:"query_auth_value"`
	HeaderAuthKey   string       `json:"header_auth_key"`
	HeaderAuthValue string       `json:"header_auth_value"`
}

// NewHTTPClient returns a client whose transport applies the credential's
// authentication to every request.
func NewHTTPClient(base http.RoundTripper, credential HTTPCredential, timeout time.Duration) (*http.Client, error) {
	if base == nil {
		base = http.DefaultTransport
	}

	client := &http.Client{
		Transport: base,
		Timeout:   timeout,
	}

	switch credential.AuthType {
	case HTTPAuthType_None:

	case HTTPAuthType_Basic:
		client.Transport = &basicAuthTransport{
			username: credential.Username,
			password: credential.Password,
			base:     base,
		}

	case HTTPAuthType_Bearer:
		client.Transport = &bearerAuthTransport{
			token: credential.BearerToken,
			base:  base,
		}

	case HTTPAuthType_Query:
		client.Transport = &queryAuthTransport{
			key:   credential.QueryAuthKey,
			value: credential.QueryAuthValue,
			base:  base,
		}

	case HTTPAuthType_Header:
		key := http.CanonicalHeaderKey(strings.TrimSpace(credential.HeaderAuthKey))
		if key == "" {
			return nil, domain.NewConfigurationError("header auth requires a header name")
		}

		client.Transport = &headerAuthTransport{
			key:   key,
			value: credential.HeaderAuthValue,
			base:  base,
		}

	default:
		return nil, domain.NewConfigurationError("invalid http auth type %q", credential.AuthType)
	}

	return client, nil
}

type basicAuthTransport struct {
	username string
	password string
	base     http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.username, t.password)

	return t.base.RoundTrip(req)
}

type bearerAuthTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.token)

	return t.base.RoundTrip(req)
}

type queryAuthTransport struct {
	key   string
	value string
	base  http.RoundTripper
}

func (t *queryAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())

	q := req.URL.Query()
	q.Set(t.key, t.value)
	req.URL.RawQuery = q.Encode()

	return t.base.RoundTrip(req)
}

type headerAuthTransport struct {
	key   string
	value string
	base  http.RoundTripper
}

func (t *headerAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.key == "" {
		return nil, fmt.Errorf("invalid header key")
	}

	req = req.Clone(req.Context())
	req.Header.Set(t.key, t.value)

	return t.base.RoundTrip(req)
}
