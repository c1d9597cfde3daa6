package authz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"jiradialog/internal/domain"
)

// ErrMalformedResponse is returned when the endpoint answers with something that is
// not an authorization result.
var ErrMalformedResponse = errors.New("malformed authorization response")

type credentialKey struct{}

// Credential is the caller's own credential, forwarded to the authorize endpoint.
type Credential struct {
	Bearer string
	APIKey string
}

func WithCredential(ctx context.Context, c Credential) context.Context {
	return context.WithValue(ctx, credentialKey{}, c)
}

func CredentialFromContext(ctx context.Context) (Credential, bool) {
	c, ok := ctx.Value(credentialKey{}).(Credential)
	return c, ok
}

// Client calls POST {endpoint} with {"base_url": ...} and expects {"success", "jwt"}.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient builds a client for the given absolute endpoint URL.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Endpoint joins a service base URL and the authorize path.
func Endpoint(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

type authorizeRequest struct {
	BaseURL string `json:"base_url"`
}

// Authorize returns Success=false for a logical refusal (including 401/403). Transport
// failures, other non-2xx statuses and malformed bodies are errors.
func (c *Client) Authorize(ctx context.Context, baseURL string) (domain.AuthResult, error) {
	data, err := json.Marshal(authorizeRequest{BaseURL: baseURL})
	if err != nil {
		return domain.AuthResult{}, fmt.Errorf("marshaling request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return domain.AuthResult{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if cred, ok := CredentialFromContext(ctx); ok {
		if cred.Bearer != "" {
			req.Header.Set("Authorization", "Bearer "+cred.Bearer)
		}
		if cred.APIKey != "" {
			req.Header.Set("X-Api-Key", cred.APIKey)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.AuthResult{}, fmt.Errorf("executing request POST %s: %w", c.endpoint, err)
	}
	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return domain.AuthResult{}, fmt.Errorf("reading response body: %w", readErr)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.AuthResult{Success: false}, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return domain.AuthResult{}, fmt.Errorf("unexpected status %d on POST %s: %s", resp.StatusCode, c.endpoint, string(body))
	}

	var res domain.AuthResult
	if err := json.Unmarshal(body, &res); err != nil {
		return domain.AuthResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if !res.Success {
		return domain.AuthResult{Success: false}, nil
	}
	if _, _, err := jwt.NewParser().ParseUnverified(res.JWT, jwt.MapClaims{}); err != nil {
		return domain.AuthResult{}, fmt.Errorf("%w: token: %v", ErrMalformedResponse, err)
	}
	return res, nil
}
