package jiradialogsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a minimal jiradialog HTTP API client for chat hosts.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  30 * time.Second,
	}
}

// Action types understood by the comment service.
const (
	OpenDialog          = "openDialog"
	PerformDialogAction = "performDialogAction"
	CloseDialog         = "closeDialog"
)

// CommentService is the name the comment-on-issue feature is dispatched under.
const CommentService = "commentService"

type Issue struct {
	Key     string `json:"key"`
	Summary string `json:"summary,omitempty"`
}

type Entity struct {
	BaseURL string `json:"baseUrl"`
	Issue   Issue  `json:"issue"`
}

// Action is the event a host delivers when the user clicks something.
type Action struct {
	Type   string `json:"type"`
	Entity Entity `json:"entity"`
	Label  string `json:"label,omitempty"`
}

// Dialog is a dialog currently shown to the caller.
type Dialog struct {
	DialogID  string         `json:"dialog_id"`
	Owner     string         `json:"owner"`
	Layout    string         `json:"layout"`
	Data      map[string]any `json:"data"`
	Options   map[string]any `json:"options"`
	Version   int64          `json:"version"`
	UpdatedAt string         `json:"updated_at"`
}

// DispatchResult is the service state and the caller's dialogs after an action.
type DispatchResult struct {
	InstanceID string   `json:"instance_id"`
	State      string   `json:"state"`
	Dialogs    []Dialog `json:"dialogs"`
}

// Dialog returns the dialog with id from the result, if shown.
func (r DispatchResult) Dialog(id string) (Dialog, bool) {
	for _, d := range r.Dialogs {
		if d.DialogID == id {
			return d, true
		}
	}
	return Dialog{}, false
}

type AuthResult struct {
	Success bool   `json:"success"`
	JWT     string `json:"jwt,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	Service    string         `json:"service"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Dispatch delivers an action to service.
func (c *Client) Dispatch(ctx context.Context, service string, action Action) (DispatchResult, error) {
	var resp DispatchResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("services/%s/actions", url.PathEscape(service)), action, &resp)
	return resp, err
}

// Input replaces the draft typed into service's dialog.
func (c *Client) Input(ctx context.Context, service, text string) (string, error) {
	var resp struct {
		State string `json:"state"`
	}
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("services/%s/input", url.PathEscape(service)), map[string]string{"text": text}, &resp)
	return resp.State, err
}

// Dialogs lists the dialogs currently shown to the caller.
func (c *Client) Dialogs(ctx context.Context) ([]Dialog, error) {
	var resp struct {
		Items []Dialog `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "dialogs", nil, &resp)
	return resp.Items, err
}

// Dialog fetches one shown dialog; a closed dialog is an *APIError with status 404.
func (c *Client) Dialog(ctx context.Context, id string) (Dialog, error) {
	var resp Dialog
	err := c.do(ctx, http.MethodGet, "dialogs/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Authorize opens an integration session for a Jira base URL.
func (c *Client) Authorize(ctx context.Context, jiraBaseURL string) (AuthResult, error) {
	var resp AuthResult
	err := c.do(ctx, http.MethodPost, "authorize", map[string]string{"base_url": jiraBaseURL}, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req.Header)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// DialogChange is one frame of the dialog stream. "closed" frames carry only the dialog id.
type DialogChange struct {
	Type   string `json:"type"`
	Dialog Dialog `json:"dialog"`
}

// Watch streams the caller's dialog changes to fn, starting with a "shown" frame for
// every dialog already shown. It returns nil once ctx is done, or the first error fn returns.
func (c *Client) Watch(ctx context.Context, fn func(DialogChange) error) error {
	target := c.base() + "/dialogs/stream"
	switch {
	case strings.HasPrefix(target, "https://"):
		target = "wss://" + strings.TrimPrefix(target, "https://")
	case strings.HasPrefix(target, "http://"):
		target = "ws://" + strings.TrimPrefix(target, "http://")
	}
	header := http.Header{}
	c.setAuth(header)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil && resp.StatusCode >= 300 {
			b, _ := io.ReadAll(resp.Body)
			return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		}
		return err
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()
	for {
		var msg DialogChange
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
}

func (c *Client) setAuth(h http.Header) {
	switch {
	case c.BearerToken != "":
		h.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		h.Set("X-Api-Key", c.APIKey)
	}
}

func (c *Client) base() string {
	basePath := c.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(basePath, "/")
}
