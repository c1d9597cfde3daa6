package server

import (
	"encoding/json"

	"jiradialog/internal/domain"
	"jiradialog/internal/engine"
	"jiradialog/internal/jira"
	"jiradialog/internal/jira/webhook"
)

// Request payloads

type IssueRequest struct {
	Key     string `json:"key"`
	Summary string `json:"summary,omitempty"`
}

type EntityRequest struct {
	BaseURL string       `json:"baseUrl"`
	Issue   IssueRequest `json:"issue"`
}

// ActionRequest mirrors the chat host's action event. Type is free-form: unknown
// types are dispatched and answered with the error dialog.
type ActionRequest struct {
	Type   string        `json:"type" example:"openDialog"`
	Entity EntityRequest `json:"entity"`
	Label  string        `json:"label,omitempty"`
}

func (r ActionRequest) event() domain.ActionEvent {
	return domain.ActionEvent{
		Type: domain.ActionType(r.Type),
		Entity: domain.Entity{
			BaseURL: r.Entity.BaseURL,
			Issue:   domain.Issue{Key: r.Entity.Issue.Key, Summary: r.Entity.Issue.Summary},
		},
		Label: r.Label,
	}
}

type InputRequest struct {
	Text string `json:"text"`
}

type AuthorizeRequest struct {
	BaseURL string `json:"base_url" example:"https://jira.example.com"`
}

type CreateCommentRequest struct {
	Body    string `json:"body"`
	BaseURL string `json:"base_url,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

// Response payloads

type DialogResponse struct {
	DialogID  string         `json:"dialog_id"`
	Owner     string         `json:"owner"`
	Layout    string         `json:"layout"`
	Data      map[string]any `json:"data" jsonschema:"type=object,additionalProperties=true"`
	Options   map[string]any `json:"options" jsonschema:"type=object,additionalProperties=true"`
	Version   int64          `json:"version"`
	UpdatedAt string         `json:"updated_at" format:"date-time"`
}

type DispatchResponse struct {
	InstanceID string           `json:"instance_id"`
	State      string           `json:"state" enum:"closed,authorizing,open,open_error,submitting,success_shown"`
	Dialogs    []DialogResponse `json:"dialogs"`
}

type InputResponse struct {
	State string `json:"state"`
}

type DialogListResponse struct {
	Items []DialogResponse `json:"items"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	Service    string         `json:"service,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload" jsonschema:"type=object,additionalProperties=true"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type MeResponse struct {
	ActorID string `json:"actor_id"`
	Source  string `json:"source" enum:"jwt,api_key"`
}

type AuthorizeResponse struct {
	Success bool   `json:"success"`
	JWT     string `json:"jwt,omitempty"`
}

type CommentResponse struct {
	ID      string `json:"id"`
	Body    string `json:"body"`
	Created string `json:"created,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

// JiraWebhookResponse reports how an inbound Jira event was handled. Unhandled
// events are accepted and only logged.
type JiraWebhookResponse struct {
	Handled  bool   `json:"handled"`
	Event    string `json:"event"`
	Kind     string `json:"kind,omitempty"`
	IssueKey string `json:"issue_key,omitempty"`
	Text     string `json:"text,omitempty"`
}

// Mappers

func dialogResponse(d domain.DialogRecord) DialogResponse {
	return DialogResponse{
		DialogID:  d.DialogID,
		Owner:     d.Owner,
		Layout:    d.Layout,
		Data:      jsonObject(d.DataJSON),
		Options:   jsonObject(d.OptionsJSON),
		Version:   d.Version,
		UpdatedAt: d.UpdatedAt,
	}
}

func dialogResponses(items []domain.DialogRecord) []DialogResponse {
	out := make([]DialogResponse, 0, len(items))
	for _, d := range items {
		out = append(out, dialogResponse(d))
	}
	return out
}

func dispatchResponse(res engine.DispatchResult) DispatchResponse {
	return DispatchResponse{
		InstanceID: res.InstanceID,
		State:      string(res.State),
		Dialogs:    dialogResponses(res.Dialogs),
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		Service:    e.Service,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    jsonObject(e.Payload),
	}
}

func commentResponse(c jira.Comment) CommentResponse {
	return CommentResponse{ID: c.ID, Body: c.Body, Created: c.Created}
}

func jiraWebhookResponse(m webhook.Message) JiraWebhookResponse {
	return JiraWebhookResponse{Handled: m.Handled, Event: m.Event, Kind: m.Kind, IssueKey: m.IssueKey, Text: m.Text}
}

func jsonObject(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{"raw": raw}
	}
	return out
}
