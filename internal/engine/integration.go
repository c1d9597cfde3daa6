package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"jiradialog/internal/domain"
	"jiradialog/internal/events"
	"jiradialog/internal/jira"
)

// ErrJiraNotConfigured is returned by CreateComment when no upstream Jira URL is set.
var ErrJiraNotConfigured = errors.New("jira url not configured")

// Authorize opens an integration session for actorID on baseURL. A missing signing
// secret is a logical refusal, not an error.
func (e Engine) Authorize(ctx context.Context, actorID, baseURL string) (domain.AuthResult, error) {
	baseURL = strings.TrimSpace(baseURL)
	if strings.TrimSpace(e.Tokens.Secret) == "" {
		e.recordIntegration(ctx, events.AuthorizeFailed, actorID, baseURL, events.EventPayload{"reason": "no_secret"})
		e.logger().Warn("authorize refused: jwt secret not configured", "actor", actorID)
		return domain.AuthResult{Success: false}, nil
	}
	tokens := e.Tokens
	tokens.Now = e.Now
	tok, err := tokens.Issue(actorID, baseURL)
	if err != nil {
		e.recordIntegration(ctx, events.AuthorizeFailed, actorID, baseURL, events.EventPayload{"reason": err.Error()})
		return domain.AuthResult{}, fmt.Errorf("issue token: %w", err)
	}
	e.recordIntegration(ctx, events.AuthorizeOK, actorID, baseURL, nil)
	return domain.AuthResult{Success: true, JWT: tok}, nil
}

// CommentRequest is a comment submitted through the integration backend.
type CommentRequest struct {
	Token    string
	IssueKey string
	Body     string
	BaseURL  string
}

// CreateComment verifies the session token and forwards the comment upstream.
// Token failures surface as auth errors; upstream failures keep their *jira.StatusError.
func (e Engine) CreateComment(ctx context.Context, req CommentRequest) (jira.Comment, error) {
	tokens := e.Tokens
	tokens.Now = e.Now
	claims, err := tokens.VerifyFor(req.Token, req.BaseURL)
	if err != nil {
		e.recordComment(ctx, events.CommentRejected, "", req, events.EventPayload{"reason": err.Error()})
		return jira.Comment{}, err
	}
	if strings.TrimSpace(req.IssueKey) == "" {
		return jira.Comment{}, errors.New("issue key required")
	}
	if e.Jira == nil {
		return jira.Comment{}, ErrJiraNotConfigured
	}
	c, err := e.Jira.AddComment(ctx, req.IssueKey, req.Body)
	if err != nil {
		var se *jira.StatusError
		payload := events.EventPayload{"error": err.Error()}
		if errors.As(err, &se) {
			payload["status"] = se.StatusCode
		}
		e.recordComment(ctx, events.CommentFailed, claims.Subject, req, payload)
		e.logger().Warn("upstream comment failed", "issue", req.IssueKey, "actor", claims.Subject, "err", err)
		return jira.Comment{}, err
	}
	e.recordComment(ctx, events.CommentCreated, claims.Subject, req, events.EventPayload{"comment_id": c.ID})
	e.logger().Info("upstream comment created", "issue", req.IssueKey, "actor", claims.Subject, "comment", c.ID)
	return c, nil
}

// IssueToken mints a user token for the dev login and the CLI.
func (e Engine) IssueToken(subject string) (string, error) {
	tokens := e.Tokens
	tokens.Now = e.Now
	return tokens.Issue(subject, "")
}

func (e Engine) recordIntegration(ctx context.Context, evtType, actorID, baseURL string, payload events.EventPayload) {
	if payload == nil {
		payload = events.EventPayload{}
	}
	payload["base_url"] = baseURL
	if err := e.Events.Append(ctx, nil, evtType, "integration", "session", "", actorOrAnon(actorID), payload); err != nil {
		e.logger().Error("record event", "type", evtType, "err", err)
	}
}

func (e Engine) recordComment(ctx context.Context, evtType, actorID string, req CommentRequest, payload events.EventPayload) {
	payload["base_url"] = req.BaseURL
	if err := e.Events.Append(ctx, nil, evtType, "integration", "issue", req.IssueKey, actorOrAnon(actorID), payload); err != nil {
		e.logger().Error("record event", "type", evtType, "err", err)
	}
}

func actorOrAnon(id string) string {
	if id == "" {
		return "anonymous"
	}
	return id
}
