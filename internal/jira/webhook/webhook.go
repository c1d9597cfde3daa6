// Package webhook turns inbound Jira webhook bodies into short issue messages.
//
// Jira names the event in two fields. issue_event_type_name is the finer one
// ("issue_commented", "issue_assigned") and wins over webhookEvent
// ("jira:issue_updated") when a parser is registered for it. Events nothing is
// registered for go to a null parser that reports them as unhandled.
package webhook

import (
	"errors"
	"fmt"
	"strings"
)

const (
	FieldWebhookEvent       = "webhookEvent"
	FieldIssueEventTypeName = "issue_event_type_name"
)

// Jira event names with a registered parser.
const (
	IssueCreated       = "jira:issue_created"
	IssueUpdated       = "jira:issue_updated"
	IssueDeleted       = "jira:issue_deleted"
	IssueCommented     = "issue_commented"
	IssueCommentEdited = "issue_comment_edited"
	CommentCreated     = "comment_created"
	CommentUpdated     = "comment_updated"
)

// ErrMissingEvent is returned for a body that names no event at all.
var ErrMissingEvent = errors.New("invalid webhook: webhookEvent is required")

// Payload is a decoded webhook body.
type Payload map[string]any

// Event returns the event name used for parser selection.
func (p Payload) Event() string {
	if v := p.String(FieldIssueEventTypeName); v != "" {
		return v
	}
	return p.String(FieldWebhookEvent)
}

// Lookup walks a dotted path such as "issue.fields.summary".
func (p Payload) Lookup(path string) (any, bool) {
	var cur any = map[string]any(p)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String is Lookup for text fields; anything else reads as "".
func (p Payload) String(path string) string {
	v, ok := p.Lookup(path)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Change is one changelog item of an issue update.
type Change struct {
	Field string `json:"field"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
}

// Message is what a parser extracts from one webhook.
type Message struct {
	Handled  bool     `json:"handled"`
	Event    string   `json:"event"`
	Kind     string   `json:"kind,omitempty"`
	IssueKey string   `json:"issue_key,omitempty"`
	Summary  string   `json:"summary,omitempty"`
	Actor    string   `json:"actor,omitempty"`
	Text     string   `json:"text,omitempty"`
	Changes  []Change `json:"changes,omitempty"`
}

// Parser handles the events it lists.
type Parser interface {
	Events() []string
	Parse(p Payload) (Message, error)
}

// Registry maps event names to parsers.
type Registry struct {
	parsers  map[string]Parser
	fallback Parser
}

// NewRegistry registers each parser under all of its events. A later parser
// replaces an earlier one for a shared event.
func NewRegistry(parsers ...Parser) *Registry {
	r := &Registry{parsers: make(map[string]Parser), fallback: nullParser{}}
	for _, p := range parsers {
		for _, ev := range p.Events() {
			r.parsers[ev] = p
		}
	}
	return r
}

// DefaultRegistry knows issue lifecycle and comment events.
func DefaultRegistry() *Registry {
	return NewRegistry(issueParser{}, commentParser{})
}

// Lookup picks the parser for p. It never returns nil.
func (r *Registry) Lookup(p Payload) Parser {
	if parser, ok := r.parsers[p.String(FieldIssueEventTypeName)]; ok {
		return parser
	}
	if parser, ok := r.parsers[p.String(FieldWebhookEvent)]; ok {
		return parser
	}
	return r.fallback
}

// Parse selects a parser for p and runs it.
func (r *Registry) Parse(p Payload) (Message, error) {
	if p.Event() == "" {
		return Message{}, ErrMissingEvent
	}
	msg, err := r.Lookup(p).Parse(p)
	if err != nil {
		return Message{}, fmt.Errorf("parse %s: %w", p.Event(), err)
	}
	return msg, nil
}

type nullParser struct{}

func (nullParser) Events() []string { return nil }

func (nullParser) Parse(p Payload) (Message, error) {
	return Message{Event: p.Event(), IssueKey: p.String("issue.key")}, nil
}

func base(p Payload, kind string) Message {
	actor := p.String("user.displayName")
	if actor == "" {
		actor = p.String("user.name")
	}
	return Message{
		Handled:  true,
		Event:    p.Event(),
		Kind:     kind,
		IssueKey: p.String("issue.key"),
		Summary:  p.String("issue.fields.summary"),
		Actor:    actor,
	}
}
