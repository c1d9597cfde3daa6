package webhook

import (
	"encoding/json"
	"errors"
	"testing"
)

func payload(t *testing.T, body string) Payload {
	t.Helper()
	var p Payload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return p
}

const statusUpdate = `{
  "webhookEvent": "jira:issue_updated",
  "issue_event_type_name": "issue_generic",
  "user": {"name": "jdoe", "displayName": "Jane Doe"},
  "issue": {"key": "ABC-7", "fields": {"summary": "Broken login"}},
  "changelog": {"items": [
    {"field": "assignee", "fromString": "", "toString": "Jane Doe"},
    {"field": "status", "fromString": "To Do", "toString": "In Progress"}
  ]}
}`

func TestRegistryPrefersIssueEventTypeName(t *testing.T) {
	reg := DefaultRegistry()
	p := payload(t, `{"webhookEvent":"jira:issue_updated","issue_event_type_name":"issue_commented",
		"issue":{"key":"ABC-1"},"comment":{"body":"ship it","author":{"displayName":"Bob"}}}`)
	msg, err := reg.Parse(p)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Kind != KindCommentAdded || msg.Event != IssueCommented {
		t.Fatalf("expected comment parser, got %+v", msg)
	}
	if msg.Text != "Bob commented on ABC-1: ship it" {
		t.Fatalf("unexpected text %q", msg.Text)
	}
}

func TestRegistryFallsBackToWebhookEvent(t *testing.T) {
	msg, err := DefaultRegistry().Parse(payload(t, statusUpdate))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !msg.Handled || msg.Kind != KindIssueUpdated || msg.IssueKey != "ABC-7" || msg.Summary != "Broken login" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg.Text != "Jane Doe changed ABC-7 status from To Do to In Progress" {
		t.Fatalf("unexpected text %q", msg.Text)
	}
	if len(msg.Changes) != 2 || msg.Changes[0].Field != "assignee" || msg.Changes[1].To != "In Progress" {
		t.Fatalf("unexpected changes %+v", msg.Changes)
	}
}

func TestUnknownEventUsesNullParser(t *testing.T) {
	reg := DefaultRegistry()
	p := payload(t, `{"webhookEvent":"sprint_started","issue":{"key":"ABC-2"}}`)
	if _, ok := reg.Lookup(p).(nullParser); !ok {
		t.Fatalf("expected null parser for %q", p.Event())
	}
	msg, err := reg.Parse(p)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Handled || msg.Event != "sprint_started" || msg.IssueKey != "ABC-2" || msg.Text != "" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestMissingEventIsRejected(t *testing.T) {
	_, err := DefaultRegistry().Parse(payload(t, `{"issue":{"key":"ABC-3"}}`))
	if !errors.Is(err, ErrMissingEvent) {
		t.Fatalf("expected ErrMissingEvent, got %v", err)
	}
}

func TestIssueEventWithoutKeyFails(t *testing.T) {
	_, err := DefaultRegistry().Parse(payload(t, `{"webhookEvent":"jira:issue_created","issue":{}}`))
	if err == nil {
		t.Fatalf("expected an error for an issue event without a key")
	}
}

func TestIssueCreatedAndDeleted(t *testing.T) {
	reg := DefaultRegistry()
	cases := map[string]string{
		IssueCreated: "Jane Doe created ABC-9",
		IssueDeleted: "Jane Doe deleted ABC-9",
	}
	for ev, want := range cases {
		p := Payload{
			FieldWebhookEvent: ev,
			"user":            map[string]any{"displayName": "Jane Doe"},
			"issue":           map[string]any{"key": "ABC-9"},
		}
		msg, err := reg.Parse(p)
		if err != nil {
			t.Fatalf("%s: %v", ev, err)
		}
		if msg.Text != want {
			t.Errorf("%s: got %q, want %q", ev, msg.Text, want)
		}
	}
}

func TestUpdateWithoutStatusListsFields(t *testing.T) {
	p := payload(t, `{"webhookEvent":"jira:issue_updated","issue":{"key":"ABC-4"},
		"changelog":{"items":[{"field":"priority","toString":"High"},{"field":"labels"}]}}`)
	msg, err := DefaultRegistry().Parse(p)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Text != "Someone updated ABC-4: priority, labels" {
		t.Fatalf("unexpected text %q", msg.Text)
	}
}

func TestCommentUpdatedEvent(t *testing.T) {
	p := payload(t, `{"webhookEvent":"comment_updated","comment":{"body":"edited","author":{"displayName":"Ann"}}}`)
	msg, err := DefaultRegistry().Parse(p)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Kind != KindCommentUpdated || msg.Text != "Ann edited a comment on an issue: edited" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

type countingParser struct{ events []string }

func (c countingParser) Events() []string { return c.events }
func (c countingParser) Parse(p Payload) (Message, error) {
	return Message{Handled: true, Event: p.Event(), Kind: "custom"}, nil
}

func TestLaterParserWinsSharedEvent(t *testing.T) {
	reg := NewRegistry(commentParser{}, countingParser{events: []string{CommentCreated}})
	msg, err := reg.Parse(Payload{FieldWebhookEvent: CommentCreated})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Kind != "custom" {
		t.Fatalf("expected the later parser, got %+v", msg)
	}
}

func TestFilterConditionSelect(t *testing.T) {
	p := payload(t, statusUpdate)
	got := statusChange.Select(p)
	if len(got) != 1 || got[0]["toString"] != "In Progress" {
		t.Fatalf("unexpected selection %+v", got)
	}
	none := FilterCondition{ArrayPath: "changelog.items", Field: "field", Equals: "resolution"}
	if _, ok := none.First(p); ok {
		t.Fatalf("expected no resolution change")
	}
	missing := FilterCondition{ArrayPath: "issue.fields.labels", Field: "name", Equals: "x"}
	if got := missing.Select(p); got != nil {
		t.Fatalf("expected nil for a missing array, got %+v", got)
	}
}
