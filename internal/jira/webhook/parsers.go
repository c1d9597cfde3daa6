package webhook

import (
	"fmt"
	"strings"
)

// Message kinds.
const (
	KindIssueCreated   = "issue.created"
	KindIssueUpdated   = "issue.updated"
	KindIssueDeleted   = "issue.deleted"
	KindCommentAdded   = "comment.added"
	KindCommentUpdated = "comment.updated"
)

var statusChange = FilterCondition{ArrayPath: "changelog.items", Field: "field", Equals: "status"}

type issueParser struct{}

func (issueParser) Events() []string {
	return []string{IssueCreated, IssueUpdated, IssueDeleted}
}

func (issueParser) Parse(p Payload) (Message, error) {
	if p.String("issue.key") == "" {
		return Message{}, fmt.Errorf("invalid webhook: issue.key is required")
	}
	switch p.String(FieldWebhookEvent) {
	case IssueCreated:
		msg := base(p, KindIssueCreated)
		msg.Text = fmt.Sprintf("%s created %s", actorName(msg.Actor), msg.IssueKey)
		return msg, nil
	case IssueDeleted:
		msg := base(p, KindIssueDeleted)
		msg.Text = fmt.Sprintf("%s deleted %s", actorName(msg.Actor), msg.IssueKey)
		return msg, nil
	}
	msg := base(p, KindIssueUpdated)
	msg.Changes = changes(p)
	if status, ok := statusChange.First(p); ok {
		msg.Text = fmt.Sprintf("%s changed %s status from %s to %s",
			actorName(msg.Actor), msg.IssueKey, text(status["fromString"]), text(status["toString"]))
		return msg, nil
	}
	fields := make([]string, 0, len(msg.Changes))
	for _, c := range msg.Changes {
		fields = append(fields, c.Field)
	}
	if len(fields) == 0 {
		msg.Text = fmt.Sprintf("%s updated %s", actorName(msg.Actor), msg.IssueKey)
	} else {
		msg.Text = fmt.Sprintf("%s updated %s: %s", actorName(msg.Actor), msg.IssueKey, strings.Join(fields, ", "))
	}
	return msg, nil
}

func changes(p Payload) []Change {
	v, ok := p.Lookup("changelog.items")
	if !ok {
		return nil
	}
	items, _ := v.([]any)
	out := make([]Change, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, Change{Field: text(m["field"]), From: text(m["fromString"]), To: text(m["toString"])})
	}
	return out
}

type commentParser struct{}

func (commentParser) Events() []string {
	return []string{IssueCommented, IssueCommentEdited, CommentCreated, CommentUpdated}
}

func (commentParser) Parse(p Payload) (Message, error) {
	kind := KindCommentAdded
	verb := "commented on"
	switch p.Event() {
	case IssueCommentEdited, CommentUpdated:
		kind = KindCommentUpdated
		verb = "edited a comment on"
	}
	msg := base(p, kind)
	if author := p.String("comment.author.displayName"); author != "" {
		msg.Actor = author
	}
	body := p.String("comment.body")
	if msg.IssueKey == "" {
		msg.Text = fmt.Sprintf("%s %s an issue: %s", actorName(msg.Actor), verb, body)
		return msg, nil
	}
	msg.Text = fmt.Sprintf("%s %s %s: %s", actorName(msg.Actor), verb, msg.IssueKey, body)
	return msg, nil
}

func actorName(name string) string {
	if name == "" {
		return "Someone"
	}
	return name
}
