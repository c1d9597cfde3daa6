package engine

import (
	"context"

	"jiradialog/internal/events"
	"jiradialog/internal/jira/webhook"
)

// IngestJiraWebhook parses an inbound Jira webhook and records it in the event
// log, where the outbound webhook dispatcher picks it up. Events without a parser
// are recorded as ignored rather than failing the delivery.
func (e Engine) IngestJiraWebhook(ctx context.Context, actorID string, p webhook.Payload) (webhook.Message, error) {
	reg := e.Webhooks
	if reg == nil {
		reg = webhook.DefaultRegistry()
	}
	msg, err := reg.Parse(p)
	if err != nil {
		e.logger().Warn("jira webhook rejected", "event", p.Event(), "err", err)
		return webhook.Message{}, err
	}
	evtType := events.JiraWebhook
	payload := events.EventPayload{"event": msg.Event}
	if msg.Handled {
		payload["kind"] = msg.Kind
		payload["text"] = msg.Text
		if msg.Summary != "" {
			payload["summary"] = msg.Summary
		}
		if msg.Actor != "" {
			payload["jira_actor"] = msg.Actor
		}
		if len(msg.Changes) > 0 {
			payload["changes"] = msg.Changes
		}
	} else {
		evtType = events.JiraIgnored
		e.logger().Debug("unhandled jira event", "event", msg.Event)
	}
	if err := e.Events.Append(ctx, nil, evtType, "jira", "issue", msg.IssueKey, actorOrAnon(actorID), payload); err != nil {
		e.logger().Error("record event", "type", evtType, "err", err)
	}
	return msg, nil
}
