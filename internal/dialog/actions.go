package dialog

import (
	"path"

	"jiradialog/internal/domain"
)

// ActionDescriptor is an abstract clickable action surfaced in a dialog.
type ActionDescriptor struct {
	// ID keys the binding in the dialog data; defaults to Type.
	ID            string
	TargetService string
	Type          domain.ActionType
	Label         string
}

// Binding is a renderable button. Clicking it re-dispatches Event() to TargetService.
type Binding struct {
	ID            string            `json:"id"`
	Label         string            `json:"label"`
	Class         string            `json:"class"`
	Service       string            `json:"service"`
	TargetService string            `json:"target_service"`
	Type          domain.ActionType `json:"type"`
	Entity        domain.Entity     `json:"entity"`
}

// Event is the ActionEvent the host sends back when the button is clicked.
func (b Binding) Event() domain.ActionEvent {
	return domain.ActionEvent{Type: b.Type, Entity: b.Entity, Label: b.Label}
}

// Route is the API path, under basePath, that receives Event().
func (b Binding) Route(basePath string) string {
	return path.Join("/", basePath, "services", b.TargetService, "actions")
}

// Bind maps descriptors to bindings owned by serviceName for the given entity.
func Bind(descs []ActionDescriptor, serviceName string, entity domain.Entity) []Binding {
	out := make([]Binding, 0, len(descs))
	for _, d := range descs {
		id := d.ID
		if id == "" {
			id = string(d.Type)
		}
		target := d.TargetService
		if target == "" {
			target = serviceName
		}
		out = append(out, Binding{
			ID:            id,
			Label:         d.Label,
			Class:         buttonClass(d.Type),
			Service:       serviceName,
			TargetService: target,
			Type:          d.Type,
			Entity:        entity,
		})
	}
	return out
}

func buttonClass(t domain.ActionType) string {
	switch t {
	case domain.ActionPerformDialogAction:
		return "button primary"
	case domain.ActionCloseDialog:
		return "button secondary"
	default:
		return "button"
	}
}
