package dialog

import (
	"html/template"

	"jiradialog/internal/domain"
)

// Builder composes a titled dialog block. It is a value: every option returns a
// modified copy and the receiver is never changed.
type Builder struct {
	title     string
	body      Fragment
	errorText string
	footer    bool
}

// NewBuilder starts a block with the footer (action buttons) visible.
func NewBuilder(title string, body Fragment) Builder {
	return Builder{title: title, body: body, footer: true}
}

// Error attaches inline error text to the built block.
func (b Builder) Error(text string) Builder {
	b.errorText = text
	return b
}

// Footer toggles whether action buttons render.
func (b Builder) Footer(visible bool) Builder {
	b.footer = visible
	return b
}

// Input binds a user-input control to the service that receives its changes.
type Input struct {
	Service string `json:"service"`
}

// Data carries the per-render bindings merged by Build.
type Data struct {
	Entity  domain.Entity
	Actions []Binding
	Inputs  map[string]Input
}

// Build merges the bindings into a Content. Actions are dropped when the footer is hidden.
func (b Builder) Build(d Data) Content {
	c := Content{
		Title:     b.title,
		Body:      b.body,
		ErrorText: b.errorText,
		Footer:    b.footer,
		Entity:    d.Entity,
	}
	if b.footer && len(d.Actions) > 0 {
		c.Actions = append([]Binding(nil), d.Actions...)
	}
	if len(d.Inputs) > 0 {
		c.Inputs = make(map[string]Input, len(d.Inputs))
		for id, in := range d.Inputs {
			c.Inputs[id] = in
		}
	}
	return c
}

// Content is one rendered state of a dialog. Build a new one instead of mutating it.
type Content struct {
	Title     string
	Body      Fragment
	ErrorText string
	Footer    bool
	Entity    domain.Entity
	Actions   []Binding
	Inputs    map[string]Input
}

type frameView struct {
	Title     string
	Body      template.HTML
	ErrorText string
	Footer    bool
	Entity    domain.Entity
	Actions   []Binding
}

// Render lays the content out inside the dialog frame.
func (c Content) Render(frame Template) (Fragment, error) {
	return frame.Render(frameView{
		Title:     c.Title,
		Body:      template.HTML(c.Body),
		ErrorText: c.ErrorText,
		Footer:    c.Footer,
		Entity:    c.Entity,
		Actions:   c.Actions,
	})
}

// Data is the object handed to the host next to the layout: one key per action
// binding and one per user input.
func (c Content) Data() map[string]any {
	out := make(map[string]any, len(c.Actions)+len(c.Inputs))
	for _, a := range c.Actions {
		out[a.ID] = a
	}
	for id, in := range c.Inputs {
		out[id] = in
	}
	return out
}
