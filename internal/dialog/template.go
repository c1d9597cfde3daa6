package dialog

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

// Fragment is rendered dialog markup handed to the chat host as-is.
type Fragment string

// Template turns a data object into a renderable fragment.
type Template interface {
	Render(data any) (Fragment, error)
}

// TemplateFunc adapts a plain function to Template.
type TemplateFunc func(data any) (Fragment, error)

func (f TemplateFunc) Render(data any) (Fragment, error) { return f(data) }

type htmlTemplate struct {
	t *template.Template
}

func (h htmlTemplate) Render(data any) (Fragment, error) {
	var buf bytes.Buffer
	if err := h.t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", h.t.Name(), err)
	}
	return Fragment(buf.String()), nil
}

//go:embed templates/*.tmpl
var templateFS embed.FS

// Templates is the set of fragments the comment feature renders.
type Templates struct {
	Frame           Template
	CommentForm     Template
	CommentCreated  Template
	Error           Template
	UnexpectedError Template
}

// LoadTemplates parses the embedded templates.
func LoadTemplates() (Templates, error) {
	load := func(name string) (Template, error) {
		t, err := template.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		return htmlTemplate{t: t}, nil
	}
	var ts Templates
	var err error
	for _, slot := range []struct {
		name string
		dst  *Template
	}{
		{"frame.tmpl", &ts.Frame},
		{"comment_form.tmpl", &ts.CommentForm},
		{"comment_created.tmpl", &ts.CommentCreated},
		{"error.tmpl", &ts.Error},
		{"unexpected_error.tmpl", &ts.UnexpectedError},
	} {
		if *slot.dst, err = load(slot.name); err != nil {
			return Templates{}, err
		}
	}
	return ts, nil
}

// MustTemplates is LoadTemplates for program start-up; the templates are embedded so
// a parse failure is a build defect.
func MustTemplates() Templates {
	ts, err := LoadTemplates()
	if err != nil {
		panic(err)
	}
	return ts
}
