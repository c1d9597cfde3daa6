package dialog

import (
	"strings"
	"testing"

	"jiradialog/internal/domain"
)

var testEntity = domain.Entity{
	BaseURL: "https://chat.example.com",
	Issue:   domain.Issue{Key: "ABC-1", Summary: "Broken <login>"},
}

func commentActions() []Binding {
	return Bind([]ActionDescriptor{
		{TargetService: "commentService", Type: domain.ActionPerformDialogAction, Label: "COMMENT"},
		{TargetService: "commentService", Type: domain.ActionCloseDialog, Label: "Cancel"},
	}, "commentService", testEntity)
}

func TestBuilderIsImmutable(t *testing.T) {
	base := NewBuilder("Comment on", "<p>form</p>")
	withErr := base.Error("Invalid comment")
	noFooter := base.Footer(false)

	plain := base.Build(Data{Entity: testEntity, Actions: commentActions()})
	if plain.ErrorText != "" || !plain.Footer || len(plain.Actions) != 2 {
		t.Fatalf("base builder changed by derived builders: %+v", plain)
	}
	if got := withErr.Build(Data{}).ErrorText; got != "Invalid comment" {
		t.Fatalf("expected error text, got %q", got)
	}
	hidden := noFooter.Build(Data{Entity: testEntity, Actions: commentActions()})
	if hidden.Footer || hidden.Actions != nil {
		t.Fatalf("footer suppressed content must not carry actions: %+v", hidden)
	}
}

func TestBuildCopiesBindings(t *testing.T) {
	actions := commentActions()
	inputs := map[string]Input{"userComment": {Service: "commentService"}}
	c := NewBuilder("Comment on", "").Build(Data{Entity: testEntity, Actions: actions, Inputs: inputs})
	actions[0].Label = "changed"
	inputs["userComment"] = Input{Service: "other"}
	if c.Actions[0].Label != "COMMENT" {
		t.Fatalf("content shares action slice with caller")
	}
	if c.Inputs["userComment"].Service != "commentService" {
		t.Fatalf("content shares input map with caller")
	}
}

func TestBindCarriesDispatchMetadata(t *testing.T) {
	bs := commentActions()
	if len(bs) != 2 {
		t.Fatalf("expected 2 bindings, got %d", len(bs))
	}
	submit := bs[0]
	if submit.ID != "performDialogAction" || submit.Class != "button primary" {
		t.Fatalf("unexpected submit binding: %+v", submit)
	}
	ev := submit.Event()
	if ev.Type != domain.ActionPerformDialogAction || ev.Entity.Issue.Key != "ABC-1" || ev.Label != "COMMENT" {
		t.Fatalf("binding does not round-trip to event: %+v", ev)
	}
	if got := submit.Route("/v0"); got != "/v0/services/commentService/actions" {
		t.Fatalf("unexpected route %q", got)
	}
	defaulted := Bind([]ActionDescriptor{{ID: "x", Type: "custom", Label: "X"}}, "svc", testEntity)[0]
	if defaulted.TargetService != "svc" || defaulted.Class != "button" {
		t.Fatalf("defaults not applied: %+v", defaulted)
	}
}

func TestContentDataKeysBindings(t *testing.T) {
	c := NewBuilder("Comment on", "").Build(Data{
		Entity:  testEntity,
		Actions: commentActions(),
		Inputs:  map[string]Input{"userComment": {Service: "commentService"}},
	})
	data := c.Data()
	for _, key := range []string{"performDialogAction", "closeDialog", "userComment"} {
		if _, ok := data[key]; !ok {
			t.Fatalf("data missing %s: %v", key, data)
		}
	}
}

func TestRenderFrame(t *testing.T) {
	ts := MustTemplates()
	body, err := ts.CommentForm.Render(map[string]string{"Service": "commentService"})
	if err != nil {
		t.Fatalf("render form: %v", err)
	}
	c := NewBuilder("Comment on", body).Error("Invalid comment").Build(Data{Entity: testEntity, Actions: commentActions()})
	out, err := c.Render(ts.Frame)
	if err != nil {
		t.Fatalf("render frame: %v", err)
	}
	s := string(out)
	for _, want := range []string{"Comment on ABC-1", `<textarea id="userComment"`, "Invalid comment", ">COMMENT<", ">Cancel<"} {
		if !strings.Contains(s, want) {
			t.Errorf("layout missing %q:\n%s", want, s)
		}
	}
	if strings.Contains(s, "<login>") {
		t.Errorf("issue summary must be escaped:\n%s", s)
	}

	success, err := NewBuilder("Comment on", "<p>done</p>").Footer(false).Build(Data{Entity: testEntity, Actions: commentActions()}).Render(ts.Frame)
	if err != nil {
		t.Fatalf("render success: %v", err)
	}
	if strings.Contains(string(success), "<footer>") {
		t.Errorf("footer rendered although suppressed:\n%s", success)
	}
}

func TestTemplateFunc(t *testing.T) {
	tpl := TemplateFunc(func(data any) (Fragment, error) { return "<p>static</p>", nil })
	out, err := tpl.Render(nil)
	if err != nil || out != "<p>static</p>" {
		t.Fatalf("unexpected render: %q %v", out, err)
	}
}
