package feature

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"jiradialog/internal/dialog"
	"jiradialog/internal/domain"
	"jiradialog/internal/logging"
)

type shownDialog struct {
	owner  string
	layout string
	data   map[string]any
}

type fakeHost struct {
	mu    sync.Mutex
	open  map[string]shownDialog
	ops   []string
	shows int
}

func newFakeHost() *fakeHost {
	return &fakeHost{open: map[string]shownDialog{}}
}

func (h *fakeHost) Show(ctx context.Context, id, owner string, layout dialog.Fragment, data map[string]any, _ map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.open[id] = shownDialog{owner: owner, layout: string(layout), data: data}
	h.ops = append(h.ops, "show:"+id)
	h.shows++
	return nil
}

func (h *fakeHost) Close(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.open, id)
	h.ops = append(h.ops, "close:"+id)
	return nil
}

func (h *fakeHost) dialog(id string) (shownDialog, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.open[id]
	return d, ok
}

type fakeAuth struct {
	res    domain.AuthResult
	err    error
	calls  int
	during func()
}

func (a *fakeAuth) Authorize(_ context.Context, baseURL string) (domain.AuthResult, error) {
	a.calls++
	if a.during != nil {
		a.during()
	}
	return a.res, a.err
}

type codeErr string

func (e codeErr) Error() string { return "remote status " + string(e) }
func (e codeErr) Code() string  { return string(e) }

type commentCall struct {
	baseURL, key, text, token string
}

type fakeIssues struct {
	err    error
	calls  []commentCall
	during func()
}

func (f *fakeIssues) Comment(_ context.Context, baseURL, issueKey, text, token string) error {
	f.calls = append(f.calls, commentCall{baseURL, issueKey, text, token})
	if f.during != nil {
		f.during()
	}
	return f.err
}

type recorded struct {
	evtType string
	payload map[string]any
}

type fakeAuditor struct {
	events []recorded
}

func (a *fakeAuditor) Record(_ context.Context, evtType string, _ domain.ActionEvent, payload map[string]any) {
	a.events = append(a.events, recorded{evtType, payload})
}

type fixture struct {
	svc    *CommentService
	host   *fakeHost
	auth   *fakeAuth
	issues *fakeIssues
	audit  *fakeAuditor
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{
		host:   newFakeHost(),
		auth:   &fakeAuth{res: domain.AuthResult{Success: true, JWT: "jwt-1"}},
		issues: &fakeIssues{},
		audit:  &fakeAuditor{},
	}
	f.svc = NewCommentService(CommentOptions{
		AssetsURL: "https://assets.example.com/",
		Host:      f.host,
		Auth:      f.auth,
		Issues:    f.issues,
		Templates: dialog.MustTemplates(),
		Auditor:   f.audit,
		Logger:    logging.Discard(),
	})
	return f
}

func event(t domain.ActionType) domain.ActionEvent {
	return domain.ActionEvent{
		Type: t,
		Entity: domain.Entity{
			BaseURL: "https://integration.example.com",
			Issue:   domain.Issue{Key: "ABC-1"},
		},
	}
}

func (f fixture) open(t *testing.T) {
	t.Helper()
	f.svc.Action(context.Background(), event(domain.ActionOpenDialog))
	if _, ok := f.host.dialog(CommentDialogID); !ok {
		t.Fatalf("comment dialog not shown after open: %v", f.host.ops)
	}
}

func (f fixture) commentLayout(t *testing.T) string {
	t.Helper()
	d, ok := f.host.dialog(CommentDialogID)
	if !ok {
		t.Fatalf("comment dialog not shown: %v", f.host.ops)
	}
	return d.layout
}

func TestUnknownActionShowsErrorDialog(t *testing.T) {
	for _, typ := range []domain.ActionType{"", "bogus", "OPENDIALOG", "changed"} {
		f := newFixture(t)
		f.svc.Action(context.Background(), event(typ))
		if _, ok := f.host.dialog(ErrorDialogID); !ok {
			t.Errorf("type %q: error dialog not shown: %v", typ, f.host.ops)
		}
		if f.auth.calls != 0 || len(f.issues.calls) != 0 {
			t.Errorf("type %q: unexpected remote calls", typ)
		}
	}
}

func TestOpenAuthorizesAndShowsForm(t *testing.T) {
	f := newFixture(t)
	f.svc.Changed("left over")
	f.open(t)
	if f.svc.Token() != "jwt-1" {
		t.Fatalf("token not stored: %q", f.svc.Token())
	}
	if f.svc.Draft() != "" {
		t.Fatalf("draft not reset on open: %q", f.svc.Draft())
	}
	if f.svc.State() != StateOpen {
		t.Fatalf("expected open state, got %s", f.svc.State())
	}
	d, _ := f.host.dialog(CommentDialogID)
	if d.owner != CommentServiceName {
		t.Fatalf("unexpected owner %q", d.owner)
	}
	for _, want := range []string{"Comment on ABC-1", ">COMMENT<", ">Cancel<", "userComment"} {
		if !strings.Contains(d.layout, want) {
			t.Errorf("layout missing %q:\n%s", want, d.layout)
		}
	}
	for _, key := range []string{"performDialogAction", "closeDialog", "userComment"} {
		if _, ok := d.data[key]; !ok {
			t.Errorf("data missing %q", key)
		}
	}
}

func TestSaveEmptyDraftNeverCallsRemote(t *testing.T) {
	f := newFixture(t)
	f.open(t)
	f.svc.Action(context.Background(), event(domain.ActionPerformDialogAction))
	if len(f.issues.calls) != 0 {
		t.Fatalf("empty draft must not be submitted: %+v", f.issues.calls)
	}
	if layout := f.commentLayout(t); !strings.Contains(layout, MsgInvalidComment) {
		t.Fatalf("expected inline error, got:\n%s", layout)
	}
	if f.svc.State() != StateOpenError {
		t.Fatalf("expected open_error state, got %s", f.svc.State())
	}
}

func TestSubmitSuccessClearsDraftAndHidesFooter(t *testing.T) {
	f := newFixture(t)
	f.open(t)
	f.svc.Changed("looks good")
	f.svc.Action(context.Background(), event(domain.ActionPerformDialogAction))

	if len(f.issues.calls) != 1 {
		t.Fatalf("expected one comment call, got %d", len(f.issues.calls))
	}
	call := f.issues.calls[0]
	want := commentCall{"https://integration.example.com", "ABC-1", "looks good", "jwt-1"}
	if call != want {
		t.Fatalf("unexpected call %+v, want %+v", call, want)
	}
	if f.svc.Draft() != "" {
		t.Fatalf("draft not cleared: %q", f.svc.Draft())
	}
	layout := f.commentLayout(t)
	if strings.Contains(layout, "<footer>") {
		t.Fatalf("success content must not render the footer:\n%s", layout)
	}
	if !strings.Contains(layout, "https://assets.example.com/apps/jira/img/icon-checkmark-green.svg") {
		t.Fatalf("success image missing:\n%s", layout)
	}
	if !strings.Contains(layout, "Comment on ABC-1") {
		t.Fatalf("title not reused:\n%s", layout)
	}
	if f.svc.State() != StateSuccess {
		t.Fatalf("expected success state, got %s", f.svc.State())
	}
	ops := f.host.ops
	if ops[len(ops)-2] != "close:"+CommentDialogID || ops[len(ops)-1] != "show:"+CommentDialogID {
		t.Fatalf("expected in-place update (close then show), got %v", ops)
	}
	if len(f.audit.events) == 0 || f.audit.events[len(f.audit.events)-1].evtType != "comment.created" {
		t.Fatalf("comment.created not recorded: %+v", f.audit.events)
	}
}

func TestSubmitFailureMapsRemoteCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{codeErr("400"), MsgInvalidComment},
		{codeErr("401"), MsgUnauthorized},
		{codeErr("404"), "Issue ABC-1 not found"},
		{codeErr("500"), MsgUnexpected},
		{errors.New("connection refused"), MsgUnexpected},
		{errors.Join(errors.New("wrapped"), codeErr("404")), "Issue ABC-1 not found"},
	}
	for _, tc := range cases {
		f := newFixture(t)
		f.issues.err = tc.err
		f.open(t)
		f.svc.Changed("text")
		f.svc.Action(context.Background(), event(domain.ActionPerformDialogAction))
		if f.svc.Draft() != "" {
			t.Errorf("%v: draft not cleared", tc.err)
		}
		layout := f.commentLayout(t)
		if !strings.Contains(layout, tc.want) {
			t.Errorf("%v: layout missing %q:\n%s", tc.err, tc.want, layout)
		}
		if !strings.Contains(layout, ">COMMENT<") {
			t.Errorf("%v: form must be re-rendered with actions", tc.err)
		}
	}
}

func TestUnauthorizedScenario(t *testing.T) {
	f := newFixture(t)
	f.issues.err = codeErr("401")
	f.open(t)
	f.svc.Changed("please fix")
	f.svc.Action(context.Background(), event(domain.ActionPerformDialogAction))
	if !strings.Contains(f.commentLayout(t), "Current user is not authorized to perform this action") {
		t.Fatalf("401 message not shown")
	}
	if f.svc.Draft() != "" {
		t.Fatalf("draft must be discarded after remote failure")
	}
	// the user retypes and retries
	f.issues.err = nil
	f.svc.Changed("please fix")
	f.svc.Action(context.Background(), event(domain.ActionPerformDialogAction))
	if f.svc.State() != StateSuccess {
		t.Fatalf("expected retry to succeed, state %s", f.svc.State())
	}
}

func TestShowDialogRejectedNeverRunsCallback(t *testing.T) {
	f := newFixture(t)
	f.auth.res = domain.AuthResult{Success: false}
	called := false
	f.svc.ShowDialog(context.Background(), event(domain.ActionOpenDialog), func(*CommentService, context.Context, domain.ActionEvent) {
		called = true
	})
	if called {
		t.Fatalf("callback must not run on rejected authorization")
	}
	if f.svc.Token() != "" {
		t.Fatalf("token must not be set, got %q", f.svc.Token())
	}
	if _, ok := f.host.dialog(UnexpectedErrorDialogID); !ok {
		t.Fatalf("unexpected error dialog not shown: %v", f.host.ops)
	}
	if _, ok := f.host.dialog(CommentDialogID); ok {
		t.Fatalf("comment dialog shown without authorization")
	}
}

func TestShowDialogFailures(t *testing.T) {
	cases := map[string]func(f fixture){
		"transport": func(f fixture) { f.auth.err = errors.New("dial tcp: refused") },
		"no token":  func(f fixture) { f.auth.res = domain.AuthResult{Success: true} },
	}
	for name, setup := range cases {
		f := newFixture(t)
		setup(f)
		f.svc.Action(context.Background(), event(domain.ActionOpenDialog))
		if _, ok := f.host.dialog(UnexpectedErrorDialogID); !ok {
			t.Errorf("%s: unexpected error dialog not shown", name)
		}
		if f.svc.State() != StateClosed {
			t.Errorf("%s: expected closed state, got %s", name, f.svc.State())
		}
	}

	f := newFixture(t)
	f.svc.ShowDialog(context.Background(), event(domain.ActionOpenDialog), nil)
	if _, ok := f.host.dialog(UnexpectedErrorDialogID); !ok {
		t.Fatalf("nil callback must be treated as an error")
	}
}

func TestCloseDialog(t *testing.T) {
	f := newFixture(t)
	f.open(t)
	f.svc.Action(context.Background(), event(domain.ActionCloseDialog))
	if _, ok := f.host.dialog(CommentDialogID); ok {
		t.Fatalf("dialog still open after close")
	}
	if f.svc.State() != StateClosed {
		t.Fatalf("expected closed, got %s", f.svc.State())
	}
}

func TestCloseWhileSubmittingDropsStaleUpdate(t *testing.T) {
	f := newFixture(t)
	f.open(t)
	f.svc.Changed("racing")
	f.issues.during = func() { f.svc.CloseActionDialog(context.Background()) }
	f.svc.Action(context.Background(), event(domain.ActionPerformDialogAction))
	if _, ok := f.host.dialog(CommentDialogID); ok {
		t.Fatalf("stale completion re-opened a closed dialog: %v", f.host.ops)
	}
	if f.svc.State() != StateClosed {
		t.Fatalf("expected closed, got %s", f.svc.State())
	}
}

func TestSubmitCompletesAfterCallerCancels(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		state State
		want  string
	}{
		{"success", nil, StateSuccess, "icon-checkmark-green.svg"},
		{"failure", codeErr("404"), StateOpenError, "Issue ABC-1 not found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.open(t)
			f.svc.Changed("posted anyway")
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			f.issues.err = tc.err
			f.issues.during = cancel
			f.svc.Action(ctx, event(domain.ActionPerformDialogAction))

			if f.svc.State() != tc.state {
				t.Fatalf("expected %s, got %s", tc.state, f.svc.State())
			}
			if layout := f.commentLayout(t); !strings.Contains(layout, tc.want) {
				t.Fatalf("expected %q in updated dialog:\n%s", tc.want, layout)
			}
		})
	}
}

func TestOpenCompletesAfterCallerCancels(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.auth.during = cancel
	f.svc.Action(ctx, event(domain.ActionOpenDialog))
	if _, ok := f.host.dialog(CommentDialogID); !ok {
		t.Fatalf("comment form not shown after canceled open: %v", f.host.ops)
	}
	if f.svc.State() != StateOpen {
		t.Fatalf("expected open, got %s", f.svc.State())
	}
}

func TestActionsTargetServiceName(t *testing.T) {
	f := newFixture(t)
	f.svc = NewCommentService(CommentOptions{
		Name:      "jiraCommentBeta",
		AssetsURL: "https://assets.example.com/",
		Host:      f.host,
		Auth:      f.auth,
		Issues:    f.issues,
		Templates: dialog.MustTemplates(),
		Auditor:   f.audit,
		Logger:    logging.Discard(),
	})
	f.open(t)
	d, _ := f.host.dialog(CommentDialogID)
	if d.owner != "jiraCommentBeta" {
		t.Fatalf("dialog owned by %q", d.owner)
	}
	for _, typ := range []domain.ActionType{domain.ActionPerformDialogAction, domain.ActionCloseDialog} {
		b, ok := d.data[string(typ)].(dialog.Binding)
		if !ok {
			t.Fatalf("binding %s missing: %+v", typ, d.data)
		}
		if b.TargetService != "jiraCommentBeta" {
			t.Errorf("binding %s targets %q", typ, b.TargetService)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	cases := map[string]string{
		"400": "Invalid comment",
		"401": "Current user is not authorized to perform this action",
		"404": "Issue KEY-9 not found",
		"403": MsgUnexpected,
		"":    MsgUnexpected,
	}
	for code, want := range cases {
		if got := ErrorMessage(code, "KEY-9"); got != want {
			t.Errorf("ErrorMessage(%q) = %q, want %q", code, got, want)
		}
	}
	if RemoteCode(errors.New("plain")) != "" {
		t.Errorf("plain errors carry no code")
	}
}
