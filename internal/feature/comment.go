package feature

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"jiradialog/internal/dialog"
	"jiradialog/internal/domain"
	"jiradialog/internal/logging"
)

// Dialog ids shown by the comment feature.
const (
	CommentDialogID         = "commentIssue"
	ErrorDialogID           = "error"
	UnexpectedErrorDialogID = "unexpectedErrorDialog"
)

// CommentServiceName is the name the comment feature is registered and dispatched under.
const CommentServiceName = "commentService"

// Authorizer exchanges an integration base URL for a session token.
type Authorizer interface {
	Authorize(ctx context.Context, baseURL string) (domain.AuthResult, error)
}

// IssueClient posts a comment on a remote issue. Failures should expose the remote
// status through a Code() string method.
type IssueClient interface {
	Comment(ctx context.Context, baseURL, issueKey, text, token string) error
}

// DialogHost shows and closes named dialogs for one user.
type DialogHost interface {
	Show(ctx context.Context, id, owner string, layout dialog.Fragment, data map[string]any, opts map[string]any) error
	Close(ctx context.Context, id string) error
}

// Auditor records feature outcomes; optional.
type Auditor interface {
	Record(ctx context.Context, evtType string, ev domain.ActionEvent, payload map[string]any)
}

// State is the lifecycle position of the comment dialog.
type State string

const (
	StateClosed      State = "closed"
	StateAuthorizing State = "authorizing"
	StateOpen        State = "open"
	StateOpenError   State = "open_error"
	StateSubmitting  State = "submitting"
	StateSuccess     State = "success_shown"
)

// AuthorizedFunc runs once authorization succeeded, with the service that authorized.
type AuthorizedFunc func(s *CommentService, ctx context.Context, ev domain.ActionEvent)

// CommentOptions wires a CommentService.
type CommentOptions struct {
	Name      string
	Title     string
	AssetsURL string
	Host      DialogHost
	Auth      Authorizer
	Issues    IssueClient
	Templates dialog.Templates
	Auditor   Auditor
	Logger    *slog.Logger
}

// CommentService owns the lifecycle of one user's comment-on-issue dialog.
//
// The mutex guards session, draft and state. It is released while the authorize
// and comment calls are in flight; gen is bumped on every open and close so a
// completion that finds a different gen knows its dialog is gone and drops its update.
type CommentService struct {
	name      string
	title     string
	assetsURL string
	host      DialogHost
	auth      Authorizer
	issues    IssueClient
	tpl       dialog.Templates
	audit     Auditor
	log       *slog.Logger

	mu    sync.Mutex
	token string
	draft string
	state State
	gen   uint64
}

func NewCommentService(opts CommentOptions) *CommentService {
	name := opts.Name
	if name == "" {
		name = CommentServiceName
	}
	title := opts.Title
	if title == "" {
		title = "Comment on"
	}
	return &CommentService{
		name:      name,
		title:     title,
		assetsURL: strings.TrimRight(opts.AssetsURL, "/"),
		host:      opts.Host,
		auth:      opts.Auth,
		issues:    opts.Issues,
		tpl:       opts.Templates,
		audit:     opts.Auditor,
		log:       logging.OrDefault(opts.Logger).With("service", name),
		state:     StateClosed,
	}
}

func (s *CommentService) Name() string { return s.name }

// State returns the current dialog state.
func (s *CommentService) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Draft returns the in-progress comment text.
func (s *CommentService) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// Token returns the session token set by the last successful authorization.
func (s *CommentService) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Action dispatches a host event. Unknown types show the generic error dialog.
func (s *CommentService) Action(ctx context.Context, ev domain.ActionEvent) {
	switch ev.Type {
	case domain.ActionOpenDialog:
		s.ShowDialog(ctx, ev, (*CommentService).OpenActionDialog)
	case domain.ActionPerformDialogAction:
		s.Save(ctx, ev)
	case domain.ActionCloseDialog:
		s.CloseActionDialog(ctx)
	default:
		s.log.Warn("unknown action type", "type", ev.Type)
		s.record(ctx, "action.unknown", ev, map[string]any{"type": string(ev.Type)})
		s.mu.Lock()
		defer s.mu.Unlock()
		s.renderStatic(ctx, ErrorDialogID, s.tpl.Error)
	}
}

// ShowDialog authorizes against the entity's base URL and, on success, stores the
// session token and runs onAuthorized. Any failure shows the unexpected-error dialog.
func (s *CommentService) ShowDialog(ctx context.Context, ev domain.ActionEvent, onAuthorized AuthorizedFunc) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.state = StateAuthorizing
	s.mu.Unlock()

	res, err := s.auth.Authorize(ctx, ev.Entity.BaseURL)
	if err == nil && !res.Success {
		err = ErrRejected
	}
	if err == nil && res.JWT == "" {
		err = ErrMalformedAuth
	}
	// The caller may be gone by now; the dialog must still reach its final render.
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		s.log.Info("dropping stale authorization result", "issue", ev.Entity.Issue.Key)
		return
	}
	if err != nil {
		defer s.mu.Unlock()
		s.log.Warn("authorization failed", "base_url", ev.Entity.BaseURL, "err", err)
		s.record(ctx, "authorize.failed", ev, map[string]any{"error": err.Error()})
		s.state = StateClosed
		s.renderStatic(ctx, UnexpectedErrorDialogID, s.tpl.UnexpectedError)
		return
	}
	s.token = res.JWT
	if onAuthorized == nil {
		defer s.mu.Unlock()
		s.log.Error("authorization succeeded without callback", "err", ErrNoCallback)
		s.state = StateClosed
		s.renderStatic(ctx, UnexpectedErrorDialogID, s.tpl.UnexpectedError)
		return
	}
	s.mu.Unlock()
	onAuthorized(s, ctx, ev)
}

// OpenActionDialog resets the draft and shows a fresh comment form.
func (s *CommentService) OpenActionDialog(ctx context.Context, ev domain.ActionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = ""
	layout, data, ok := s.renderForm(ev, "")
	if !ok {
		s.state = StateClosed
		s.renderStatic(ctx, UnexpectedErrorDialogID, s.tpl.UnexpectedError)
		return
	}
	s.state = StateOpen
	s.show(ctx, CommentDialogID, layout, data)
}

// Save validates the draft. An empty draft re-renders the form with an inline
// error and makes no network call; anything else is submitted.
func (s *CommentService) Save(ctx context.Context, ev domain.ActionEvent) {
	s.mu.Lock()
	if s.draft == "" {
		defer s.mu.Unlock()
		s.state = StateOpenError
		s.updateForm(ctx, ev, MsgInvalidComment)
		return
	}
	s.mu.Unlock()
	s.PerformSubmit(ctx, ev)
}

// PerformSubmit posts the draft. Either way the draft is cleared and the dialog is
// updated in place: success content without footer, or the form with the mapped error.
func (s *CommentService) PerformSubmit(ctx context.Context, ev domain.ActionEvent) {
	s.mu.Lock()
	text, token, gen := s.draft, s.token, s.gen
	s.state = StateSubmitting
	s.mu.Unlock()

	issueKey := ev.Entity.Issue.Key
	err := s.issues.Comment(ctx, ev.Entity.BaseURL, issueKey, text, token)
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		s.log.Info("dropping stale comment result", "issue", issueKey, "err", err)
		return
	}
	s.draft = ""
	if err == nil {
		s.log.Info("comment created", "issue", issueKey)
		s.record(ctx, "comment.created", ev, map[string]any{"length": len(text)})
		s.state = StateSuccess
		s.showSuccess(ctx, ev)
		return
	}
	code := RemoteCode(err)
	msg := ErrorMessage(code, issueKey)
	s.log.Warn("comment failed", "issue", issueKey, "code", code, "err", err)
	s.record(ctx, "comment.failed", ev, map[string]any{"code": code, "message": msg})
	s.state = StateOpenError
	s.updateForm(ctx, ev, msg)
}

// CloseActionDialog closes the comment dialog.
func (s *CommentService) CloseActionDialog(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.state = StateClosed
	if err := s.host.Close(ctx, CommentDialogID); err != nil {
		s.log.Error("close dialog", "dialog", CommentDialogID, "err", err)
	}
}

// Changed overwrites the draft. Validation waits for Save.
func (s *CommentService) Changed(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = text
}

// The helpers below expect s.mu to be held.

func (s *CommentService) descriptors() []dialog.ActionDescriptor {
	return []dialog.ActionDescriptor{
		{TargetService: s.name, Type: domain.ActionPerformDialogAction, Label: "COMMENT"},
		{TargetService: s.name, Type: domain.ActionCloseDialog, Label: "Cancel"},
	}
}

func (s *CommentService) renderForm(ev domain.ActionEvent, errText string) (dialog.Fragment, map[string]any, bool) {
	body, err := s.tpl.CommentForm.Render(map[string]string{"Service": s.name})
	if err != nil {
		s.log.Error("render comment form", "err", err)
		return "", nil, false
	}
	b := dialog.NewBuilder(s.title, body)
	if errText != "" {
		b = b.Error(errText)
	}
	content := b.Build(dialog.Data{
		Entity:  ev.Entity,
		Actions: dialog.Bind(s.descriptors(), s.name, ev.Entity),
		Inputs:  map[string]dialog.Input{"userComment": {Service: s.name}},
	})
	layout, err := content.Render(s.tpl.Frame)
	if err != nil {
		s.log.Error("render dialog frame", "err", err)
		return "", nil, false
	}
	return layout, content.Data(), true
}

func (s *CommentService) updateForm(ctx context.Context, ev domain.ActionEvent, errText string) {
	layout, data, ok := s.renderForm(ev, errText)
	if !ok {
		return
	}
	s.update(ctx, CommentDialogID, layout, data)
}

func (s *CommentService) showSuccess(ctx context.Context, ev domain.ActionEvent) {
	body, err := s.tpl.CommentCreated.Render(map[string]string{
		"SuccessImg": s.assetsURL + "/apps/jira/img/icon-checkmark-green.svg",
	})
	if err != nil {
		s.log.Error("render success", "err", err)
		return
	}
	content := dialog.NewBuilder(s.title, body).Footer(false).Build(dialog.Data{Entity: ev.Entity})
	layout, err := content.Render(s.tpl.Frame)
	if err != nil {
		s.log.Error("render dialog frame", "err", err)
		return
	}
	s.update(ctx, CommentDialogID, layout, map[string]any{})
}

func (s *CommentService) renderStatic(ctx context.Context, id string, tpl dialog.Template) {
	layout, err := tpl.Render(nil)
	if err != nil {
		s.log.Error("render dialog", "dialog", id, "err", err)
		return
	}
	s.show(ctx, id, layout, map[string]any{})
}

func (s *CommentService) show(ctx context.Context, id string, layout dialog.Fragment, data map[string]any) {
	if err := s.host.Show(ctx, id, s.name, layout, data, map[string]any{}); err != nil {
		s.log.Error("show dialog", "dialog", id, "err", err)
	}
}

// update replaces a shown dialog: close, then show under the same id.
func (s *CommentService) update(ctx context.Context, id string, layout dialog.Fragment, data map[string]any) {
	if err := s.host.Close(ctx, id); err != nil {
		s.log.Error("close dialog", "dialog", id, "err", err)
	}
	s.show(ctx, id, layout, data)
}

func (s *CommentService) record(ctx context.Context, evtType string, ev domain.ActionEvent, payload map[string]any) {
	if s.audit != nil {
		s.audit.Record(ctx, evtType, ev, payload)
	}
}
