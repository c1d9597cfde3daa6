package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"jiradialog/internal/authz"
	"jiradialog/internal/config"
	"jiradialog/internal/dialog"
	"jiradialog/internal/domain"
	"jiradialog/internal/engine/auth"
	"jiradialog/internal/events"
	"jiradialog/internal/feature"
	"jiradialog/internal/host"
	"jiradialog/internal/jira"
	"jiradialog/internal/jira/webhook"
	"jiradialog/internal/logging"
	"jiradialog/internal/repo"
)

// UnknownServiceError is returned when an event names a service nothing is registered under.
type UnknownServiceError struct {
	Service string
}

func (e UnknownServiceError) Error() string {
	return fmt.Sprintf("unknown service %s", e.Service)
}

// Engine wires feature services to their collaborators and keeps one instance of
// each service per user.
type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Config    *config.Config
	Logger    *slog.Logger
	Templates dialog.Templates
	Auth      feature.Authorizer
	Issues    feature.IssueClient
	Tokens    auth.Issuer
	Jira      *jira.Client
	Webhooks  *webhook.Registry
	Hub       *host.Hub
	Now       func() time.Time

	reg *registry
}

func New(db *sql.DB, cfg *config.Config, logger *slog.Logger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	integrationURL := cfg.IntegrationURL()
	timeout := cfg.IntegrationTimeout()
	e := Engine{
		DB:        db,
		Repo:      repo.Repo{DB: db},
		Events:    events.Writer{DB: db},
		Config:    cfg,
		Logger:    logging.OrDefault(logger),
		Templates: dialog.MustTemplates(),
		Auth:      authz.NewClient(authz.Endpoint(integrationURL, cfg.Integration.AuthorizePath), timeout),
		Issues:    jira.NewCommenter(integrationURL, cfg.Integration.CommentPath, timeout),
		Tokens: auth.Issuer{
			Secret: cfg.Auth.JWTSecret,
			Issuer: cfg.Auth.Issuer,
			TTL:    cfg.TokenTTL(),
		},
		Webhooks: webhook.DefaultRegistry(),
		Hub:      host.NewHub(),
		Now:      time.Now,
		reg:      newRegistry(),
	}
	if cfg.Jira.URL != "" {
		e.Jira = jira.NewClient(cfg.Jira.URL, cfg.Jira.Token,
			jira.WithTimeout(cfg.JiraTimeout()),
			jira.WithMaxRetries(cfg.Jira.MaxRetries))
	}
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *slog.Logger {
	return logging.OrDefault(e.Logger)
}

// Instance is one user's copy of a feature service.
type Instance struct {
	ID      string
	UserID  string
	Service *feature.CommentService
	Created time.Time
}

type registry struct {
	mu        sync.Mutex
	instances map[string]map[string]*Instance
}

func newRegistry() *registry {
	return &registry{instances: map[string]map[string]*Instance{}}
}

// Services lists the service names events can be dispatched to.
func (e Engine) Services() []string {
	return []string{feature.CommentServiceName}
}

// Service returns the user's instance of the named service, creating it on first use.
func (e Engine) Service(userID, name string) (*Instance, error) {
	if userID == "" {
		return nil, fmt.Errorf("user required")
	}
	if name != feature.CommentServiceName {
		return nil, UnknownServiceError{Service: name}
	}
	if e.reg == nil {
		return nil, fmt.Errorf("engine not initialized")
	}
	e.reg.mu.Lock()
	defer e.reg.mu.Unlock()
	byName, ok := e.reg.instances[userID]
	if !ok {
		byName = map[string]*Instance{}
		e.reg.instances[userID] = byName
	}
	if inst, ok := byName[name]; ok {
		return inst, nil
	}
	inst := &Instance{
		ID:      uuid.NewString(),
		UserID:  userID,
		Created: e.now().UTC(),
	}
	inst.Service = feature.NewCommentService(feature.CommentOptions{
		Name:      name,
		Title:     e.Config.Dialogs.Title,
		AssetsURL: e.Config.App.BaseURL,
		Host: host.Store{
			Repo:   e.Repo,
			Events: e.Events,
			Hub:    e.Hub,
			UserID: userID,
			Logger: e.logger(),
		},
		Auth:      e.Auth,
		Issues:    e.Issues,
		Templates: e.Templates,
		Auditor:   auditor{events: e.Events, userID: userID, service: name, log: e.logger()},
		Logger:    e.logger().With("user", userID, "instance", inst.ID),
	})
	byName[name] = inst
	e.logger().Debug("service instance created", "user", userID, "service", name, "instance", inst.ID)
	return inst, nil
}

// Instances returns the live service instances of a user, or of everyone when userID is empty.
func (e Engine) Instances(userID string) []*Instance {
	if e.reg == nil {
		return nil
	}
	e.reg.mu.Lock()
	defer e.reg.mu.Unlock()
	var out []*Instance
	for uid, byName := range e.reg.instances {
		if userID != "" && uid != userID {
			continue
		}
		for _, inst := range byName {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Service.Name() < out[j].Service.Name()
	})
	return out
}

// DispatchResult reports the service state after an event and the dialogs now shown to the user.
type DispatchResult struct {
	InstanceID string
	State      feature.State
	Dialogs    []domain.DialogRecord
}

// Dispatch delivers a host action event to the user's instance of service.
func (e Engine) Dispatch(ctx context.Context, userID, service string, ev domain.ActionEvent) (DispatchResult, error) {
	inst, err := e.Service(userID, service)
	if err != nil {
		return DispatchResult{}, err
	}
	inst.Service.Action(ctx, ev)
	dialogs, err := e.Repo.ListDialogs(context.WithoutCancel(ctx), userID)
	if err != nil {
		return DispatchResult{}, fmt.Errorf("list dialogs: %w", err)
	}
	return DispatchResult{InstanceID: inst.ID, State: inst.Service.State(), Dialogs: dialogs}, nil
}

// Input forwards user-typed text to the service's draft.
func (e Engine) Input(ctx context.Context, userID, service, text string) (feature.State, error) {
	inst, err := e.Service(userID, service)
	if err != nil {
		return "", err
	}
	inst.Service.Changed(text)
	return inst.Service.State(), nil
}

type auditor struct {
	events  events.Writer
	userID  string
	service string
	log     *slog.Logger
}

func (a auditor) Record(ctx context.Context, evtType string, ev domain.ActionEvent, payload map[string]any) {
	p := events.EventPayload{"base_url": ev.Entity.BaseURL}
	for k, v := range payload {
		p[k] = v
	}
	if err := a.events.Append(ctx, nil, evtType, a.service, "issue", ev.Entity.Issue.Key, a.userID, p); err != nil {
		a.log.Error("record event", "type", evtType, "err", err)
	}
}
