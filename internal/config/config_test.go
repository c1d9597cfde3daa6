package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Dialogs.Title != "Comment on" {
		t.Fatalf("unexpected dialog title %q", cfg.Dialogs.Title)
	}
	if cfg.TokenTTL() != time.Hour {
		t.Fatalf("expected 1h ttl, got %s", cfg.TokenTTL())
	}
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("jira:\n  url: https://jira.example.com\n  token: pat\nauth:\n  token_ttl: 15m\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Jira.URL != "https://jira.example.com" || cfg.Jira.Token != "pat" {
		t.Fatalf("jira settings not applied: %+v", cfg.Jira)
	}
	if cfg.Server.BasePath != "/v0" {
		t.Fatalf("default base path lost: %q", cfg.Server.BasePath)
	}
	if cfg.TokenTTL() != 15*time.Minute {
		t.Fatalf("expected 15m ttl, got %s", cfg.TokenTTL())
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"base path":    "server:\n  base_path: v0\n",
		"ttl":          "auth:\n  token_ttl: soon\n",
		"comment path": "integration:\n  comment_path: /comments\n",
		"title":        "dialogs:\n  title: \"  \"\n",
		"webhook":      "webhooks:\n  - url: \"\"\n",
	}
	for name, doc := range cases {
		if _, err := FromYAML([]byte(doc)); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestLoadOptionalFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:8080" {
		t.Fatalf("expected default addr, got %q", cfg.Server.Addr)
	}
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected debug level, got %q", cfg.Log.Level)
	}
}

func TestIntegrationURL(t *testing.T) {
	cfg := Default()
	if got := cfg.IntegrationURL(); got != "http://127.0.0.1:8080" {
		t.Fatalf("expected app base url fallback, got %q", got)
	}
	cfg.Integration.URL = "https://integration.example.com/"
	if got := cfg.IntegrationURL(); got != "https://integration.example.com" {
		t.Fatalf("unexpected integration url %q", got)
	}
	if cfg.JiraTimeout() != 30*time.Second {
		t.Fatalf("unexpected jira timeout %v", cfg.JiraTimeout())
	}
}

func TestApplyEnvOverridesFile(t *testing.T) {
	cfg, err := FromYAML([]byte("jira:\n  url: https://file.example.com\n  token: from-file\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	err = cfg.applyEnv(env.Options{Environment: map[string]string{
		"JIRADIALOG_JWT_SECRET": "s3cret",
		"JIRADIALOG_JIRA_TOKEN": "from-env",
		"JIRADIALOG_LOG_LEVEL":  "debug",
		"UNRELATED":             "x",
	}})
	if err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.Auth.JWTSecret != "s3cret" || cfg.Jira.Token != "from-env" || cfg.Log.Level != "debug" {
		t.Fatalf("overrides not applied: %+v %+v", cfg.Auth, cfg.Jira)
	}
	if cfg.Jira.URL != "https://file.example.com" {
		t.Fatalf("unset variables must keep file values, got %q", cfg.Jira.URL)
	}
}
