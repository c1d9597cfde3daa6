package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// envOverrides are the JIRADIALOG_* variables applied on top of the config file.
type envOverrides struct {
	// BaseURL overrides app.base_url.
	BaseURL string `env:"JIRADIALOG_BASE_URL"`
	// Addr overrides server.addr.
	Addr string `env:"JIRADIALOG_ADDR"`
	// JWTSecret overrides auth.jwt_secret.
	JWTSecret string `env:"JIRADIALOG_JWT_SECRET"`
	// IntegrationURL overrides integration.url.
	IntegrationURL string `env:"JIRADIALOG_INTEGRATION_URL"`
	// JiraURL overrides jira.url.
	JiraURL string `env:"JIRADIALOG_JIRA_URL"`
	// JiraToken overrides jira.token.
	JiraToken string `env:"JIRADIALOG_JIRA_TOKEN"`
	// LogLevel overrides log.level.
	LogLevel string `env:"JIRADIALOG_LOG_LEVEL"`
}

// ApplyEnv overlays JIRADIALOG_* variables from the process environment, then revalidates.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(env.Options{})
}

// applyEnv reads from opts.Environment when set, the process environment otherwise.
func (c *Config) applyEnv(opts env.Options) error {
	var e envOverrides
	if err := env.ParseWithOptions(&e, opts); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	override(&c.App.BaseURL, e.BaseURL)
	override(&c.Server.Addr, e.Addr)
	override(&c.Auth.JWTSecret, e.JWTSecret)
	override(&c.Integration.URL, e.IntegrationURL)
	override(&c.Jira.URL, e.JiraURL)
	override(&c.Jira.Token, e.JiraToken)
	override(&c.Log.Level, e.LogLevel)
	return c.Validate()
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
