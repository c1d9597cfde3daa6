package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const FileName = "jiradialog.yml"

// Config models jiradialog.yml.
type Config struct {
	App struct {
		// BaseURL is the public URL of this service; dialog images load from it.
		BaseURL string `yaml:"base_url"`
	} `yaml:"app"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		Issuer    string `yaml:"issuer"`
		TokenTTL  string `yaml:"token_ttl"`
	} `yaml:"auth"`
	Integration struct {
		// URL hosts the authorize and comment endpoints; empty means app.base_url.
		URL            string `yaml:"url"`
		AuthorizePath  string `yaml:"authorize_path"`
		CommentPath    string `yaml:"comment_path"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"integration"`
	Jira struct {
		URL            string `yaml:"url"`
		Token          string `yaml:"token"`
		MaxRetries     int    `yaml:"max_retries"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"jira"`
	Dialogs struct {
		Title string `yaml:"title"`
	} `yaml:"dialogs"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig describes an outbound receiver of event log entries.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; write one with jiradialog config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Auth.TokenTTL != "" {
		ttl, err := time.ParseDuration(c.Auth.TokenTTL)
		if err != nil {
			return fmt.Errorf("config.auth.token_ttl: %w", err)
		}
		if ttl <= 0 {
			return fmt.Errorf("config.auth.token_ttl must be positive")
		}
	}
	if !strings.HasPrefix(c.Integration.AuthorizePath, "/") {
		return fmt.Errorf("config.integration.authorize_path must start with /")
	}
	if !strings.Contains(c.Integration.CommentPath, "{issue_key}") {
		return fmt.Errorf("config.integration.comment_path must contain {issue_key}")
	}
	if c.Integration.TimeoutSeconds < 0 || c.Jira.TimeoutSeconds < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.Jira.MaxRetries < 0 {
		return fmt.Errorf("config.jira.max_retries must not be negative")
	}
	if strings.TrimSpace(c.Dialogs.Title) == "" {
		return fmt.Errorf("config.dialogs.title is required")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhook %s has negative timeout", hook.URL)
		}
	}
	return nil
}

// TokenTTL returns the lifetime of integration tokens.
func (c *Config) TokenTTL() time.Duration {
	ttl, err := time.ParseDuration(c.Auth.TokenTTL)
	if err != nil || ttl <= 0 {
		return time.Hour
	}
	return ttl
}

// IntegrationURL is the base URL feature services call for authorize and comment.
func (c *Config) IntegrationURL() string {
	if strings.TrimSpace(c.Integration.URL) != "" {
		return strings.TrimRight(c.Integration.URL, "/")
	}
	return strings.TrimRight(c.App.BaseURL, "/")
}

// JiraTimeout bounds upstream Jira calls.
func (c *Config) JiraTimeout() time.Duration {
	if c.Jira.TimeoutSeconds > 0 {
		return time.Duration(c.Jira.TimeoutSeconds) * time.Second
	}
	return 30 * time.Second
}

// IntegrationTimeout bounds authorize and comment calls made by feature services.
func (c *Config) IntegrationTimeout() time.Duration {
	if c.Integration.TimeoutSeconds > 0 {
		return time.Duration(c.Integration.TimeoutSeconds) * time.Second
	}
	return 10 * time.Second
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// FromYAML parses config from raw YAML bytes on top of the defaults, then validates it.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `app:
  base_url: http://127.0.0.1:8080

server:
  addr: 127.0.0.1:8080
  base_path: /v0

auth:
  jwt_secret: ""
  issuer: jiradialog
  token_ttl: 1h

integration:
  url: ""
  authorize_path: /v0/authorize
  comment_path: /v0/jira/issues/{issue_key}/comments
  timeout_seconds: 10

jira:
  url: ""
  token: ""
  max_retries: 3
  timeout_seconds: 30

dialogs:
  title: Comment on

log:
  level: info

webhooks: []
`
