package app

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"jiradialog/internal/config"
	"jiradialog/internal/credential"
	"jiradialog/internal/db"
	"jiradialog/internal/engine"
	"jiradialog/internal/logging"
	"jiradialog/internal/migrate"
)

// Options select the workspace and the overrides applied on top of its config file.
type Options struct {
	Workspace  string
	ConfigPath string
	LogLevel   string
	LogOutput  io.Writer
	// Credentials supplies jira.token when neither the file nor the environment sets it.
	Credentials *credential.Store
}

// Context is an opened workspace: migrated database, effective config, logger and engine.
type Context struct {
	DB     *sql.DB
	Config *config.Config
	Logger *slog.Logger
	Engine engine.Engine
}

// Open loads config (defaults when no file exists, then JIRADIALOG_* overrides),
// opens and migrates the workspace database and builds the engine.
func Open(opts Options) (*Context, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	level := cfg.Log.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	var logger *slog.Logger
	if opts.LogOutput != nil {
		logger = logging.NewLogger(opts.LogOutput, logging.ParseLevel(level))
	} else {
		logger = logging.Discard()
	}
	if cfg.Jira.Token == "" && opts.Credentials != nil {
		token, err := opts.Credentials.Get(credential.JiraToken)
		switch {
		case err == nil:
			cfg.Jira.Token = token
		case !errors.Is(err, credential.ErrNotFound):
			logger.Warn("jira token from keyring", "err", err)
		}
	}

	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate %s: %w", db.Path(opts.Workspace), err)
	}
	return &Context{
		DB:     conn,
		Config: cfg,
		Logger: logger,
		Engine: engine.New(conn, cfg, logger),
	}, nil
}

func (c *Context) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

func loadConfig(opts Options) (*config.Config, error) {
	if opts.ConfigPath != "" {
		cfg, err := config.FromFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", opts.ConfigPath, err)
		}
		return cfg, nil
	}
	return config.LoadOptional(opts.Workspace)
}
