package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"jiradialog/internal/app"
	"jiradialog/internal/config"
	"jiradialog/internal/credential"
	"jiradialog/internal/db"
	"jiradialog/internal/domain"
	"jiradialog/internal/repo"
	"jiradialog/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "jiradialog",
	Short: "Comment on Jira issues from chat dialogs",
	Long: `jiradialog backs a chat extension panel that comments on Jira issues.
- Hosts deliver action events (openDialog, performDialogAction, closeDialog) to a feature service.
- The comment service authorizes the user, shows the comment form and posts the draft to Jira.
- The integration backend mints session tokens and forwards comments to the upstream Jira.
- Event log: everything the services did, view with 'jiradialog log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("JIRADIALOG")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().String("config", "", "config file (default <workspace>/jiradialog.yml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(dispatchCmd())
	rootCmd.AddCommand(dialogCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(jiraCmd())
	rootCmd.AddCommand(configCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and integration backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			store := credential.Default()
			opts := appOptions()
			opts.LogOutput = os.Stderr
			opts.Credentials = &store
			return withApp(ctx, opts, func(ctx context.Context, a *app.Context) error {
				if strings.TrimSpace(a.Config.Auth.JWTSecret) == "" {
					return fmt.Errorf("auth.jwt_secret or JIRADIALOG_JWT_SECRET is required to serve")
				}
				if addr == "" {
					addr = a.Config.Server.Addr
				}
				if basePath == "" {
					basePath = a.Config.Server.BasePath
				}
				if a.Engine.Jira == nil {
					a.Logger.Warn("jira.url not set; comment forwarding answers 503")
				}
				fmt.Printf("Serving jiradialog API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				return server.Serve(ctx, addr, server.Config{
					Engine:   a.Engine,
					BasePath: basePath,
					Auth:     server.AuthConfig{Tokens: a.Engine.Tokens, DevLogin: devLogin, Logger: a.Logger},
					Logger:   a.Logger,
				})
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default server.base_path)")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose POST <base>/auth/dev/login")
	return cmd
}

func dispatchCmd() *cobra.Command {
	var user, issueKey, summary, baseURL, text string
	cmd := &cobra.Command{
		Use:   "dispatch <service> <action-type>",
		Short: "Deliver one action event to a feature service",
		Long:  "Runs the service in-process. Authorize and comment calls still go to integration.url, so a server must be running there.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), appOptions(), func(ctx context.Context, a *app.Context) error {
				ev := domain.ActionEvent{
					Type:   domain.ActionType(args[1]),
					Entity: domain.Entity{BaseURL: baseURL, Issue: domain.Issue{Key: issueKey, Summary: summary}},
				}
				if text != "" {
					if ev.Type != domain.ActionPerformDialogAction {
						return fmt.Errorf("--text only applies to %s", domain.ActionPerformDialogAction)
					}
					// the draft only lives in this process, so open first
					open := ev
					open.Type = domain.ActionOpenDialog
					if _, err := a.Engine.Dispatch(ctx, user, args[0], open); err != nil {
						return err
					}
					if _, err := a.Engine.Input(ctx, user, args[0], text); err != nil {
						return err
					}
				}
				res, err := a.Engine.Dispatch(ctx, user, args[0], ev)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("instance %s state %s\n", res.InstanceID, res.State)
				return printDialogs(res.Dialogs)
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "local-user", "user the dialogs are shown to")
	cmd.Flags().StringVar(&issueKey, "issue", "", "issue key")
	cmd.Flags().StringVar(&summary, "summary", "", "issue summary")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Jira base URL of the entity")
	cmd.Flags().StringVar(&text, "text", "", "draft to submit with performDialogAction")
	return cmd
}

func dialogCmd() *cobra.Command {
	d := &cobra.Command{
		Use:   "dialog",
		Short: "Dialogs currently shown to users",
	}
	d.AddCommand(dialogListCmd())
	d.AddCommand(dialogShowCmd())
	return d
}

func dialogListCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List shown dialogs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListDialogs(ctx, user)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				return printDialogs(items)
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "local-user", "user id")
	return cmd
}

func dialogShowCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "show <dialog-id>",
		Short: "Print a dialog's layout and data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				d, err := r.GetDialog(ctx, user, args[0])
				if errors.Is(err, repo.ErrNotFound) {
					return fmt.Errorf("dialog %s is not shown to %s", args[0], user)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				fmt.Printf("%s (owner %s, version %d, updated %s)\n\n%s\n\ndata: %s\n", d.DialogID, d.Owner, d.Version, d.UpdatedAt, d.Layout, d.DataJSON)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "local-user", "user id")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Dialogs shown and closed, authorizations and comments, newest first.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.LatestEvents(ctx, n, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Service", "Entity", "Actor", "Payload"})
				for _, e := range items {
					entity := e.EntityKind
					if e.EntityID != "" {
						entity += ":" + e.EntityID
					}
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.Service, entity, e.ActorID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.Service, "service", "", "service filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	cmd.Flags().StringVar(&f.ActorID, "actor", "", "actor id")
	return cmd
}

func tokenCmd() *cobra.Command {
	t := &cobra.Command{
		Use:   "token",
		Short: "Bearer tokens",
	}
	t.AddCommand(tokenIssueCmd())
	return t
}

func tokenIssueCmd() *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:   "issue <subject>",
		Short: "Mint a bearer token signed with auth.jwt_secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), appOptions(), func(ctx context.Context, a *app.Context) error {
				var (
					token string
					err   error
				)
				if baseURL != "" {
					token, err = a.Engine.Tokens.Issue(args[0], baseURL)
				} else {
					token, err = a.Engine.IssueToken(args[0])
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"token": token})
				}
				fmt.Println(token)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "scope the token to a Jira base URL")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	k := &cobra.Command{
		Use:   "apikey",
		Short: "API keys for chat hosts",
	}
	k.AddCommand(apiKeyCreateCmd())
	k.AddCommand(apiKeyListCmd())
	k.AddCommand(apiKeyDeleteCmd())
	return k
}

func apiKeyCreateCmd() *cobra.Command {
	var actor, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the key is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" {
				return fmt.Errorf("--actor required")
			}
			key, err := generateAPIKey()
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				rec := domain.APIKey{
					ID:      uuid.NewString(),
					ActorID: actor,
					Name:    name,
					KeyHash: repo.HashAPIKey(key),
				}
				if err := r.InsertAPIKey(ctx, nil, rec); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": rec.ID, "actor_id": actor, "key": key})
				}
				fmt.Printf("id:  %s\nkey: %s\n", rec.ID, key)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor the key authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "label")
	return cmd
}

func apiKeyListCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "only keys of this actor")
	return cmd
}

func apiKeyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
}

func jiraCmd() *cobra.Command {
	j := &cobra.Command{
		Use:   "jira",
		Short: "Upstream Jira credentials",
		Long:  "serve reads the Jira API token from jira.token, JIRADIALOG_JIRA_TOKEN or, when both are empty, the OS keyring.",
	}
	j.AddCommand(jiraLoginCmd())
	j.AddCommand(jiraLogoutCmd())
	return j
}

func jiraLoginCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the Jira API token in the OS keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				fmt.Fprint(os.Stderr, "Jira API token: ")
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				token = strings.TrimSpace(line)
			}
			if token == "" {
				return fmt.Errorf("empty token")
			}
			if err := credential.Default().Set(credential.JiraToken, token); err != nil {
				return err
			}
			fmt.Println("jira token stored")
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "API token (read from stdin when omitted)")
	return cmd
}

func jiraLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the Jira API token from the OS keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			return credential.Default().Delete(credential.JiraToken)
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Workspace configuration",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default jiradialog.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), appOptions(), func(ctx context.Context, a *app.Context) error {
				if viper.GetBool("json") {
					return printJSON(a.Config)
				}
				out, err := yaml.Marshal(a.Config)
				if err != nil {
					return err
				}
				fmt.Print(string(out))
				return nil
			})
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), appOptions(), func(ctx context.Context, a *app.Context) error {
				if err := a.Config.Validate(); err != nil {
					return err
				}
				fmt.Println("config ok")
				return nil
			})
		},
	}
}

func appOptions() app.Options {
	return app.Options{
		Workspace:  viper.GetString("workspace"),
		ConfigPath: viper.GetString("config"),
		LogLevel:   viper.GetString("log-level"),
	}
}

func withApp(ctx context.Context, opts app.Options, fn func(context.Context, *app.Context) error) error {
	a, err := app.Open(opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	return withApp(ctx, appOptions(), func(ctx context.Context, a *app.Context) error {
		return fn(ctx, a.Engine.Repo)
	})
}

func printDialogs(items []domain.DialogRecord) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Dialog", "Owner", "Version", "Updated"})
	for _, d := range items {
		tw.AppendRow(table.Row{d.DialogID, d.Owner, d.Version, d.UpdatedAt})
	}
	tw.Render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func generateAPIKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "jd_" + hex.EncodeToString(buf), nil
}
