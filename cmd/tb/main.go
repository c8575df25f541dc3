package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskboard/internal/config"
	"taskboard/internal/db"
	"taskboard/internal/domain"
	"taskboard/internal/engine"
	"taskboard/internal/migrate"
	"taskboard/internal/repo"
	"taskboard/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tb",
	Short: "Taskboard CLI",
	Long: `Taskboard is a small task tracker: users, task statuses, labels and tasks.
Tasks carry a status, an optional assignee and any number of labels; lists
support conjunctive filtering (title substring, assignee, status slug, label)
with fixed-size pages. Statuses, labels and users that tasks still reference
cannot be deleted.`,
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
	viper.SetEnvPrefix("TASKBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier for the event log")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(bootstrapCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(labelCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace (config file and database)",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", path)
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			fmt.Printf("Database ready at %s\n", db.Path(workspace))
			return nil
		},
	}
	return cmd
}

func bootstrapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Seed the admin account and default labels",
		Long:  "Reads ADMIN_EMAIL and ADMIN_PASSWORD (or the config file) and creates the admin user plus the default labels if they are missing. Safe to run repeatedly.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Bootstrap(ctx); err != nil {
					return err
				}
				fmt.Println("Bootstrap complete")
				return nil
			})
		},
	}
	return cmd
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}
	user.AddCommand(userListCmd())
	user.AddCommand(userCreateCmd())
	return user
}

func userListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				users, err := r.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Email", "Name", "Roles", "Created"})
				for _, u := range users {
					name := strings.TrimSpace(u.FirstName + " " + u.LastName)
					tw.AppendRow(table.Row{u.ID, u.Email, name, strings.Join(u.Roles, ","), u.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func userCreateCmd() *cobra.Command {
	var email, firstName, lastName, password string
	var admin bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				roles := []string{domain.RoleUser}
				if admin {
					roles = append(roles, domain.RoleAdmin)
				}
				u, err := e.CreateUser(ctx, email, firstName, lastName, password, roles)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&firstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.Flags().BoolVar(&admin, "admin", false, "grant the admin role")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func statusCmd() *cobra.Command {
	status := &cobra.Command{Use: "status", Short: "Manage task statuses"}
	status.AddCommand(statusListCmd())
	status.AddCommand(statusCreateCmd())
	status.AddCommand(statusDeleteCmd())
	return status
}

func statusListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List task statuses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				statuses, err := r.ListStatuses(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(statuses)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Slug", "Created"})
				for _, s := range statuses {
					tw.AppendRow(table.Row{s.ID, s.Name, s.Slug, s.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func statusCreateCmd() *cobra.Command {
	var name, slug string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.CreateStatus(ctx, name, slug)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&slug, "slug", "", "unique slug")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("slug")
	return cmd
}

func statusDeleteCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a task status (refused while tasks reference it)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteStatus(ctx, id, viper.GetString("actor-id"))
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "status id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func labelCmd() *cobra.Command {
	label := &cobra.Command{Use: "label", Short: "Manage labels"}
	label.AddCommand(labelListCmd())
	label.AddCommand(labelCreateCmd())
	label.AddCommand(labelDeleteCmd())
	return label
}

func labelListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List labels",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				labels, err := r.ListLabels(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(labels)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, l := range labels {
					tw.AppendRow(table.Row{l.ID, l.Name, l.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func labelCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a label",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				l, err := e.CreateLabel(ctx, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "label name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func labelDeleteCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a label (refused while tasks carry it)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteLabel(ctx, id, viper.GetString("actor-id"))
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "label id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskDeleteCmd())
	return task
}

func taskListCmd() *cobra.Command {
	var titleCont, status string
	var assigneeID, labelID int64
	var page int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks with optional filters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				filter := domain.TaskFilter{TitleCont: titleCont, Status: status}
				if cmd.Flags().Changed("assignee") {
					filter.AssigneeID = &assigneeID
				}
				if cmd.Flags().Changed("label") {
					filter.LabelID = &labelID
				}
				tasks, total, err := e.ListTasks(ctx, filter, page)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"total": total, "items": tasks})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Assignee", "Labels"})
				for _, t := range tasks {
					assignee := ""
					if t.AssigneeID != nil {
						assignee = fmt.Sprintf("%d", *t.AssigneeID)
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.StatusSlug, assignee, toJSONArray(t.LabelIDs)})
				}
				tw.Render()
				fmt.Printf("Total: %d (page %d, %d per page)\n", total, page, domain.PageSize)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&titleCont, "title-cont", "", "title substring filter (case-insensitive)")
	cmd.Flags().Int64Var(&assigneeID, "assignee", 0, "assignee user id filter")
	cmd.Flags().StringVar(&status, "status", "", "status slug filter")
	cmd.Flags().Int64Var(&labelID, "label", 0, "label id filter")
	cmd.Flags().IntVar(&page, "page", 1, "page number (1-based)")
	return cmd
}

func taskCreateCmd() *cobra.Command {
	var title, content, status string
	var index int
	var assigneeID int64
	var labelIDs []int64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				draft := engine.TaskDraft{
					Title:    title,
					Index:    index,
					Content:  content,
					Status:   status,
					LabelIDs: labelIDs,
				}
				if cmd.Flags().Changed("assignee") {
					draft.AssigneeID = &assigneeID
				}
				t, err := e.CreateTask(ctx, draft, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().IntVar(&index, "index", 0, "ordering index")
	cmd.Flags().StringVar(&content, "content", "", "task body")
	cmd.Flags().StringVar(&status, "status", "", "status slug")
	cmd.Flags().Int64Var(&assigneeID, "assignee", 0, "assignee user id")
	cmd.Flags().Int64SliceVar(&labelIDs, "label", nil, "label id (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func taskShowCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.GetTask(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "task id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteTask(ctx, id, viper.GetString("actor-id"))
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "task id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func tokenCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				user, err := e.Repo.FindUserByEmail(ctx, email)
				if err != nil {
					return err
				}
				authCfg, err := resolveAuthConfig(e)
				if err != nil {
					return err
				}
				token, err := server.SignToken(authCfg, user)
				if err != nil {
					return err
				}
				fmt.Println(token)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "user email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Events.Tail(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Type", "Entity", "Actor"})
				for _, ev := range items {
					entity := ev.EntityKind
					if ev.EntityID != "" {
						entity += "/" + ev.EntityID
					}
					tw.AppendRow(table.Row{ev.TS, ev.Type, entity, ev.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of events")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			if err := e.Bootstrap(cmd.Context()); err != nil {
				return err
			}
			authCfg, err := resolveAuthConfig(e)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Listen
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Taskboard API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from config)")
	return cmd
}

func resolveAuthConfig(e engine.Engine) (server.AuthConfig, error) {
	secret := e.Config.Auth.JWTSecret
	if env := os.Getenv("TASKBOARD_JWT_SECRET"); env != "" {
		secret = env
	}
	if secret == "" {
		return server.AuthConfig{}, fmt.Errorf("TASKBOARD_JWT_SECRET (or auth.jwt_secret in config) is required for bearer auth")
	}
	return server.AuthConfig{
		JWTSecret: secret,
		Issuer:    e.Config.Auth.Issuer,
		TokenTTL:  e.Config.Auth.TokenTTL,
	}, nil
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, cfg))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func toJSONArray(items []int64) string {
	b, _ := json.Marshal(items)
	return string(b)
}
