// Command folioctl is the operator CLI for the Folio API: it applies
// migrations, inspects transition tables and sweeps overdue documents.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"folio/api/internal/app"
	"folio/api/internal/config"
	"folio/api/internal/lifecycle"
	"folio/api/internal/logging"
	"folio/api/internal/revisions"
	"folio/api/internal/store"
)

const Version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:           "folioctl",
		Short:         "Operate a Folio API deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional .env file to load before reading the environment")

	loadConfig := func() (config.Config, error) {
		return config.Load(envFile)
	}

	cmd.AddCommand(
		migrateCmd(loadConfig),
		tablesCmd(),
		actionsCmd(),
		overdueCmd(loadConfig),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "folioctl version %s\n", Version)
			},
		},
	)
	return cmd
}

func migrateCmd(loadConfig func() (config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			db, dialect, err := openDatabase(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := store.Migrate(ctx, db, dialect, cfg.MigrationsDir); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", dialect)
			return nil
		},
	}
}

func tablesCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Print the transition tables as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printTables(cmd.OutOrStdout(), lifecycle.MustDefault(), kind)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Only print the table for this kind")
	return cmd
}

func printTables(out io.Writer, engine *lifecycle.Engine, kind string) error {
	tables := engine.Tables()
	selected := map[string]*lifecycle.Table{}
	for k, table := range tables {
		if kind == "" || string(k) == kind {
			selected[string(k)] = table
		}
	}
	if len(selected) == 0 {
		return fmt.Errorf("unknown kind %q", kind)
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(selected); err != nil {
		return fmt.Errorf("encode tables: %w", err)
	}
	return enc.Close()
}

func actionsCmd() *cobra.Command {
	var (
		kind     string
		state    string
		assigned bool
	)
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "List the actions offered for a kind in a state",
		RunE: func(cmd *cobra.Command, args []string) error {
			actions, err := availableActions(lifecycle.MustDefault(), kind, state, assigned)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(actions))
			for _, action := range actions {
				names = append(names, string(action))
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(names, "\n"))
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Document kind (feedback, receipt, path, wall)")
	cmd.Flags().StringVar(&state, "state", "", "Document state; defaults to the kind's initial state")
	cmd.Flags().BoolVar(&assigned, "assigned", false, "Treat the document as having a recipient")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func availableActions(engine *lifecycle.Engine, kind, state string, assigned bool) ([]lifecycle.Action, error) {
	k := lifecycle.Kind(strings.TrimSpace(kind))
	if parsed, ok := lifecycle.ParseCollection(kind); ok {
		k = parsed
	}
	table, ok := engine.Table(k)
	if !ok {
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
	s := table.Initial
	if state != "" {
		s = lifecycle.State(strings.TrimSpace(state))
		if !table.HasState(s) {
			return nil, fmt.Errorf("%s has no state %q", k, state)
		}
	}
	doc := lifecycle.Document{Kind: k, State: s}
	if assigned {
		doc.Assignment = lifecycle.Assignment{RecipientEmail: "recipient@example.com"}
	}
	actions := engine.AvailableActions(doc)
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions, nil
}

func overdueCmd(loadConfig func() (config.Config, error)) *cobra.Command {
	var orgID string
	cmd := &cobra.Command{
		Use:   "overdue",
		Short: "Move past-due documents into their overdue state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			db, dialect, err := openDatabase(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			service := app.New(cfg, app.Deps{
				Store:     store.NewSQLStore(db, dialect),
				Revisions: revisions.New(cfg.RevisionsDir),
				Logger:    logger,
			})
			marked, err := service.MarkOverdue(ctx, orgID)
			if err != nil {
				return err
			}
			logger.Info("overdue sweep finished", zap.String("org_id", orgID), zap.Int("marked", marked))
			fmt.Fprintf(cmd.OutOrStdout(), "%d document(s) marked overdue\n", marked)
			return nil
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "Limit the sweep to one organization")
	return cmd
}

func openDatabase(ctx context.Context, cfg config.Config) (*sql.DB, store.Dialect, error) {
	dialect, err := store.ParseDialect(cfg.DatabaseDriver)
	if err != nil {
		return nil, "", err
	}
	db, err := store.Open(ctx, dialect, cfg.DatabaseURL)
	if err != nil {
		return nil, "", err
	}
	return db, dialect, nil
}
