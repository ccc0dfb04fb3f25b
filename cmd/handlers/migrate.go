package handlers

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"curator/internal/config"
	"curator/internal/logger"
	"curator/internal/persistence"
)

// NewMigrateCmd creates the migrate command for database migrations
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long: `Manage database schema migrations.

Subcommands:
  up       Apply all pending migrations
  status   Show migration status

The migration system tracks applied migrations in the schema_migrations table
and applies new migrations in sequential order.

Examples:
  # Apply all pending migrations
  curator migrate up

  # Check migration status
  curator migrate status`,
	}

	cmd.AddCommand(newMigrateUpCmd())
	cmd.AddCommand(newMigrateStatusCmd())

	return cmd
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Long: `Apply all pending database migrations.

Each migration runs in its own transaction together with its
schema_migrations record, so a failed migration leaves no trace.

Example:
  curator migrate up`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateUp(cmd.Context())
		},
	}
}

func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateStatus(cmd.Context())
		},
	}
}

func runMigrateUp(ctx context.Context) error {
	log := logger.Get()
	log.Info("Starting database migration")

	db, err := getPostgres(config.Get())
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := persistence.NewMigrationManager(db).Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if applied == 0 {
		fmt.Println("✅ Database schema is up to date")
		return nil
	}
	fmt.Printf("✅ Applied %d migration(s)\n", applied)
	return nil
}

func runMigrateStatus(ctx context.Context) error {
	db, err := getPostgres(config.Get())
	if err != nil {
		return err
	}
	defer db.Close()

	status, err := persistence.NewMigrationManager(db).Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}

	if len(status) == 0 {
		fmt.Println("No migrations found")
		return nil
	}

	fmt.Println("📊 Migration Status")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("%-10s %-10s %s\n", "Version", "Status", "Description")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	pendingCount := 0
	for _, m := range status {
		statusStr := "applied"
		if !m.Applied {
			statusStr = "pending"
			pendingCount++
		}
		fmt.Printf("%-10d %-10s %s\n", m.Version, statusStr, m.Description)
	}

	fmt.Println()
	fmt.Printf("Applied: %d | Pending: %d | Total: %d\n", len(status)-pendingCount, pendingCount, len(status))

	if pendingCount > 0 {
		fmt.Println("\nRun 'curator migrate up' to apply pending migrations")
	}
	return nil
}
