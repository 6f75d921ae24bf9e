package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"blood-report-service/internal/config"
	"blood-report-service/internal/repository/postgresql"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the Postgres schema",
	Long: `Connect to PostgreSQL and create the analysis_tasks table.

Reads the DSN from --postgres-dsn, BLOODREPORT_STORE_POSTGRES_DSN / POSTGRES_DSN, or the config file.`,
	PreRunE: bindFlags(flagBinding{"store.postgres_dsn", "postgres-dsn"}),
	RunE:    runMigrate,
}

func init() {
	migrateCmd.Flags().String("postgres-dsn", "", "Postgres connection string")
}

func runMigrate(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(vp)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgresql.NewPool(ctx, cfg.Store.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if err := postgresql.EnsureSchema(ctx, pool); err != nil {
		return err
	}
	fmt.Println("migrations complete")
	return nil
}
