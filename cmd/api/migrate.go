package main

import (
	"github.com/joho/godotenv"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/ovaphlow/pitchfork/service-auth-core/internal/auth/repo"
	"github.com/ovaphlow/pitchfork/service-auth-core/pkg/database"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the auth tables in PostgreSQL",
		Long:  `Apply the idempotent auth schema to the database named by DATABASE_URL.`,
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()
	ctx := cmd.Context()

	cmd.Println("Connecting to database...")
	db, err := database.Connect(ctx, database.ConfigFromEnv())
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	defer db.Close()

	cmd.Println("Applying schema...")
	if err := repo.NewStore(db).EnsureSchema(ctx); err != nil {
		return oops.Code("MIGRATION_FAILED").Wrap(err)
	}
	cmd.Println("Schema applied")
	return nil
}
