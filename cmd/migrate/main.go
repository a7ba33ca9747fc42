// Command migrate applies, inspects and rolls back the RecipeBox schema.
package main

import (
	"fmt"
	"os"
	"strconv"

	"recipebox/internal/config"
	"recipebox/internal/database"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCmd(connect).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// opener returns the database to migrate and the configuration that
// decides the schema mode.
type opener func() (*gorm.DB, *config.Config, error)

func connect() (*gorm.DB, *config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return db, cfg, nil
}

func newRootCmd(open opener) *cobra.Command {
	var (
		db  *gorm.DB
		cfg *config.Config
	)
	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the RecipeBox database schema",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) (err error) {
			db, cfg, err = open()
			return err
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending SQL migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := database.RunMigrations(cmd.Context(), db); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "SQL migrations applied")
				return nil
			},
		},
		&cobra.Command{
			Use:   "auto",
			Short: "Sync the schema from the models with GORM AutoMigrate",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg.DBSchemaMode = database.SchemaModeAuto
				if err := database.ApplySchema(cmd.Context(), db, cfg); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "AutoMigrate finished")
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the schema mode and pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				status, err := database.GetSchemaStatus(cmd.Context(), db, cfg)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "mode %s (env %s): sql=%t automigrate=%t\n",
					status.Mode, status.Environment, status.SQL, status.AutoMigrate)
				fmt.Fprintf(out, "%d applied, %d pending\n", len(status.Applied), len(status.Pending))
				for _, m := range status.Pending {
					fmt.Fprintln(out, "  pending", m.String())
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "down <version>",
			Short: "Roll back one applied migration",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q", args[0])
				}
				if err := database.RollbackMigration(cmd.Context(), db, version); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Rolled back migration %d\n", version)
				return nil
			},
		},
	)
	return root
}
