package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"fireeye-analysis/internal/db"
	"fireeye-analysis/internal/migrations"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or revert the embedded schema migrations",
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := ctx.ensure()
			if err != nil {
				return err
			}
			if err := migrations.Up(cfg.DBDriver, cfg.DatabaseURL); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	})
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Revert every applied migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := ctx.ensure()
			if err != nil {
				return err
			}
			if err := migrations.Down(cfg.DBDriver, cfg.DatabaseURL); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations reverted")
			return nil
		},
	})

	return migrateCmd
}

func newUserCommand(ctx *commandContext) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage API users",
	}

	var email string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user and print its API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			email = strings.TrimSpace(email)
			if email == "" {
				return fmt.Errorf("--email is required")
			}
			cfg, _, err := ctx.ensure()
			if err != nil {
				return err
			}
			dbx, err := db.Open(cmd.Context(), cfg.DBDriver, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer dbx.Close()

			// The key is shown once; only its hash is stored.
			key := uuid.NewString()
			u, err := db.NewRepo(dbx).CreateUser(cmd.Context(), email, key)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created user %d (%s)\n", u.ID, u.Email)
			fmt.Fprintf(out, "API key: %s\n", key)
			return nil
		},
	}
	createCmd.Flags().StringVar(&email, "email", "", "Email address of the user")
	userCmd.AddCommand(createCmd)

	return userCmd
}
