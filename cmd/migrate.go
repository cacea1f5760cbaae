package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/upsrelay/internal/store/pg"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the Postgres schema (managed mode)",
	}
	cmd.AddCommand(migrateDirectionCmd("up", "Apply all pending migrations"))
	cmd.AddCommand(migrateDirectionCmd("down", "Roll back the last migration"))
	return cmd
}

func migrateDirectionCmd(direction, short string) *cobra.Command {
	return &cobra.Command{
		Use:   direction,
		Short: short,
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustLoadConfig()
			sc := storeConfig(cfg)
			if !sc.IsManaged() {
				fmt.Println("Standalone mode: the SQLite schema is created automatically, nothing to migrate.")
				return
			}

			db, err := pg.OpenDB(sc.PostgresDSN)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			defer db.Close()

			if err := pg.Migrate(db, direction); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			fmt.Printf("Migrate %s complete.\n", direction)
		},
	}
}
