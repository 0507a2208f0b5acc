package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/samber/do"
	"github.com/spf13/cobra"

	"github.com/emadnahed/shtlink/internal/config"
	"github.com/emadnahed/shtlink/internal/database"
)

func newEncodeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "encode <long-value>",
		Short: "Allocate a new short code for a long value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.engine()
			if err != nil {
				return err
			}

			code, err := engine.Encode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), code)
			return nil
		},
	}
}

func newDecodeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "decode <short-code>",
		Short: "Resolve a short code to its long value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.engine()
			if err != nil {
				return err
			}

			long, found, err := engine.Decode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("short code %q not found", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), long)
			return nil
		},
	}
}

func newAssignCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "assign <short-code> <long-value>",
		Short: "Store a caller-chosen short code for a long value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.engine()
			if err != nil {
				return err
			}

			m, err := engine.Assign(cmd.Context(), args[1], args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), m.ShortCode)
			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <short-code>",
		Short: "Remove a short code and print the long value it held",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.engine()
			if err != nil {
				return err
			}

			long, err := engine.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), long)
			return nil
		},
	}
}

func newRenameCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <short-code> <new-short-code>",
		Short: "Move a mapping to a different short code",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.engine()
			if err != nil {
				return err
			}

			m, err := engine.Rename(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), m.ShortCode)
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every stored short code and its long value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, err := a.engine()
			if err != nil {
				return err
			}

			mappings, err := engine.List(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, m := range mappings {
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.ShortCode, m.CreatedAt.Format(time.RFC3339), m.LongValue)
			}
			return w.Flush()
		},
	}
}

func newMigrateCmd(a *app) *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.cfg.DatabaseEnabled() {
				return fmt.Errorf("migrate requires STORE_BACKEND=%s", config.BackendPostgres)
			}

			pool, err := do.Invoke[*database.Pool](a.injector)
			if err != nil {
				return err
			}

			migrator, err := database.NewSchemaMigrator(pool)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if down {
				if err := migrator.Down(ctx); err != nil {
					return err
				}
			} else {
				applied, err := migrator.Up(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "applied %d migration(s)\n", applied)
			}

			version, err := migrator.CurrentVersion(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "schema version %d\n", version)
			return nil
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "roll back the most recent migration")
	return cmd
}
