package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/scrypster/mlkg/internal/backup"
	"github.com/scrypster/mlkg/internal/storage"
)

func (a *app) runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored pipeline runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTAGE\tITEMS\tCREATED\tNOTE")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", r.ID, r.Stage, r.Items, r.CreatedAt.Format(time.RFC3339), r.Note)
			}
			return w.Flush()
		},
	}

	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest runs of a stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			stageName, _ := cmd.Flags().GetString("stage")
			keep, _ := cmd.Flags().GetInt("keep")
			stage, err := storage.ParseStage(stageName)
			if err != nil {
				return err
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.PruneRuns(cmd.Context(), stage, keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d %s runs\n", removed, stage)
			return nil
		},
	}
	prune.Flags().String("stage", "", "Stage to prune (normalize, extract, import)")
	prune.Flags().Int("keep", 3, "Number of newest runs to keep")
	_ = prune.MarkFlagRequired("stage")
	cmd.AddCommand(prune)
	return cmd
}

func (a *app) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write every stored run as a JSON snapshot (stdout without a file)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 0 {
				return storage.Export(cmd.Context(), store, cmd.OutOrStdout())
			}
			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", args[0], err)
			}
			if err := storage.Export(cmd.Context(), store, f); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		},
	}
}

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Load runs from a JSON snapshot written by export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := storage.Import(cmd.Context(), store, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d runs\n", n)
			return nil
		},
	}
}

// errBackupEngine is returned by backup commands on a non-sqlite store.
var errBackupEngine = errors.New("backups are only supported for the sqlite storage engine, use pg_dump for postgres")

func (a *app) backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the sqlite knowledge store and prune old snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSQLite(); err != nil {
				return err
			}
			verify, _ := cmd.Flags().GetBool("verify")
			res, err := backup.Create(cmd.Context(), a.dbPath(), a.backupDir(cmd), verify, backup.DefaultRetention())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.PersistentFlags().String("dir", "", "Backup directory (default: <data path>/backups)")
	cmd.Flags().Bool("verify", true, "Run an integrity check on the new backup")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			backups, err := backup.List(a.backupDir(cmd))
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PATH\tCREATED\tSIZE")
			for _, b := range backups {
				fmt.Fprintf(w, "%s\t%s\t%d\n", b.Path, b.Timestamp.Format(time.RFC3339), b.Size)
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "restore <file>",
		Short: "Replace the sqlite knowledge store with a verified backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSQLite(); err != nil {
				return err
			}
			if err := os.MkdirAll(a.cfg.Storage.DataPath, 0o755); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}
			if err := backup.Restore(args[0], a.dbPath()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s\n", args[0])
			return nil
		},
	})
	return cmd
}

func (a *app) requireSQLite() error {
	if a.cfg.Storage.StorageEngine == "postgres" {
		return errBackupEngine
	}
	return nil
}

func (a *app) dbPath() string {
	return filepath.Join(a.cfg.Storage.DataPath, dbFile)
}

func (a *app) backupDir(cmd *cobra.Command) string {
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		return dir
	}
	return filepath.Join(a.cfg.Storage.DataPath, "backups")
}
