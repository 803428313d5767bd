// ABOUTME: Migration command for copying the cache between storage backends
// ABOUTME: Copies feeds, items and read state from sqlite to badger or back, with safety checks

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harper/skim/internal/config"
	"github.com/harper/skim/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the cache between storage backends",
	Long: `Copy all cached feeds and items from the currently configured backend to a
different backend, keeping read state.

Does NOT update the config file; verify the migration was successful then
set "backend" in config.yaml (or run 'skim setup').

Examples:
  skim migrate --to badger
  skim migrate --to sqlite --target ~/skim/cache.db
  skim migrate --to badger --force`,
	RunE: runMigrate,
}

var (
	migrateTo     string
	migrateTarget string
	migrateForce  bool
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().StringVar(&migrateTo, "to", "", "target backend (sqlite or badger)")
	migrateCmd.Flags().StringVar(&migrateTarget, "target", "", "target cache location (defaults to the backend's path in the data directory)")
	migrateCmd.Flags().BoolVar(&migrateForce, "force", false, "allow writing into a target that already holds data")
	_ = migrateCmd.MarkFlagRequired("to")
}

// migrationTarget validates the target backend and resolves its path.
func migrationTarget(cfg *config.Config, to, target string) (string, error) {
	if to != storage.BackendSQLite && to != storage.BackendBadger {
		return "", fmt.Errorf("invalid target backend %q: must be %q or %q", to, storage.BackendSQLite, storage.BackendBadger)
	}
	if to == cfg.GetBackend() {
		return "", fmt.Errorf("target backend %q is the same as the current backend", to)
	}
	if target != "" {
		return config.ExpandPath(target), nil
	}
	dataDir, err := cfg.GetDataDir()
	if err != nil {
		return "", err
	}
	return storage.DefaultPath(to, dataDir), nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	sourceBackend := rt.cfg.GetBackend()
	sourcePath, err := rt.cfg.GetCachePath()
	if err != nil {
		return err
	}

	targetPath, err := migrationTarget(rt.cfg, migrateTo, migrateTarget)
	if err != nil {
		return err
	}

	hasData, err := storage.HasData(migrateTo, targetPath)
	if err != nil {
		return fmt.Errorf("check target: %w", err)
	}
	if hasData && !migrateForce {
		return fmt.Errorf("target %q already holds data; use --force to merge into it", targetPath)
	}

	dst, err := storage.Open(migrateTo, targetPath)
	if err != nil {
		return fmt.Errorf("open target storage (%s): %w", migrateTo, err)
	}
	defer dst.Close()

	out := cmd.OutOrStdout()
	color.New(color.FgYellow).Fprintln(out, "Migrating skim cache:")
	fmt.Fprintf(out, "  Source:  %s (%s)\n", sourceBackend, sourcePath)
	fmt.Fprintf(out, "  Target:  %s (%s)\n", migrateTo, targetPath)
	fmt.Fprintln(out)

	summary, err := storage.MigrateData(rt.store, dst)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	rt.logger.Info("migrated cache", "to", migrateTo, "feeds", summary.Feeds, "items", summary.Items)

	color.New(color.FgGreen).Fprintln(out, "Migration complete!")
	fmt.Fprintf(out, "  Feeds:   %d\n", summary.Feeds)
	fmt.Fprintf(out, "  Items:   %d\n", summary.Items)
	fmt.Fprintf(out, "  Read:    %d\n", summary.Read)
	fmt.Fprintln(out)

	configPath, _ := config.GetConfigPath()
	color.New(color.FgYellow).Fprintln(out, "Note: config.yaml was NOT updated. To switch to the new backend, edit:")
	fmt.Fprintf(out, "  %s\n", configPath)
	fmt.Fprintf(out, "  Set backend: %s", migrateTo)
	if migrateTarget != "" {
		fmt.Fprintf(out, " and cache_file: %s", migrateTarget)
	}
	fmt.Fprintln(out)
	return nil
}
