package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/trialfit/internal/domain/schema"
	corpusrepo "github.com/kailas-cloud/trialfit/internal/repository/corpus"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect and maintain the historical corpus",
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Load the configured corpus and print index statistics",
	Args:  cobra.NoArgs,
	RunE:  runIndexStats,
}

var indexImportCmd = &cobra.Command{
	Use:   "import <trials.jsonl> <trials.db>",
	Short: "Import a JSON Lines corpus into a SQLite corpus database",
	Long: `Import historical trials from a JSON Lines file into a SQLite database.
Existing trials with the same id are replaced.

Each line is {"id": ..., "record": {...}, "outcomes": {"enrollment_rate": ...}}.`,
	Args: cobra.ExactArgs(2),
	RunE: runIndexImport,
}

var indexExportCmd = &cobra.Command{
	Use:   "export <trials.db> <trials.jsonl>",
	Short: "Export a SQLite corpus database as JSON Lines",
	Args:  cobra.ExactArgs(2),
	RunE:  runIndexExport,
}

func init() {
	indexCmd.AddCommand(indexStatsCmd)
	indexCmd.AddCommand(indexImportCmd)
	indexCmd.AddCommand(indexExportCmd)
}

func runIndexStats(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(a.corpus.Stats())
}

func runIndexImport(cmd *cobra.Command, args []string) error {
	logger := zap.NewNop()
	if _, l, err := setup(); err == nil {
		logger = l
	}
	registry := schema.Default()

	f, err := os.Open(filepath.Clean(args[0]))
	if err != nil {
		return fmt.Errorf("open %s: %w", args[0], err)
	}
	defer f.Close()

	trials, err := corpusrepo.ReadJSONL(cmd.Context(), f, registry, logger)
	if err != nil {
		return err
	}

	store, err := corpusrepo.OpenSQLite(args[1], registry, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SaveAll(cmd.Context(), trials); err != nil {
		return err
	}
	n, err := store.Count(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d trials, %d in %s\n", len(trials), n, args[1])
	return nil
}

func runIndexExport(cmd *cobra.Command, args []string) error {
	store, err := corpusrepo.OpenSQLite(args[0], schema.Default(), zap.NewNop())
	if err != nil {
		return err
	}
	defer store.Close()

	trials, err := store.Load(cmd.Context())
	if err != nil {
		return err
	}

	f, err := os.Create(filepath.Clean(args[1]))
	if err != nil {
		return fmt.Errorf("create %s: %w", args[1], err)
	}
	if err := corpusrepo.WriteJSONL(f, trials); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "exported %d trials to %s\n", len(trials), args[1])
	return nil
}
