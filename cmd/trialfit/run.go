package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/trialfit/internal/domain"
)

var (
	runK           int
	runTrialID     string
	runExtractOnly bool
)

func init() {
	runCmd.Flags().IntVar(&runK, "k", 0, "number of comparators (default retrieval.k)")
	runCmd.Flags().StringVar(&runTrialID, "trial-id", "", "identifier of the protocol, echoed in logs")
	runCmd.Flags().BoolVar(&runExtractOnly, "extract-only", false, "print the extracted feature record and stop")
}

var runCmd = &cobra.Command{
	Use:   "run <protocol-file>",
	Short: "Assess one protocol and print the feasibility report",
	Long: `Run the full pipeline over a protocol text file and print the report as JSON.

Examples:
  # Assess a protocol
  trialfit run protocols/keynote-189.txt

  # Read from stdin with 20 comparators
  cat protocol.txt | trialfit run - --k 20

  # Inspect extraction only
  trialfit run protocol.txt --extract-only`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	text, err := readInput(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	doc := domain.ProtocolDocument{Text: text, TrialID: runTrialID, Source: args[0]}

	var out any
	if runExtractOnly {
		out, err = a.extraction.ExtractDetailed(ctx, doc)
	} else {
		out, err = a.pipeline.Run(ctx, doc, runK)
	}
	if err != nil {
		logger.Error("Run failed", zap.Error(err))
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// readInput reads a file, or stdin for "-".
func readInput(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return string(data), nil
}
