package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lamim/sftprep/internal/lossmetrics"
	"github.com/lamim/sftprep/internal/metrics"
	"github.com/lamim/sftprep/internal/writer"
)

var (
	lossDir   string
	maxSteps  int
	numEpochs int
)

func newLossCmd() *cobra.Command {
	lossCmd := &cobra.Command{
		Use:   "loss",
		Short: "Record training loss",
	}

	recordCmd := &cobra.Command{
		Use:   "record [events.jsonl]",
		Short: "Record loss events into loss.json",
		Long: `Read training log events (one JSON object per line with epoch,
global_step, loss and learning_rate) from a file or stdin and persist them as
loss.json, keyed by epoch index. Only local rank 0 records.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runLossRecord,
	}
	recordCmd.Flags().StringVar(&lossDir, "dir", "", "Directory for loss.json (overrides metrics.loss_dir)")
	recordCmd.Flags().IntVar(&maxSteps, "max-steps", 0, "Total optimizer steps (overrides metrics.max_steps)")
	recordCmd.Flags().IntVar(&numEpochs, "num-epochs", 0, "Number of epochs (overrides metrics.num_epochs)")

	lossCmd.AddCommand(recordCmd)
	return lossCmd
}

func runLossRecord(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("dir") {
		cfg.Metrics.LossDir = lossDir
	}
	if flags.Changed("max-steps") {
		cfg.Metrics.MaxSteps = maxSteps
	}
	if flags.Changed("num-epochs") {
		cfg.Metrics.NumEpochs = numEpochs
	}

	logger := writer.ForRank(writer.NewConsoleLogger(logLevel()), cfg.Metrics.LocalRank)

	dir := cfg.Metrics.LossDir
	if dir == "" && cfg.Metrics.LocalRank == 0 {
		runMgr, err := writer.NewRunManager(cfg.Data.OutputDir, logger)
		if err != nil {
			return fmt.Errorf("failed to create run: %w", err)
		}
		dir = runMgr.LossDir()
	}

	collector := metrics.NewCollector(logger)
	recorder, err := lossmetrics.NewRecorder(lossmetrics.Options{
		Dir:       dir,
		MaxSteps:  cfg.Metrics.MaxSteps,
		NumEpochs: cfg.Metrics.NumEpochs,
		Rank:      cfg.Metrics.LocalRank,
	}, collector, logger)
	if err != nil {
		return err
	}

	var in io.Reader = os.Stdin
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open loss events: %w", err)
		}
		defer f.Close()
		in = f
	}

	ctx, stop := signalContext()
	defer stop()

	stats, err := recorder.IngestJSONL(ctx, in)
	if err != nil {
		return err
	}
	logger.Info("Loss ingest complete",
		"lines", stats.Lines,
		"recorded", stats.Recorded,
		"ignored", stats.Ignored,
		"malformed", stats.Malformed,
		"path", recorder.Path())

	if cfg.Metrics.LocalRank == 0 {
		if err := collector.WriteTextfile(filepath.Join(dir, writer.MetricsFilename)); err != nil {
			logger.Warn("Failed to write metrics", "error", err)
		}
	}
	return nil
}
