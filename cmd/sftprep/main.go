package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lamim/sftprep/internal/config"
	"github.com/lamim/sftprep/internal/dataset"
	"github.com/lamim/sftprep/internal/metrics"
	"github.com/lamim/sftprep/internal/orchestrator"
	"github.com/lamim/sftprep/internal/tokenizer"
	"github.com/lamim/sftprep/internal/writer"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// exitInputMissing is the exit status when the primary dataset does not exist
const exitInputMissing = 99

var (
	configPath string
	verbose    bool
	progress   bool
	localRank  int

	inputPath   string
	presetPath  string
	presetRatio float64
	seed        uint64
	evalPath    string
	outputDir   string
	maxLen      int
	lazy        bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sftprep",
		Short: "sftprep - conversational fine-tuning data preparation",
		Long: `sftprep normalizes conversational JSONL datasets, encodes them into
fixed-length training sequences with assistant-only loss masking, and
records per-step training loss.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.toml", "Path to configuration file (defaults are used when it does not exist)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&progress, "progress", false, "Show progress bars")
	rootCmd.PersistentFlags().IntVar(&localRank, "local-rank", 0, "Local process rank; only rank 0 logs and records loss")

	prepareCmd := &cobra.Command{
		Use:   "prepare",
		Short: "Normalize and encode a dataset",
		Long: `Run the complete preparation pipeline:
1. Resolve the primary dataset (a directory means <dir>/result.json)
2. Optionally blend in sampled lines from a preset dataset
3. Remap turn roles and write train_data.json
4. Encode conversations and write encoded.jsonl`,
		RunE: runPrepare,
	}
	addDataFlags(prepareCmd)
	prepareCmd.Flags().IntVar(&maxLen, "max-len", 0, "Sequence length (overrides encode.max_len)")
	prepareCmd.Flags().BoolVar(&lazy, "lazy", false, "Encode on access instead of up front")
	prepareCmd.Flags().StringVar(&evalPath, "eval", "", "Normalized evaluation dataset to encode alongside")

	normalizeCmd := &cobra.Command{
		Use:   "normalize",
		Short: "Normalize a dataset without encoding it",
		RunE:  runNormalize,
	}
	addDataFlags(normalizeCmd)

	encodeCmd := &cobra.Command{
		Use:   "encode <train_data.json>",
		Short: "Encode an already normalized dataset",
		Args:  cobra.ExactArgs(1),
		RunE:  runEncode,
	}
	encodeCmd.Flags().StringVar(&outputDir, "output-dir", "", "Parent directory for run directories")
	encodeCmd.Flags().IntVar(&maxLen, "max-len", 0, "Sequence length (overrides encode.max_len)")
	encodeCmd.Flags().BoolVar(&lazy, "lazy", false, "Encode on access instead of up front")

	rootCmd.AddCommand(prepareCmd)
	rootCmd.AddCommand(normalizeCmd)
	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(newLossCmd())
	rootCmd.AddCommand(newRunsCmd())

	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, dataset.ErrPrimaryInputMissing) {
			os.Exit(exitInputMissing)
		}
		os.Exit(1)
	}
}

func addDataFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&inputPath, "input", "", "Primary JSONL dataset or directory (overrides data.input_path)")
	cmd.Flags().StringVar(&presetPath, "preset", "", "Preset JSONL dataset or directory to sample from")
	cmd.Flags().Float64Var(&presetRatio, "preset-ratio", 1.0, "Preset lines to draw as a share of the primary line count")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Sampling seed (0 picks one at random)")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Parent directory for run directories")
}

// loadConfig reads the config file, applies flag overrides and revalidates
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if _, statErr := os.Stat(configPath); statErr != nil && os.IsNotExist(statErr) && !cmd.Flags().Changed("config") {
		cfg, err = config.Default()
	} else {
		cfg, err = config.Load(configPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("input") {
		cfg.Data.InputPath = inputPath
	}
	if flags.Changed("preset") {
		cfg.Data.PresetPath = presetPath
	}
	if flags.Changed("preset-ratio") {
		cfg.Data.PresetRatio = &presetRatio
	}
	if flags.Changed("seed") {
		cfg.Data.Seed = seed
	}
	if flags.Changed("eval") {
		cfg.Data.EvalPath = evalPath
	}
	if flags.Changed("output-dir") {
		cfg.Data.OutputDir = outputDir
	}
	if flags.Changed("max-len") {
		cfg.Encode.MaxLen = maxLen
	}
	if flags.Changed("lazy") {
		cfg.Data.LazyEncode = lazy
	}
	if flags.Changed("local-rank") {
		cfg.Metrics.LocalRank = localRank
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.ValidateInputs(); err != nil {
		return nil, fmt.Errorf("input validation failed: %w", err)
	}
	return cfg, nil
}

func logLevel() slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// run bundles what every pipeline command needs
type run struct {
	cfg     *config.Config
	runMgr  *writer.RunManager
	logger  *slog.Logger
	logFile *os.File
}

func (r *run) close() {
	if r.logFile != nil {
		_ = r.logFile.Sync()
		_ = r.logFile.Close()
	}
}

func startRun(cmd *cobra.Command) (*run, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	bootLogger := writer.ForRank(writer.NewConsoleLogger(logLevel()), cfg.Metrics.LocalRank)
	runMgr, err := writer.NewRunManager(cfg.Data.OutputDir, bootLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	logger, logFile, err := writer.SetupLogger(runMgr, logLevel())
	if err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}
	logger = writer.ForRank(logger, cfg.Metrics.LocalRank)

	logger.Info("sftprep starting",
		"version", Version,
		"command", cmd.Name(),
		"config", configPath,
		"run_dir", runMgr.Dir())

	if _, err := os.Stat(configPath); err == nil {
		if err := runMgr.BackupConfig(configPath); err != nil {
			_ = logFile.Close()
			return nil, fmt.Errorf("failed to backup config: %w", err)
		}
	}

	return &run{cfg: cfg, runMgr: runMgr, logger: logger, logFile: logFile}, nil
}

func newOrchestrator(r *run, withVocab bool) (*orchestrator.Orchestrator, error) {
	var vocab tokenizer.Vocabulary
	if withVocab {
		var err error
		vocab, err = tokenizer.New(r.cfg.Tokenizer)
		if err != nil {
			return nil, fmt.Errorf("failed to create tokenizer: %w", err)
		}
		r.logger.Info("Tokenizer ready", "kind", r.cfg.Tokenizer.Kind,
			"start_id", vocab.StartID(), "end_id", vocab.EndID(), "pad_id", vocab.PadID())
	}
	collector := metrics.NewCollector(r.logger)
	return orchestrator.New(r.cfg, r.runMgr, vocab, collector, r.logger).WithProgress(progress), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runPrepare(cmd *cobra.Command, args []string) error {
	r, err := startRun(cmd)
	if err != nil {
		return err
	}
	defer r.close()

	orch, err := newOrchestrator(r, true)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	if err := orch.Prepare(ctx); err != nil {
		return fmt.Errorf("prepare failed: %w", err)
	}
	logSummary(r.logger, orch)
	return nil
}

func runNormalize(cmd *cobra.Command, args []string) error {
	r, err := startRun(cmd)
	if err != nil {
		return err
	}
	defer r.close()

	orch, err := newOrchestrator(r, false)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	if err := orch.Normalize(ctx); err != nil {
		return fmt.Errorf("normalize failed: %w", err)
	}
	logSummary(r.logger, orch)
	return nil
}

func runEncode(cmd *cobra.Command, args []string) error {
	r, err := startRun(cmd)
	if err != nil {
		return err
	}
	defer r.close()

	orch, err := newOrchestrator(r, true)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	if err := orch.Encode(ctx, args[0]); err != nil {
		return fmt.Errorf("encode failed: %w", err)
	}
	logSummary(r.logger, orch)
	return nil
}

func logSummary(logger *slog.Logger, orch *orchestrator.Orchestrator) {
	report := orch.Report()
	attrs := []any{
		"run_id", report.RunID,
		"phase", report.Phase,
		"duration", report.Duration,
	}
	if report.Normalize != nil {
		attrs = append(attrs,
			"kept", report.Normalize.Kept,
			"skipped", report.Normalize.Skipped,
			"augmented", report.Normalize.Augmented,
			"normalized", report.NormalizedPath)
	}
	if report.Encode != nil {
		attrs = append(attrs,
			"encoded", report.Encode.Encoded,
			"rejected", report.Encode.Rejected,
			"truncated", report.Encode.Truncated,
			"encoded_path", report.EncodedPath)
	}
	logger.Info("All done", attrs...)
}
