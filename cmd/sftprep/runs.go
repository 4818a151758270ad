package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lamim/sftprep/internal/lossmetrics"
	"github.com/lamim/sftprep/internal/writer"
)

func newRunsCmd() *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect previous runs",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List run directories",
		RunE:  listRuns,
	}

	inspectCmd := &cobra.Command{
		Use:   "inspect <run-dir>",
		Short: "Show the report of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  inspectRun,
	}

	runsCmd.AddCommand(listCmd)
	runsCmd.AddCommand(inspectCmd)
	return runsCmd
}

func listRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	runs, err := writer.ListRuns(cfg.Data.OutputDir)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No run directories found.")
		return nil
	}

	fmt.Printf("%-28s %-38s %-10s %8s %8s %8s\n", "RUN", "RUN ID", "PHASE", "KEPT", "ENCODED", "REJECTED")
	fmt.Println(strings.Repeat("-", 106))

	for _, name := range runs {
		report, err := writer.ReadReport(filepath.Join(cfg.Data.OutputDir, name, writer.ReportFilename))
		if err != nil {
			fmt.Printf("%-28s %-38s %-10s\n", name, "-", "unknown")
			continue
		}
		kept, encoded, rejected := "-", "-", "-"
		if report.Normalize != nil {
			kept = fmt.Sprint(report.Normalize.Kept)
		}
		if report.Encode != nil {
			encoded = fmt.Sprint(report.Encode.Encoded)
			rejected = fmt.Sprint(report.Encode.Rejected)
		}
		fmt.Printf("%-28s %-38s %-10s %8s %8s %8s\n", name, report.RunID, report.Phase, kept, encoded, rejected)
	}
	return nil
}

func inspectRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	runMgr, err := writer.OpenRun(cfg.Data.OutputDir, args[0], writer.NewConsoleLogger(logLevel()))
	if err != nil {
		return fmt.Errorf("invalid run directory: %w", err)
	}

	fmt.Printf("Run: %s\n", args[0])
	fmt.Println(strings.Repeat("=", 80))

	report, err := writer.ReadReport(runMgr.ReportPath())
	switch {
	case err == nil:
		fmt.Printf("Run ID:              %s\n", report.RunID)
		fmt.Printf("Started At:          %s\n", report.StartedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Finished At:         %s\n", report.FinishedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Duration:            %s\n", report.Duration)
		fmt.Printf("Phase:               %s\n", report.Phase)
		fmt.Printf("Input:               %s\n", report.InputPath)
		if report.PresetPath != "" {
			fmt.Printf("Preset:              %s\n", report.PresetPath)
		}
		fmt.Println()

		if n := report.Normalize; n != nil {
			fmt.Println("Normalize:")
			fmt.Printf("  Source Lines:      %d\n", n.SourceLines)
			fmt.Printf("  Kept:              %d\n", n.Kept)
			fmt.Printf("  Skipped:           %d\n", n.Skipped)
			fmt.Printf("  Augmented:         %d\n", n.Augmented)
			fmt.Printf("  Warnings:          %d\n", len(n.Warnings))
			for _, o := range n.SkippedOutcomes() {
				fmt.Printf("    line %-6d %s\n", o.Line, o.Reason)
			}
			fmt.Println()
		}
		if e := report.Encode; e != nil {
			fmt.Println("Encode:")
			fmt.Printf("  Conversations:     %d\n", e.Total)
			fmt.Printf("  Encoded:           %d\n", e.Encoded)
			fmt.Printf("  Rejected:          %d\n", e.Rejected)
			fmt.Printf("  Truncated:         %d\n", e.Truncated)
			for _, r := range e.Rejections {
				fmt.Printf("    #%-6d %s\n", r.Index, r.Reason)
			}
			fmt.Println()
		}
	case errors.Is(err, os.ErrNotExist):
		fmt.Println("No report found.")
	default:
		return err
	}

	history, err := lossmetrics.Load(filepath.Join(runMgr.LossDir(), lossmetrics.LossFilename))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	epochs := make([]int, 0, len(history))
	for epoch := range history {
		epochs = append(epochs, epoch)
	}
	sort.Ints(epochs)

	fmt.Println("Loss:")
	for _, epoch := range epochs {
		records := history[epoch]
		if len(records) == 0 {
			continue
		}
		last := records[len(records)-1]
		fmt.Printf("  Epoch %-3d steps=%-6d last_loss=%.4f mean_loss=%.4f lr=%.2e\n",
			epoch, len(records), last.Loss, last.MeanLoss, last.LearningRate)
	}
	return nil
}
