package writer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// File names inside a run directory
const (
	NormalizedFilename  = "train_data.json"
	EncodedFilename     = "encoded.jsonl"
	EvalEncodedFilename = "eval_encoded.jsonl"
	ReportFilename      = "report.json"
	LogFilename         = "run.log"
	ConfigBackupName    = "config.toml.bak"
	MetricsFilename     = "metrics.prom"
	LossDirName         = "metrics"
)

const runPrefix = "run_"

// RunManager manages run directories and the files inside them
type RunManager struct {
	runDir string
	logger *slog.Logger
}

// NewRunManager creates a new timestamped run directory under outputDir
func NewRunManager(outputDir string, logger *slog.Logger) (*RunManager, error) {
	// Create output directory if it doesn't exist
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02T15-04-05")
	runDir := filepath.Join(outputDir, runPrefix+timestamp)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	logger.Info("Created new run directory", "path", runDir)

	return &RunManager{
		runDir: runDir,
		logger: logger,
	}, nil
}

// OpenRun returns a manager for an existing run directory
func OpenRun(outputDir, runName string, logger *slog.Logger) (*RunManager, error) {
	if err := ValidateRunPath(outputDir, runName); err != nil {
		return nil, err
	}
	runDir := filepath.Join(outputDir, runName)
	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("run directory not found: %s", runDir)
	}
	return &RunManager{
		runDir: runDir,
		logger: logger,
	}, nil
}

// ListRuns returns the run directory names under outputDir, oldest first
func ListRuns(outputDir string) ([]string, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	var runs []string
	for _, e := range entries {
		if e.IsDir() && runNameRegex.MatchString(e.Name()) {
			runs = append(runs, e.Name())
		}
	}
	// Timestamps sort lexically
	sort.Strings(runs)
	return runs, nil
}

// Dir returns the run directory path
func (m *RunManager) Dir() string {
	return m.runDir
}

// NormalizedPath returns the path of the normalized JSON array
func (m *RunManager) NormalizedPath() string {
	return filepath.Join(m.runDir, NormalizedFilename)
}

// EncodedPath returns the path of the encoded training examples
func (m *RunManager) EncodedPath() string {
	return filepath.Join(m.runDir, EncodedFilename)
}

// EvalEncodedPath returns the path of the encoded evaluation examples
func (m *RunManager) EvalEncodedPath() string {
	return filepath.Join(m.runDir, EvalEncodedFilename)
}

// ReportPath returns the path of the run report
func (m *RunManager) ReportPath() string {
	return filepath.Join(m.runDir, ReportFilename)
}

// LogPath returns the full path to the run log file
func (m *RunManager) LogPath() string {
	return filepath.Join(m.runDir, LogFilename)
}

// MetricsPath returns the Prometheus textfile path
func (m *RunManager) MetricsPath() string {
	return filepath.Join(m.runDir, MetricsFilename)
}

// LossDir returns the default directory for loss.json
func (m *RunManager) LossDir() string {
	return filepath.Join(m.runDir, LossDirName)
}

// ConfigBackupPath returns the full path to the config backup
func (m *RunManager) ConfigBackupPath() string {
	return filepath.Join(m.runDir, ConfigBackupName)
}

// BackupConfig copies the config file to the run directory
func (m *RunManager) BackupConfig(configPath string) error {
	source, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	backupPath := m.ConfigBackupPath()
	if err := os.WriteFile(backupPath, source, 0644); err != nil {
		return fmt.Errorf("failed to write config backup: %w", err)
	}

	m.logger.Info("Backed up config file", "path", backupPath)
	return nil
}
