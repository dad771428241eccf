// Package logging builds the shared zap logger for the pipeline. Every
// component logs through a named child logger so log lines can be
// filtered per subsystem, and a JSON file core under the work directory
// keeps a machine-readable trace of each run.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names used for child loggers.
const (
	CategoryBoot        = "boot"
	CategoryFetch       = "fetch"
	CategoryGenerate    = "generate"
	CategoryValidate    = "validate"
	CategoryRepair      = "repair"
	CategoryOriginality = "originality"
	CategoryBudget      = "budget"
	CategoryCheckpoint  = "checkpoint"
	CategoryPool        = "pool"
	CategoryRecovery    = "recovery"
)

// Options controls logger construction.
type Options struct {
	// Dir is the work directory; the JSON log file is written to
	// Dir/logs/copyforge.log. Empty disables the file core.
	Dir string
	// Verbose lowers the console level to debug.
	Verbose bool
	// Quiet raises the console level to warn.
	Quiet bool
}

// Setup builds the root logger: a console core on stderr plus an optional
// JSON file core. Callers hand out children via logger.Named(category).
func Setup(opts Options) (*zap.Logger, error) {
	consoleLevel := zapcore.InfoLevel
	if opts.Verbose {
		consoleLevel = zapcore.DebugLevel
	}
	if opts.Quiet {
		consoleLevel = zapcore.WarnLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		consoleLevel,
	)

	cores := []zapcore.Core{consoleCore}
	if opts.Dir != "" {
		logsDir := filepath.Join(opts.Dir, "logs")
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("create logs directory: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(logsDir, "copyforge.log"),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.Lock(f),
			zapcore.DebugLevel,
		)
		cores = append(cores, fileCore)
	}

	return zap.New(zapcore.NewTee(cores...)), nil
}
