// Package logging provides config-driven categorized logging for braid.
// Logs are written to .braid/logs/ with one file per category. Logging is
// controlled by debug_mode in .braid/config.json - when false, no files are
// written and every helper is a no-op.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system.
type Category string

const (
	CategoryGit      Category = "git"      // driver calls
	CategoryLedger   Category = "ledger"   // stash queue operations
	CategoryStage    Category = "stage"    // staging transactions
	CategoryBaseline Category = "baseline" // baseline resolution
	CategorySched    Category = "sched"    // batch scheduling, cancellation
	CategoryWorker   Category = "worker"   // worker process lifecycle
	CategoryPublish  Category = "publish"  // ref publishing
	CategoryLock     Category = "lock"     // cross-process lock
	CategoryCLI      Category = "cli"      // command glue
)

// loggingConfig mirrors the relevant parts of config.LoggingConfig to avoid
// a circular import.
type loggingConfig struct {
	DebugMode  bool            `json:"debug_mode"`
	Categories map[string]bool `json:"categories"`
	Level      string          `json:"level"`
}

type configFile struct {
	Logging loggingConfig `json:"logging"`
}

var (
	mu      sync.RWMutex
	loggers = make(map[Category]*zap.SugaredLogger)
	nop     = zap.NewNop().Sugar()
	console *zap.SugaredLogger
	cfg     loggingConfig
	logsDir string
	ready   bool
)

// Initialize sets up the logging directory and loads config. Should be
// called once at startup with the workspace path. Without it (or with
// debug_mode off) all helpers are silent.
func Initialize(workspace string) error {
	if workspace == "" {
		return fmt.Errorf("workspace path required")
	}
	mu.Lock()
	defer mu.Unlock()

	cfg = loadConfig(workspace)
	if !cfg.DebugMode {
		ready = false
		return nil
	}
	logsDir = filepath.Join(workspace, ".braid", "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("create logs directory: %w", err)
	}
	loggers = make(map[Category]*zap.SugaredLogger)
	ready = true
	return nil
}

// SetConsole mirrors all categories to the given logger (typically a zap
// console logger built by the CLI for verbose mode).
func SetConsole(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		console = nil
		return
	}
	console = l.Sugar()
}

func loadConfig(workspace string) loggingConfig {
	data, err := os.ReadFile(filepath.Join(workspace, ".braid", "config.json"))
	if err != nil {
		return loggingConfig{}
	}
	var f configFile
	if err := json.Unmarshal(data, &f); err != nil {
		fmt.Fprintf(os.Stderr, "[logging] warning: bad config: %v\n", err)
		return loggingConfig{}
	}
	return f.Logging
}

// Get returns the logger for a category, creating its file core on first
// use. Returns a no-op logger when the category is disabled.
func Get(cat Category) *zap.SugaredLogger {
	mu.RLock()
	if !ready || !enabled(cat) {
		c := console
		mu.RUnlock()
		if c != nil {
			return c
		}
		return nop
	}
	if l, ok := loggers[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}
	l := build(cat)
	loggers[cat] = l
	return l
}

// enabled reports whether a category should log. An empty category map means
// all categories are on.
func enabled(cat Category) bool {
	if len(cfg.Categories) == 0 {
		return true
	}
	on, ok := cfg.Categories[string(cat)]
	return ok && on
}

func build(cat Category) *zap.SugaredLogger {
	f, err := os.OpenFile(
		filepath.Join(logsDir, string(cat)+".log"),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644,
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] warning: cannot open log for %s: %v\n", cat, err)
		return nop
	}
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(enc),
		zapcore.Lock(f),
		level(),
	)
	if console != nil {
		core = zapcore.NewTee(core, console.Desugar().Core())
	}
	return zap.New(core).Named(string(cat)).Sugar()
}

func level() zapcore.Level {
	switch cfg.Level {
	case "debug", "":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.DebugLevel
	}
}

// Category helpers, info level.

func Git(format string, args ...interface{})      { Get(CategoryGit).Infof(format, args...) }
func Ledger(format string, args ...interface{})   { Get(CategoryLedger).Infof(format, args...) }
func Stage(format string, args ...interface{})    { Get(CategoryStage).Infof(format, args...) }
func Baseline(format string, args ...interface{}) { Get(CategoryBaseline).Infof(format, args...) }
func Sched(format string, args ...interface{})    { Get(CategorySched).Infof(format, args...) }
func Worker(format string, args ...interface{})   { Get(CategoryWorker).Infof(format, args...) }
func Publish(format string, args ...interface{})  { Get(CategoryPublish).Infof(format, args...) }

// Category helpers, debug level.

func GitDebug(format string, args ...interface{})    { Get(CategoryGit).Debugf(format, args...) }
func StageDebug(format string, args ...interface{})  { Get(CategoryStage).Debugf(format, args...) }
func SchedDebug(format string, args ...interface{})  { Get(CategorySched).Debugf(format, args...) }
func WorkerDebug(format string, args ...interface{}) { Get(CategoryWorker).Debugf(format, args...) }
func LockDebug(format string, args ...interface{})   { Get(CategoryLock).Debugf(format, args...) }
