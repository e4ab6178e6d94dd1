package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

const historySize = 1000

// Logger is a duck-typed interface satisfied by *slog.Logger. Packages that
// only need to emit logs should accept this instead of the concrete type.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

var (
	mu           sync.RWMutex
	cfg          Config
	initialized  bool
	moduleLogs   = make(map[string]*slog.Logger)
	moduleLevels = make(map[string]*slog.LevelVar)
	globalLevel  = &slog.LevelVar{}
	history      *History
	entryFunc    EntryFunc
)

// Initialize sets up the logging system. Loggers created before Initialize
// are rebuilt so they pick up the configured format, levels, and the history
// buffer.
func Initialize(config Config) {
	mu.Lock()
	defer mu.Unlock()

	cfg = config
	initialized = true
	history = NewHistory(historySize)

	globalLevel.Set(levelOrDefault(config.Level, slog.LevelInfo))

	for module, lv := range moduleLevels {
		lv.Set(moduleLevel(module))
		moduleLogs[module] = slog.New(newHandler(cfg.Format, lv)).With("module", module)
	}

	slog.SetDefault(slog.New(newHandler(cfg.Format, globalLevel)))
}

// GetLogger returns the logger for a module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	mu.RLock()
	if logger, ok := moduleLogs[module]; ok {
		mu.RUnlock()
		return logger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if logger, ok := moduleLogs[module]; ok {
		return logger
	}

	lv := &slog.LevelVar{}
	lv.Set(moduleLevel(module))

	format := "text"
	if initialized {
		format = cfg.Format
	}
	logger := slog.New(newHandler(format, lv)).With("module", module)
	moduleLogs[module] = logger
	moduleLevels[module] = lv
	return logger
}

// SetModuleLevel changes a module's log level at runtime. Unknown level
// strings are ignored.
func SetModuleLevel(module, level string) {
	parsed := parseLevel(level)
	if parsed == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if lv, ok := moduleLevels[module]; ok {
		lv.Set(*parsed)
	}
}

// GetHistory returns the log history buffer, or nil before Initialize.
func GetHistory() *History {
	mu.RLock()
	defer mu.RUnlock()
	return history
}

// SetEntryFunc registers a callback invoked for every log entry written to
// the history buffer. Used to publish log events to SSE clients without an
// import cycle.
func SetEntryFunc(fn EntryFunc) {
	mu.Lock()
	defer mu.Unlock()
	entryFunc = fn
}

// moduleLevel resolves the effective level for a module. Caller holds mu.
func moduleLevel(module string) slog.Level {
	if !initialized {
		return slog.LevelInfo
	}
	if s, ok := cfg.Modules[module]; ok {
		if parsed := parseLevel(s); parsed != nil {
			return *parsed
		}
	}
	return levelOrDefault(cfg.Level, slog.LevelInfo)
}

// newHandler builds the handler chain for one logger: stdout (text or json),
// journald when available, and the history buffer. Caller holds mu.
func newHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdout slog.Handler
	if format == "json" {
		stdout = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdout = slog.NewTextHandler(os.Stdout, opts)
	}

	var handlers []slog.Handler
	if stdoutUsable() {
		handlers = append(handlers, stdout)
	}
	if journalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	// The history handler checks buffer availability dynamically, so it is
	// safe to install before Initialize has run.
	handlers = append(handlers, NewHistoryHandler(level))

	switch len(handlers) {
	case 0:
		return stdout
	case 1:
		return handlers[0]
	default:
		return NewMultiHandler(handlers...)
	}
}

// stdoutUsable reports whether stdout is connected to something worth
// writing to (terminal, pipe, socket, or regular file).
func stdoutUsable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return (mode&os.ModeCharDevice) != 0 || (mode&os.ModeNamedPipe) != 0 || (mode&os.ModeSocket) != 0 || mode.IsRegular()
}

func levelOrDefault(s string, def slog.Level) slog.Level {
	if parsed := parseLevel(s); parsed != nil {
		return *parsed
	}
	return def
}

// parseLevel converts a string level to slog.Level, nil if unrecognized.
func parseLevel(level string) *slog.Level {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil
	}
	return &l
}
