package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	slogmulti "github.com/samber/slog-multi"
)

const logFileTemplate = "nodepipe.%d.log"

func parseLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newHandler(level slog.Level, formatStr string, outW io.Writer) slog.Handler {
	handlerOpts := &slog.HandlerOptions{Level: level}
	if formatStr == "json" {
		return slog.NewJSONHandler(outW, handlerOpts)
	}
	return slog.NewTextHandler(outW, handlerOpts)
}

// newLogger creates a logger writing to outW and to the log file sink. It
// does not set the global logger, allowing for isolated logger instances.
func newLogger(cfg *Config, outW io.Writer, file *logFile) *slog.Logger {
	console := newHandler(parseLevel(cfg.LogLevel), cfg.LogFormat, outW)
	if file == nil {
		return slog.New(console)
	}
	return slog.New(slogmulti.Fanout(console, newHandler(parseLevel(cfg.LogFileLevel), "text", file)))
}

// logFile is the file sink. An explicit path is opened immediately in append
// mode. Otherwise the first write creates a fresh nodepipe.<n>.log in dir,
// never overwriting an existing log.
type logFile struct {
	mu   sync.Mutex
	dir  string
	path string
	f    *os.File
}

func openLogFile(explicit, dir string) (*logFile, error) {
	if explicit == "" {
		return &logFile{dir: dir}, nil
	}
	if err := os.MkdirAll(filepath.Dir(explicit), 0o755); err != nil {
		return nil, fmt.Errorf("creating log file directory: %w", err)
	}
	f, err := os.OpenFile(explicit, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return &logFile{path: explicit, f: f}, nil
}

func (l *logFile) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		f, path, err := createUnique(l.dir, logFileTemplate)
		if err != nil {
			return 0, err
		}
		l.f, l.path = f, path
	}
	return l.f.Write(p)
}

// Path returns the log file path, or "" if nothing has been logged yet.
func (l *logFile) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

func (l *logFile) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// createUnique creates the first file named by template and a counter that
// does not exist yet in dir.
func createUnique(dir, template string) (*os.File, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("creating log directory: %w", err)
	}
	for i := 0; ; i++ {
		path := filepath.Join(dir, fmt.Sprintf(template, i))
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("creating log file: %w", err)
		}
	}
}
