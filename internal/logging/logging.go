package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New. Level uses the DEBUG/INFO/WARNING/ERROR/CRITICAL
// names; File empty disables the rotating file sink.
type Options struct {
	Level       string
	File        string
	MaxBytes    int
	BackupCount int

	// Console defaults to os.Stdout.
	Console io.Writer
}

// ParseLevel maps a level name to slog. CRITICAL has no slog counterpart and
// is treated as ERROR.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARNING", "WARN":
		return slog.LevelWarn, nil
	case "ERROR", "CRITICAL":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// New builds a text logger on the console, fanned out to a size-rotated file
// when opts.File is set. The returned closer releases the file.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}
	consoleHandler := slog.NewTextHandler(console, handlerOpts)

	if opts.File == "" {
		return slog.New(consoleHandler), nopCloser{}, nil
	}

	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    megabytes(opts.MaxBytes),
		MaxBackups: opts.BackupCount,
	}
	logger := slog.New(slogmulti.Fanout(
		consoleHandler,
		slog.NewTextHandler(rotator, handlerOpts),
	))
	return logger, rotator, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// megabytes rounds up since lumberjack rotates on whole megabytes.
func megabytes(n int) int {
	const mb = 1 << 20
	if n <= 0 {
		return 0
	}
	return (n + mb - 1) / mb
}
