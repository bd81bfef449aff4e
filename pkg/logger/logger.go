package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

type options struct {
	stdout io.Writer
	extra  []io.Writer
}

type Option func(*options)

// WithWriter tees log output to w in addition to stdout.
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		o.extra = append(o.extra, w)
	}
}

// WithStdout replaces os.Stdout as the primary output.
func WithStdout(w io.Writer) Option {
	return func(o *options) {
		o.stdout = w
	}
}

func New(lvl string, addSource bool, enviroment string, opts ...Option) *slog.Logger {
	o := options{stdout: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	var out io.Writer = o.stdout
	if len(o.extra) > 0 {
		out = io.MultiWriter(append([]io.Writer{o.stdout}, o.extra...)...)
	}

	level := parseLevel(lvl)

	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: addSource,
	}
	var handler slog.Handler

	if strings.ToLower(enviroment) == "prod" {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	return slog.New(handler).With(
		slog.String("environment", enviroment),
	)
}

// FileOptions configure a size-rotated log file.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewRotatingFile returns a writer that rotates Path once it reaches
// MaxSizeMB. The caller closes it on shutdown.
func NewRotatingFile(opts FileOptions) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
}

func parseLevel(level string) slog.Level {

	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
