package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects the log sink and per-module levels.
//
// Filename "-" writes to stdout, "" or "." discards, anything else is a
// rotating file.
type Config struct {
	Filename     string        `yaml:"filename"`
	Append       bool          `yaml:"append"`
	MaxSize      int           `yaml:"max_size"`
	MaxBackups   int           `yaml:"max_backups"`
	MaxAge       int           `yaml:"max_age"`
	Compress     bool          `yaml:"compress"`
	Console      bool          `yaml:"console"`
	DefaultLevel string        `yaml:"default_level"`
	Levels       []LevelConfig `yaml:"levels,omitempty"`
}

type LevelConfig struct {
	Pattern string `yaml:"pattern"`
	Level   string `yaml:"level"`
}

var PresetConfigDiscard = Config{Filename: ".", DefaultLevel: "INFO"}

var PresetConfigStdout = Config{Filename: "-", DefaultLevel: "DEBUG"}

type state struct {
	handler      slog.Handler
	defaultLevel slog.Level
	levels       map[string]slog.Level
	closer       io.Closer
}

var (
	mu      sync.RWMutex
	current = newState(PresetConfigDiscard)
)

func newState(cfg Config) *state {
	st := &state{
		defaultLevel: ParseLevel(cfg.DefaultLevel),
		levels:       map[string]slog.Level{},
	}
	for _, lc := range cfg.Levels {
		st.levels[lc.Pattern] = ParseLevel(lc.Level)
	}

	var w io.Writer
	switch cfg.Filename {
	case "", ".":
		w = io.Discard
	case "-":
		w = os.Stdout
	default:
		lj := &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
			LocalTime:  true,
		}
		if !cfg.Append {
			lj.Rotate()
		}
		st.closer = lj
		w = lj
		if cfg.Console {
			w = io.MultiWriter(lj, os.Stdout)
		}
	}
	st.handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	return st
}

// Configure replaces the global sink. Loggers already handed out by GetLog
// pick up the new sink on their next record.
func Configure(cfg *Config) {
	st := newState(*cfg)
	mu.Lock()
	old := current
	current = st
	mu.Unlock()
	if old.closer != nil {
		old.closer.Close()
	}
}

// Close releases the rotating file, if any, and falls back to discard.
func Close() {
	Configure(&PresetConfigDiscard)
}

func ParseLevel(name string) slog.Level {
	switch strings.ToUpper(name) {
	case "TRACE", "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	case "NONE":
		return slog.LevelError + 4
	}
	return slog.LevelInfo
}

// levelFor returns the level of the longest pattern matching name.
func (st *state) levelFor(name string) slog.Level {
	matched := ""
	level := st.defaultLevel
	for pattern, lvl := range st.levels {
		if ok, err := path.Match(pattern, name); ok && err == nil && len(pattern) > len(matched) {
			matched, level = pattern, lvl
		}
	}
	return level
}

// GetLog returns a logger whose records carry module=name.
func GetLog(name string) *slog.Logger {
	return slog.New(&moduleHandler{name: name})
}

type moduleHandler struct {
	name  string
	attrs []slog.Attr
	group string
}

func (h *moduleHandler) snapshot() *state {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func (h *moduleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.snapshot().levelFor(h.name)
}

func (h *moduleHandler) Handle(ctx context.Context, r slog.Record) error {
	var inner slog.Handler = h.snapshot().handler.WithAttrs([]slog.Attr{slog.String("module", h.name)})
	if len(h.attrs) > 0 {
		inner = inner.WithAttrs(h.attrs)
	}
	if h.group != "" {
		inner = inner.WithGroup(h.group)
	}
	return inner.Handle(ctx, r)
}

func (h *moduleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := *h
	out.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &out
}

func (h *moduleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	out := *h
	out.group = name
	return &out
}
