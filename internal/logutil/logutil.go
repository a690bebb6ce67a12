// Package logutil builds the process logger. Records always go to stderr
// because stdout carries the stdio tool transport.
package logutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type Options struct {
	Level     string
	Format    string
	AddSource bool
}

// OptionsFromViper reads the logging.* keys bound to --log-* flags and
// MCP_TELEGRAM_LOGGING_* variables.
func OptionsFromViper(v *viper.Viper) Options {
	return Options{
		Level:     v.GetString("logging.level"),
		Format:    v.GetString("logging.format"),
		AddSource: v.GetBool("logging.add_source"),
	}
}

func LoggerFromViper() (*slog.Logger, error) {
	return New(os.Stderr, OptionsFromViper(viper.GetViper()))
}

func New(w io.Writer, opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	handlerOpts := &slog.HandlerOptions{Level: level, AddSource: opts.AddSource}

	switch format := strings.ToLower(strings.TrimSpace(opts.Format)); format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("log format %q: want text or json", opts.Format)
	}
}

// ParseLevel accepts debug, info, warn (or warning) and error; empty is info.
func ParseLevel(s string) (slog.Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "":
		return slog.LevelInfo, nil
	case "warning":
		name = "warn"
	}
	var level slog.Level
	if strings.ContainsAny(name, "+-") || level.UnmarshalText([]byte(name)) != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: want debug, info, warn or error", s)
	}
	return level, nil
}
