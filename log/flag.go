package log

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	LevelFlag  = "loglevel"
	FormatFlag = "logformat"
)

var (
	levels  = []string{"warn", "debug", "info", "error"}
	formats = []string{"text", "json"}
)

// choice is a string flag restricted to a fixed set of values. The first value is the default.
type choice struct {
	value   string
	allowed []string
}

func newChoice(allowed []string) *choice {
	return &choice{value: allowed[0], allowed: allowed}
}

func (c *choice) String() string { return c.value }

func (c *choice) Set(v string) error {
	v = strings.ToLower(strings.TrimSpace(v))
	if !slices.Contains(c.allowed, v) {
		return fmt.Errorf("must be one of %s", strings.Join(c.allowed, ", "))
	}
	c.value = v
	return nil
}

func (c *choice) Type() string { return "string" }

func RegisterLoggingFlags(flags *pflag.FlagSet) {
	flags.Var(newChoice(levels), LevelFlag, "set the log level (debug, info, warn, error)")
	flags.VarP(newChoice(formats), FormatFlag, "f", "set the log format (text, json)")
}

// GetBaseLogger builds the logger selected by the logging flags. Logs go to stderr so
// command output stays parseable.
func GetBaseLogger(cmd *cobra.Command) (*slog.Logger, error) {
	logLevel, err := GetLoggerLevel(cmd)
	if err != nil {
		return nil, err
	}

	format := formats[0]
	if flag := cmd.Flag(FormatFlag); flag != nil {
		format = flag.Value.String()
	}
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
			Level: logLevel,
		})
	case "text":
		handler = slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
			Level: logLevel,
		})
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}

	return slog.New(handler), nil
}

func GetLoggerLevel(cmd *cobra.Command) (slog.Level, error) {
	logLevel := levels[0]
	if flag := cmd.Flag(LevelFlag); flag != nil {
		logLevel = flag.Value.String()
	}
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return slog.LevelWarn, fmt.Errorf("invalid log level: %s", logLevel)
	}
	return level, nil
}
