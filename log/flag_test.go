package log_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/mmiszy/proto/log"
)

func newCmd(args ...string) (*cobra.Command, *bytes.Buffer) {
	var buf bytes.Buffer
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	log.RegisterLoggingFlags(cmd.PersistentFlags())
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	return cmd, &buf
}

func TestLoggerLevel(t *testing.T) {
	tests := []struct {
		args []string
		want slog.Level
	}{
		{nil, slog.LevelWarn},
		{[]string{"--loglevel", "debug"}, slog.LevelDebug},
		{[]string{"--loglevel", "INFO"}, slog.LevelInfo},
		{[]string{"--loglevel=error"}, slog.LevelError},
	}
	for _, tt := range tests {
		r := require.New(t)
		cmd, _ := newCmd(tt.args...)
		r.NoError(cmd.Execute())
		level, err := log.GetLoggerLevel(cmd)
		r.NoError(err)
		r.Equal(tt.want, level)
	}
}

func TestInvalidFlags(t *testing.T) {
	for _, args := range [][]string{
		{"--loglevel", "fatal"},
		{"--logformat", "xml"},
	} {
		cmd, _ := newCmd(args...)
		require.Error(t, cmd.Execute())
	}
}

func TestBaseLoggerFormat(t *testing.T) {
	r := require.New(t)

	cmd, buf := newCmd("-f", "json", "--loglevel", "info")
	r.NoError(cmd.Execute())
	logger, err := log.GetBaseLogger(cmd)
	r.NoError(err)

	logger.DebugContext(context.Background(), "hidden")
	logger.InfoContext(context.Background(), "shown", "tool", "node")
	r.NotContains(buf.String(), "hidden")
	r.Contains(buf.String(), `"msg":"shown"`)
	r.Contains(buf.String(), `"tool":"node"`)
}
