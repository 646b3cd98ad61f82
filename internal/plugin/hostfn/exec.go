package hostfn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"

	slogcontext "github.com/veqryn/slog-context"

	v1 "github.com/mmiszy/proto/internal/plugin/contracts/v1"
)

// ExecCommand runs a process on behalf of a plugin. A non-zero exit status is reported
// in the output, not as an error.
func (f *Functions) ExecCommand(ctx context.Context, input v1.ExecCommandInput) (v1.ExecCommandOutput, error) {
	if input.Command == "" {
		return v1.ExecCommandOutput{}, errors.New("exec_command requires a command")
	}

	ctx, cancel := context.WithTimeout(ctx, f.execTimeout)
	defer cancel()

	logger := slogcontext.FromCtx(ctx).With("command", input.Command, "args", input.Args)

	cmd := exec.CommandContext(ctx, input.Command, input.Args...)
	cmd.Dir = input.Cwd
	cmd.Env = append(append([]string(nil), f.env...), sortedEnv(input.Env)...)

	stdout := newBoundedBuffer(f.outputLimit)
	stderr := newBoundedBuffer(f.outputLimit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	logger.DebugContext(ctx, "executing command")
	err := cmd.Run()

	out := v1.ExecCommandOutput{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return out, fmt.Errorf("command %s timed out after %s", input.Command, f.execTimeout)
	case errors.As(err, &exitErr):
		out.ExitCode = exitErr.ExitCode()
	default:
		return out, fmt.Errorf("unable to run %s: %w", input.Command, err)
	}

	logger.DebugContext(ctx, "command finished", "exit_code", out.ExitCode)
	return out, nil
}

func minimalEnv() []string {
	var env []string
	for _, key := range []string{"PATH", "HOME", "USERPROFILE", "SYSTEMROOT", "TMPDIR", "TEMP", "TMP"} {
		if v, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+v)
		}
	}
	return env
}

func sortedEnv(vars map[string]string) []string {
	env := make([]string, 0, len(vars))
	for k, v := range vars {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}

// boundedBuffer keeps the first limit bytes written and drops the rest
// without failing the writer, so a chatty process is not killed by a full pipe.
type boundedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func newBoundedBuffer(limit int) *boundedBuffer {
	return &boundedBuffer{limit: limit}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	if remaining := b.limit - b.buf.Len(); remaining > 0 {
		if len(p) > remaining {
			b.buf.Write(p[:remaining])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string { return b.buf.String() }
