package execx

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
)

// Runner abstracts command execution so probes can be unit-tested against
// captured tool output instead of real ping/curl/wget/iperf3 runs.
type Runner interface {
	Output(ctx context.Context, name string, args ...string) (string, error)
	OutputEnv(ctx context.Context, env []string, name string, args ...string) (string, error)
	LookPath(name string) (string, error)
}

// OSRunner executes commands on the host via os/exec.
type OSRunner struct{}

func NewOSRunner() *OSRunner {
	return &OSRunner{}
}

// Output runs name with args and returns combined stdout and stderr.
// A non-zero exit yields an error carrying the captured output.
func (r *OSRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	return r.OutputEnv(ctx, nil, name, args...)
}

// OutputEnv is Output with extra KEY=VALUE pairs appended to the process environment.
func (r *OSRunner) OutputEnv(ctx context.Context, env []string, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(buf.String())
		if msg != "" {
			return "", errors.New(err.Error() + ": " + msg)
		}
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

func (r *OSRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}
