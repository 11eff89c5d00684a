// Package backend implements device discovery, enumeration and file transfer
// on top of the platform's command line tools (gio, mtp-tools, adb,
// libimobiledevice, ifuse, PowerShell) and libusb.
package backend

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultCommandTimeout bounds every external command that is not a file copy
const DefaultCommandTimeout = 30 * time.Second

// Runner executes external tools. Tests replace it with canned output.
type Runner interface {
	// Run executes name with args and returns its standard output
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	// LookPath reports where name is installed
	LookPath(name string) (string, error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct {
	Timeout time.Duration
}

// NewExecRunner creates a runner whose commands time out after timeout
func NewExecRunner(timeout time.Duration) *ExecRunner {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &ExecRunner{Timeout: timeout}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return stdout.Bytes(), fmt.Errorf("%s: %w", name, err)
		}
		return stdout.Bytes(), fmt.Errorf("%s: %w: %s", name, err, msg)
	}
	return stdout.Bytes(), nil
}

func (r *ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// longRunner returns a runner allowed to run for timeout, used for file pulls
func longRunner(r Runner, timeout time.Duration) Runner {
	if er, ok := r.(*ExecRunner); ok {
		return &ExecRunner{Timeout: max(er.Timeout, timeout)}
	}
	return r
}

func hasTool(r Runner, name string) bool {
	_, err := r.LookPath(name)
	return err == nil
}

func lines(out []byte) []string {
	var result []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimRight(line, "\r"); strings.TrimSpace(line) != "" {
			result = append(result, line)
		}
	}
	return result
}
