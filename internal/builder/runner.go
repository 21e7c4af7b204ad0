package builder

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
)

// stderrTail is how much of a failed command's stderr ends up in its error.
const stderrTail = 2048

// Runner runs external commands.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) error
}

// ExecRunner runs commands on the host.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecRunner creates a host runner. When logger is at debug level the
// command output is written to it.
func NewExecRunner(logger *log.Logger) *ExecRunner {
	r := &ExecRunner{}
	if logger != nil && logger.GetLevel() <= log.DebugLevel {
		w := logger.StandardLog(log.StandardLogOptions{ForceLevel: log.DebugLevel}).Writer()
		r.Stdout, r.Stderr = w, w
	}
	return r
}

// Run executes name with args in dir. The error of a failing command
// carries the end of its stderr.
func (r *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) error {
	tail := &tailBuffer{max: stderrTail}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = discardIfNil(r.Stdout)
	cmd.Stderr = io.MultiWriter(discardIfNil(r.Stderr), tail)

	if err := cmd.Run(); err != nil {
		if out := strings.TrimSpace(tail.String()); out != "" {
			return fmt.Errorf("running %s %s: %w\n%s", name, strings.Join(args, " "), err, out)
		}
		return fmt.Errorf("running %s %s: %w", name, strings.Join(args, " "), err)
	}
	return nil
}

func discardIfNil(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return string(b.buf)
}
