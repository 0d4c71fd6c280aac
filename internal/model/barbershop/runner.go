package barbershop

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/dmorgan81/hairswap/internal/log"
)

// Runner executes a command in dir and returns its combined output.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	log.FromContextOrDiscard(ctx).Debug("exec", "dir", dir, "cmd", name, "args", args)

	var buf bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	// stop waiting on pipes held open by grandchildren once the process is killed
	cmd.WaitDelay = 5 * time.Second
	err := cmd.Run()
	return buf.Bytes(), err
}
