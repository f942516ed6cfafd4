package devicelink

import (
	"context"
	"os"
	"os/exec"
	"strconv"

	"github.com/pkg/errors"

	"go.viam.com/inertialsense/logging"
)

// ExecBootloader uploads firmware by running an external upload tool as
// `<Tool> <Args...> -c <port> -b <baud> <firmware>`.
type ExecBootloader struct {
	Tool     string
	Args     []string
	Port     string
	BaudRate int
	Logger   logging.Logger
}

// Bootload implements Bootloader.
func (b *ExecBootloader) Bootload(ctx context.Context, firmwarePath string) error {
	if b == nil || b.Tool == "" {
		return ErrBootloadUnsupported
	}
	if _, err := os.Stat(firmwarePath); err != nil {
		return errors.Wrap(err, "firmware image")
	}

	args := append([]string{}, b.Args...)
	args = append(args, "-c", b.Port)
	if b.BaudRate > 0 {
		args = append(args, "-b", strconv.Itoa(b.BaudRate))
	}
	args = append(args, firmwarePath)

	//nolint:gosec
	cmd := exec.CommandContext(ctx, b.Tool, args...)
	out, err := cmd.CombinedOutput()
	if b.Logger != nil {
		b.Logger.Infow("firmware upload finished", "tool", b.Tool, "firmware", firmwarePath, "output", string(out))
	}
	return errors.Wrapf(err, "running %s", b.Tool)
}
