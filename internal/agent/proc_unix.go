//go:build !windows

package agent

import (
	"os/exec"
	"syscall"
	"time"
)

// configureProcess starts the agent in its own process group so that
// cancellation reaches every process it spawned. Cancel sends SIGTERM to the
// group; whatever is left of the group after grace gets SIGKILL.
func configureProcess(cmd *exec.Cmd, grace time.Duration) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		pgid := cmd.Process.Pid
		err := syscall.Kill(-pgid, syscall.SIGTERM)
		time.AfterFunc(grace, func() {
			_ = syscall.Kill(-pgid, syscall.SIGKILL)
		})
		return err
	}
	cmd.WaitDelay = grace
}
