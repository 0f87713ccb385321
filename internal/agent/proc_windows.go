//go:build windows

package agent

import (
	"os/exec"
	"time"
)

// configureProcess uses the default Cancel (Process.Kill); Windows has no
// process-group signal to forward.
func configureProcess(cmd *exec.Cmd, grace time.Duration) {
	cmd.WaitDelay = grace
}
