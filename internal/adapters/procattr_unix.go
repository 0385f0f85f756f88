//go:build !windows

package adapters

import (
	"os/exec"
	"syscall"
)

// setProcAttr makes the adapter a session leader so the DAP backend can kill
// it together with the debuggee it started.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
