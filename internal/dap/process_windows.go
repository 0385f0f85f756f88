//go:build windows

package dap

import (
	"errors"
	"os"
	"os/exec"
)

// killProcessGroup stops a spawned adapter. Windows has no process groups to
// signal; the adapter is started with CREATE_NEW_PROCESS_GROUP and killed
// directly.
func killProcessGroup(_ int, cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
