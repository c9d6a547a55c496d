//go:build unix

package toolchain

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// isolate starts the command in its own process group so that a timeout
// kills rustc or cargo together with every child they spawned.
func isolate(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
}
