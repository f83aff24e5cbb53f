//go:build !windows

package channel

import (
	"os"
	"os/exec"

	"velo/pkg/interpreter"
)

func spawnShellPty(i *interpreter.Interpreter, cols, rows uint32) (interpreter.Pty, error) {
	cmd := exec.Command(i.Shell, i.ShellArgs...)
	cmd.Dir = i.HomeDir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	return interpreter.StartPty(cmd, cols, rows)
}
