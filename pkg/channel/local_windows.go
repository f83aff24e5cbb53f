//go:build windows

package channel

import (
	"velo/pkg/interpreter"
)

func spawnShellPty(i *interpreter.Interpreter, cols, rows uint32) (interpreter.Pty, error) {
	return interpreter.StartShellPty(i.Shell, cols, rows)
}
