package channel

import (
	"context"
	"fmt"

	"velo/pkg/conf"
	"velo/pkg/interpreter"
	"velo/pkg/session"
	"velo/pkg/vlog"
)

// localChannel runs the discovered system shell inside a PTY on this
// machine.
type localChannel struct {
	pty    interpreter.Pty
	target string
}

func (c *localChannel) Read(p []byte) (int, error)  { return c.pty.Read(p) }
func (c *localChannel) Write(p []byte) (int, error) { return c.pty.Write(p) }
func (c *localChannel) Close() error                { return c.pty.Close() }
func (c *localChannel) Target() string              { return c.target }

func (c *localChannel) Resize(cols, rows uint32) error {
	return c.pty.Resize(cols, rows)
}

// Local returns a factory that spawns the platform shell in a fresh
// PTY each time the session connects.
func Local(logger *vlog.Logger) session.ChannelFactory {
	if logger == nil {
		logger = vlog.NewLogger("channel")
	}
	return func(ctx context.Context) (session.Channel, error) {
		i, err := interpreter.NewInterpreter()
		if err != nil {
			return nil, fmt.Errorf("shell discovery failed - %v", err)
		}
		if !i.PtyOn {
			return nil, fmt.Errorf("system %s has no pty support", i.System)
		}

		pt, err := spawnShellPty(i, conf.DefaultTerminalWidth, conf.DefaultTerminalHeight)
		if err != nil {
			return nil, fmt.Errorf("failed to start %s - %v", i.Shell, err)
		}

		logger.DebugWith("local shell started",
			vlog.F("shell", i.Shell),
			vlog.F("user", i.User))
		return &localChannel{pty: pt, target: "local"}, nil
	}
}
