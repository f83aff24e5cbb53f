package cmd

import (
	"context"
	"fmt"
	"os"

	"velo/pkg/session"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var shellCmd = &cobra.Command{
	Use:   "shell [flags]",
	Short: "Opens an interactive shell on a target",
	Long: `Attaches the local terminal to the target's shell channel. The
terminal goes raw, so everything including control characters travels
through; exit the remote shell (or close stdin) to detach.`,
	Args:         cobra.NoArgs,
	RunE:         runShell,
	SilenceUsage: true,
}

// Shell flags
var shTarget string

func init() {
	rootCmd.AddCommand(shellCmd)

	shellCmd.Flags().StringVarP(&shTarget, "target", "t", "local", "Target name or user@host[:port]")

	_ = shellCmd.RegisterFlagCompletionFunc("target", completeTargets)
}

func runShell(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	ctx := context.Background()
	sess, err := openSession(ctx, shTarget, logger)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	return bridgeTerminal(sess)
}

// bridgeTerminal wires stdin/stdout to the session channel until the
// remote side hangs up or stdin closes
func bridgeTerminal(sess *session.Session) error {
	stdinFd := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFd) {
		return fmt.Errorf("stdin is not a terminal")
	}

	detach, err := sess.Attach(os.Stdout)
	if err != nil {
		return err
	}
	defer detach()

	oldState, err := term.MakeRaw(stdinFd)
	if err != nil {
		return fmt.Errorf("failed to set terminal to raw mode - %v", err)
	}

	// Ensure the terminal is ALWAYS restored, even on panic
	defer func() {
		_ = term.Restore(stdinFd, oldState)
		fmt.Println()
	}()

	sendTermSize(sess)

	done := make(chan struct{})
	defer close(done)
	go monitorWindowResize(sess, done)

	// Stdin -> channel. Ends on stdin EOF or a dead channel; the
	// output direction is the session's own reader feeding the tap.
	buf := make([]byte, 1024)
	for {
		n, rErr := os.Stdin.Read(buf)
		if n > 0 {
			if wErr := sess.WriteRaw(buf[:n]); wErr != nil {
				// Remote side hung up, normal detach
				return nil
			}
		}
		if rErr != nil {
			return nil
		}
	}
}

// sendTermSize propagates the local terminal geometry to the channel
func sendTermSize(sess *session.Session) {
	width, height, err := term.GetSize(int(os.Stdin.Fd()))
	if err != nil {
		return
	}
	_ = sess.Resize(uint32(width), uint32(height))
}
