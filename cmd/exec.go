package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"velo/pkg/session"

	"github.com/spf13/cobra"
)

var execCmd = &cobra.Command{
	Use:   "exec [flags] -- <command> [args...]",
	Short: "Runs one command on a target",
	Long: `Opens a session to the target, runs the command through the framed
execution protocol, prints the sanitized output and exits with the
remote exit code. A timed-out command prints whatever was captured
and exits 124.`,
	Args:         cobra.MinimumNArgs(1),
	RunE:         runExec,
	SilenceUsage: true,
}

// Exec flags
var (
	eTarget  string
	eTimeout time.Duration
	eDir     string
	eEnv     []string
	eQuick   bool
	eJson    bool
)

func init() {
	rootCmd.AddCommand(execCmd)

	execCmd.Flags().StringVarP(&eTarget, "target", "t", "local", "Target name or user@host[:port]")
	execCmd.Flags().DurationVar(&eTimeout, "timeout", 0, "Command timeout, 0 uses the engine default")
	execCmd.Flags().StringVar(&eDir, "dir", "", "Working directory for the command")
	execCmd.Flags().StringArrayVar(&eEnv, "env", nil, "Environment override KEY=VALUE, repeatable")
	execCmd.Flags().BoolVar(&eQuick, "quick", false, "Read-only path: shorter timeout, no credential watching")
	execCmd.Flags().BoolVar(&eJson, "json", false, "Print the full result as JSON")

	_ = execCmd.RegisterFlagCompletionFunc("target", completeTargets)
}

func runExec(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	env, err := parseEnv(eEnv)
	if err != nil {
		return err
	}

	ctx := context.Background()
	sess, err := openSession(ctx, eTarget, logger)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	req := &session.CommandRequest{
		Command: strings.Join(args, " "),
		Dir:     eDir,
		Env:     env,
		Timeout: eTimeout,
		Quick:   eQuick,
	}
	res, err := sess.ExecuteRequest(ctx, req)
	if err != nil {
		return err
	}

	if eJson {
		out, mErr := json.MarshalIndent(execResult(req.Command, res), "", "  ")
		if mErr != nil {
			return mErr
		}
		fmt.Println(string(out))
	} else if res.Output != "" {
		fmt.Println(res.Output)
	}

	if res.TimedOut {
		if !eJson {
			fmt.Fprintln(os.Stderr, "velo: command still running, gave up waiting")
		}
		os.Exit(124)
	}
	if res.ExitCode != nil && *res.ExitCode != 0 {
		os.Exit(*res.ExitCode)
	}
	return nil
}

// execResult is the JSON shape of a command outcome
type execResultJSON struct {
	Target   string `json:"target"`
	Command  string `json:"command"`
	Output   string `json:"output"`
	ExitCode *int   `json:"exit_code"`
	Elapsed  string `json:"elapsed"`
	TimedOut bool   `json:"timed_out"`
}

func execResult(command string, res *session.CommandResult) *execResultJSON {
	return &execResultJSON{
		Target:   eTarget,
		Command:  command,
		Output:   res.Output,
		ExitCode: res.ExitCode,
		Elapsed:  res.Elapsed.String(),
		TimedOut: res.TimedOut,
	}
}

func parseEnv(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --env value %q, want KEY=VALUE", p)
		}
		env[k] = v
	}
	return env, nil
}
