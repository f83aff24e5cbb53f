package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"velo/pkg/completion"
	"velo/pkg/conf"
	"velo/pkg/listing"
	"velo/pkg/vlog"

	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls [flags] [path]",
	Short: "Lists a directory on a target",
	Long: `Lists a remote directory through the stat dialect cascade (GNU,
then BSD flags, then plain ls). Directories come first, names sort
case-insensitively, the same order the daemon's tree endpoint uses.`,
	Args:              cobra.MaximumNArgs(1),
	RunE:              runLs,
	SilenceUsage:      true,
	ValidArgsFunction: completeRemotePath,
}

// Ls flags
var (
	lTarget string
	lLong   bool
	lJson   bool
)

func init() {
	rootCmd.AddCommand(lsCmd)

	lsCmd.Flags().StringVarP(&lTarget, "target", "t", "local", "Target name or user@host[:port]")
	lsCmd.Flags().BoolVarP(&lLong, "long", "l", false, "Long format: permissions, owner, size, mtime")
	lsCmd.Flags().BoolVar(&lJson, "json", false, "Print entries as JSON")

	_ = lsCmd.RegisterFlagCompletionFunc("target", completeTargets)
}

func runLs(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}

	ctx := context.Background()
	sess, err := openSession(ctx, lTarget, logger)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	entries, err := listing.NewLister(sess, logger).List(ctx, dir)
	if err != nil {
		return err
	}

	if lJson {
		out, mErr := json.MarshalIndent(entries, "", "  ")
		if mErr != nil {
			return mErr
		}
		fmt.Println(string(out))
		return nil
	}

	if !lLong {
		for _, e := range entries {
			name := e.Name
			if e.IsDir() {
				name += "/"
			}
			fmt.Println(name)
		}
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	for _, e := range entries {
		mtime := "-"
		if !e.Modified.IsZero() {
			mtime = e.Modified.Format("2006-01-02 15:04")
		}
		name := e.Name
		if e.IsDir() {
			name += "/"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			orDash(e.Permissions), orDash(e.Owner), humanSize(e.Size), mtime, name)
	}
	return tw.Flush()
}

// completeRemotePath lists the directory component of the typed path
// on the target and offers matching names. Errors degrade to no
// suggestions; completion must never print.
func completeRemotePath(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) != 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	logger := vlog.NewLogger(conf.Banner)
	_ = logger.SetLevel("error")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := openSession(ctx, lTarget, logger)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	defer func() { _ = sess.Close() }()

	dir, _ := completion.SplitPath(toComplete)
	entries, err := listing.NewLister(sess, logger).List(ctx, dir)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return completion.RemotePaths(entries, toComplete),
		cobra.ShellCompDirectiveNoSpace | cobra.ShellCompDirectiveNoFileComp
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// humanSize renders a byte count the way ls -h does
func humanSize(n int64) string {
	switch {
	case n >= conf.BytesPerGB:
		return fmt.Sprintf("%.1fG", float64(n)/float64(conf.BytesPerGB))
	case n >= conf.BytesPerMB:
		return fmt.Sprintf("%.1fM", float64(n)/float64(conf.BytesPerMB))
	case n >= conf.BytesPerKB:
		return fmt.Sprintf("%.1fK", float64(n)/float64(conf.BytesPerKB))
	default:
		return fmt.Sprintf("%dB", n)
	}
}
