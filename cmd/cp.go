package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"velo/pkg/transfer"

	"github.com/spf13/cobra"
)

var cpCmd = &cobra.Command{
	Use:   "cp [flags] <src> <dst>",
	Short: "Copies a file to or from a target",
	Long: `Copies one file between this machine and a target, scp style: the
remote side is written <target>:<path>. Remote targets ride the SFTP
subsystem on the session's SSH transport; the "local" target copies
on disk.

Examples:
  velo cp ./site.conf web1:/etc/nginx/conf.d/site.conf
  velo cp web1:/var/log/nginx/error.log ./error.log`,
	Args:         cobra.ExactArgs(2),
	RunE:         runCp,
	SilenceUsage: true,
}

// Cp flags
var cpQuiet bool

func init() {
	rootCmd.AddCommand(cpCmd)

	cpCmd.Flags().BoolVarP(&cpQuiet, "quiet", "q", false, "No progress output")
}

// splitRemote separates a <target>:<path> argument. A spec without a
// colon, or whose first segment contains a path separator, is local.
func splitRemote(arg string) (target, path string, remote bool) {
	idx := strings.Index(arg, ":")
	if idx <= 0 || strings.Contains(arg[:idx], "/") || strings.Contains(arg[:idx], "\\") {
		return "", arg, false
	}
	return arg[:idx], arg[idx+1:], true
}

func runCp(cmd *cobra.Command, args []string) error {
	srcTarget, srcPath, srcRemote := splitRemote(args[0])
	dstTarget, dstPath, dstRemote := splitRemote(args[1])

	if srcRemote == dstRemote {
		return fmt.Errorf("exactly one side must be <target>:<path>")
	}

	spec := srcTarget
	if dstRemote {
		spec = dstTarget
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}

	ctx := context.Background()
	sess, err := openSession(ctx, spec, logger)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	xfer, err := transfer.New(sess, logger)
	if err != nil {
		return err
	}
	defer func() { _ = xfer.Close() }()

	progress := progressPrinter(args[0], args[1])
	if cpQuiet {
		progress = nil
	}

	var moved int64
	if dstRemote {
		moved, err = xfer.Upload(ctx, srcPath, dstPath, progress)
	} else {
		moved, err = xfer.Download(ctx, srcPath, dstPath, progress)
	}
	if err != nil {
		return err
	}

	if !cpQuiet {
		fmt.Fprintf(os.Stderr, "\r%s -> %s (%s)\n", args[0], args[1], humanSize(moved))
	}
	return nil
}

// progressPrinter draws a single updating line on stderr
func progressPrinter(src, dst string) transfer.Progress {
	return func(written, total int64) {
		if total > 0 {
			fmt.Fprintf(os.Stderr, "\r%s -> %s  %3d%%", src, dst, written*100/total)
			return
		}
		fmt.Fprintf(os.Stderr, "\r%s -> %s  %s", src, dst, humanSize(written))
	}
}
