package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"velo/pkg/completion"
	"velo/pkg/conf"
	"velo/pkg/inventory"
	"velo/pkg/session"
	"velo/pkg/vlog"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "velo",
	Short: "Velo - remote session and command execution engine",
	Long: `Velo drives remote servers (and the local machine) through one
interactive shell channel per connection and turns it into a
programmable, concurrency-safe command/response protocol.

Targets are named in an inventory file under the velo home
('velo targets' lists them), or given ad hoc as user@host[:port].
The special target "local" is this machine's own shell.`,
	SilenceUsage: true,
}

// Global flags
var (
	gVerbose   string
	gLogFile   string
	gInventory string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&gVerbose, "verbose", "info", "Adds verbosity [debug|info|warn|error]")
	rootCmd.PersistentFlags().StringVar(&gLogFile, "log-file", "", "Mirrors logs to this file")
	rootCmd.PersistentFlags().StringVar(&gInventory, "inventory", "", "Path of the target inventory file")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Shows binary build info",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("velo v%s %s (%s/%s)\n", conf.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Error is already printed by the command, just exit
		os.Exit(1)
	}
}

// newLogger builds the CLI logger from the global flags
func newLogger() (*vlog.Logger, error) {
	logger := vlog.NewLogger(conf.Banner)
	if err := logger.SetLevel(gVerbose); err != nil {
		return nil, err
	}
	if gLogFile != "" {
		if err := logger.WithLogFile(gLogFile); err != nil {
			return nil, err
		}
	}
	return logger, nil
}

// loadInventory reads the inventory named by --inventory, or the
// default one under the velo home
func loadInventory() (*inventory.Inventory, error) {
	if gInventory != "" {
		return inventory.Load(gInventory)
	}
	return inventory.LoadDefault()
}

// openSession resolves spec through the inventory and connects a
// session to it. The caller owns the returned session and closes it.
func openSession(ctx context.Context, spec string, logger *vlog.Logger) (*session.Session, error) {
	inv, err := loadInventory()
	if err != nil {
		return nil, err
	}
	factory, target, err := inv.Resolve(spec, logger)
	if err != nil {
		return nil, err
	}
	sess := session.New(session.Config{
		Target:  target,
		Factory: factory,
		Logger:  logger,
		Secrets: inv.SecretFunc(),
	})
	if err := sess.Connect(ctx); err != nil {
		return nil, err
	}
	return sess, nil
}

// completeTargets offers inventory target names plus "local" for a
// -t/--target flag value
func completeTargets(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	inv, err := loadInventory()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return completion.Targets(inv, toComplete), cobra.ShellCompDirectiveNoFileComp
}
