package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"velo/pkg/conf"
	"velo/pkg/vlog"
	"velo/server"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve [flags]",
	Short: "Runs the velo daemon",
	Long: `Starts the HTTP/WebSocket daemon: a JSON API over the session
engine with command execution, file operations, transfers, service
probes and SOCKS proxies per session.

Configuration comes from VELO_* environment variables; flags given
here win over the environment.`,
	Args:         cobra.NoArgs,
	RunE:         runServe,
	SilenceUsage: true,
}

// Serve flags
var (
	svAddress string
	svPort    int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&svAddress, "address", "", "Bind address, overrides VELO_ADDR")
	serveCmd.Flags().IntVar(&svPort, "port", 0, "Bind port, overrides VELO_PORT")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := server.LoadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("address") {
		cfg.Addr = svAddress
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = svPort
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = gVerbose
	}
	if cmd.Flags().Changed("log-file") {
		cfg.LogFile = gLogFile
	}
	if cmd.Flags().Changed("inventory") {
		cfg.Inventory = gInventory
	}

	logger, err := newServeLogger(cfg)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case s := <-sig:
		logger.Infof("Received %s, shutting down", s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// newServeLogger builds the daemon logger from the merged config
// rather than the raw global flags
func newServeLogger(cfg *server.Config) (*vlog.Logger, error) {
	logger := vlog.NewLogger(conf.Banner)
	if err := logger.SetLevel(cfg.Verbose); err != nil {
		return nil, err
	}
	if cfg.LogFile != "" {
		if err := logger.WithLogFile(cfg.LogFile); err != nil {
			return nil, err
		}
	}
	return logger, nil
}
