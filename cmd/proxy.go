package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"velo/pkg/vproxy"

	"github.com/spf13/cobra"
)

var proxyCmd = &cobra.Command{
	Use:   "proxy [flags]",
	Short: "Runs a SOCKS5 proxy egressing through a target",
	Long: `Starts a local SOCKS5 endpoint whose outbound connections are
dialed by the target's transport, so traffic pointed at the proxy
leaves from the target. Runs until interrupted.`,
	Args:         cobra.NoArgs,
	RunE:         runProxy,
	SilenceUsage: true,
}

// Proxy flags
var (
	pTarget string
	pPort   int
	pExpose bool
)

func init() {
	rootCmd.AddCommand(proxyCmd)

	proxyCmd.Flags().StringVarP(&pTarget, "target", "t", "", "Target name or user@host[:port]")
	proxyCmd.Flags().IntVarP(&pPort, "port", "p", 0, "Local port to listen on, 0 picks a free one")
	proxyCmd.Flags().BoolVarP(&pExpose, "expose", "e", false, "Expose the proxy to all interfaces")

	_ = proxyCmd.MarkFlagRequired("target")
	_ = proxyCmd.RegisterFlagCompletionFunc("target", completeTargets)
}

func runProxy(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	ctx := context.Background()
	sess, err := openSession(ctx, pTarget, logger)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	proxy, err := vproxy.New(sess, vproxy.Config{
		Logger: logger,
		Port:   pPort,
		Expose: pExpose,
	})
	if err != nil {
		return err
	}

	go proxy.Serve()
	fmt.Printf("SOCKS5 listening on %s, egress through %s\n", proxy.Addr(), sess.Target())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	return proxy.Stop()
}
