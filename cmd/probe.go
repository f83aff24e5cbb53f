package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"velo/pkg/service"

	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe [flags] [service...]",
	Short: "Probes well-known services on a target",
	Long: `Checks whether the named services are installed and running on the
target, plus their version and configuration path where detectable.
With no arguments every known service is probed.`,
	RunE:         runProbe,
	SilenceUsage: true,
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return service.Builtin().Keys(), cobra.ShellCompDirectiveNoFileComp
	},
}

// Probe flags
var (
	prTarget string
	prJson   bool
)

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().StringVarP(&prTarget, "target", "t", "local", "Target name or user@host[:port]")
	probeCmd.Flags().BoolVar(&prJson, "json", false, "Print reports as JSON")

	_ = probeCmd.RegisterFlagCompletionFunc("target", completeTargets)
}

func runProbe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	registry := service.Builtin()
	keys := args
	if len(keys) == 0 {
		keys = registry.Keys()
	}

	ctx := context.Background()
	sess, err := openSession(ctx, prTarget, logger)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	var reports []*service.Report
	for _, key := range keys {
		report, pErr := registry.Probe(ctx, key, sess)
		if pErr != nil {
			return pErr
		}
		reports = append(reports, report)
	}

	if prJson {
		out, mErr := json.MarshalIndent(reports, "", "  ")
		if mErr != nil {
			return mErr
		}
		fmt.Println(string(out))
		return nil
	}

	for _, r := range reports {
		state := "not installed"
		switch {
		case r.Running:
			state = "running"
		case r.Installed:
			state = "stopped"
		}
		line := fmt.Sprintf("%-12s %s", r.Key, state)
		var extra []string
		if r.Version != "" {
			extra = append(extra, r.Version)
		}
		if r.Config != "" {
			extra = append(extra, r.Config)
		}
		if len(extra) > 0 {
			line += "  (" + strings.Join(extra, ", ") + ")"
		}
		fmt.Println(line)
	}
	return nil
}
