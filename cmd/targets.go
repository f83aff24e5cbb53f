package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Lists inventory targets",
	Long: `Prints the targets known to the inventory file. The implicit
"local" target is always available and not listed here.`,
	Args:         cobra.NoArgs,
	RunE:         runTargets,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(targetsCmd)
}

func runTargets(cmd *cobra.Command, args []string) error {
	inv, err := loadInventory()
	if err != nil {
		return err
	}
	if len(inv.Targets) == 0 {
		fmt.Println("No targets defined")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tADDRESS\tAUTH")
	for i := range inv.Targets {
		t := &inv.Targets[i]
		auth := "prompt"
		switch {
		case t.Local:
			auth = "-"
		case t.KeyPath != "":
			auth = "key"
		case t.PasswordEnv != "":
			auth = "env"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Name, t.Address(), auth)
	}
	return tw.Flush()
}
