package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/jandubois/healthmon/internal/registry"
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List the configured targets",
	RunE:  runTargets,
}

func init() {
	rootCmd.AddCommand(targetsCmd)
}

func runTargets(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	reg, err := registry.New(cfg.RegistryTargets())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tURL\tTIMEOUT\tEXPECTED")
	for _, t := range reg.Targets() {
		codes := make([]string, len(t.Accepted))
		for i, c := range t.Accepted {
			codes[i] = strconv.Itoa(c)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Name, t.RedactedURL(), units.HumanDuration(t.Timeout), strings.Join(codes, ","))
	}
	return w.Flush()
}
