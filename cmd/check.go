package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jandubois/healthmon/internal/monitor"
	"github.com/jandubois/healthmon/internal/probe"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check every target once and print the results as JSON",
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().Bool("strict", false, "Exit with an error unless every target is online")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	mon, err := buildMonitor(cfg, monitor.Options{})
	if err != nil {
		return err
	}
	if err := mon.Start(context.Background()); err != nil {
		return err
	}

	snap := mon.All()
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap.Results); err != nil {
		return fmt.Errorf("write results: %w", err)
	}

	if strict, _ := cmd.Flags().GetBool("strict"); strict {
		counts := snap.Counts()
		if bad := len(snap.Results) - counts[probe.StatusOnline]; bad > 0 {
			return fmt.Errorf("%d of %d targets not online", bad, len(snap.Results))
		}
	}
	return nil
}
