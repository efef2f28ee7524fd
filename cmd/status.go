package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/jandubois/healthmon/internal/db"
	"github.com/jandubois/healthmon/internal/publish"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last snapshot stored in the database",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Bool("json", false, "Print the snapshot as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	path, err := getDatabasePath(cmd)
	if err != nil {
		return err
	}
	database, err := db.Connect(ctx, path)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer database.Close()

	snap, err := database.LoadSnapshot(ctx)
	if errors.Is(err, db.ErrNoSnapshot) {
		fmt.Println("No health check has been stored yet.")
		return nil
	}
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		data, err := publish.Encode(snap)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Last check %s ago (cycle %s)\n\n",
		units.HumanDuration(time.Since(snap.CompletedAt)), snap.CycleID)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tCODE\tTIME\tERROR")
	for _, id := range snap.IDs() {
		r := snap.Results[id]
		code, elapsed := "-", "-"
		if r.StatusCode != nil {
			code = fmt.Sprint(*r.StatusCode)
		}
		if r.ResponseTimeMs != nil {
			elapsed = fmt.Sprintf("%dms", *r.ResponseTimeMs)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", id, r.Name, r.Status, code, elapsed, r.ErrorText())
	}
	return w.Flush()
}
