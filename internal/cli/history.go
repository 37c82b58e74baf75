package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"sitedeploy/internal/database"
	"sitedeploy/internal/history"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent deployments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			recorder := history.NewRecorder(database.GetDB())
			records, err := recorder.List(limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no deployments recorded")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tPROFILE\tSTATUS\tSTAGE\tFILES\tBYTES\tDURATION")
			for _, r := range records {
				status := "failed"
				switch {
				case r.Cancelled:
					status = "cancelled"
				case r.Success:
					status = "success"
				}
				duration := "-"
				if r.CompletedAt != nil {
					duration = r.CompletedAt.Sub(r.StartedAt).Round(timeRound).String()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
					r.StartedAt.Format(time.RFC3339),
					r.ProfileName,
					status,
					r.FinalStage,
					r.UploadedFiles, r.TotalFiles,
					formatBytes(r.UploadedBytes),
					duration,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of deployments to show")
	return cmd
}
