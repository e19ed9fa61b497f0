package commands

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/benvon/flowstate/internal/database"
	"github.com/spf13/cobra"
)

// NewListCmd creates the list command
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked users",
		Long:  "List every user with persisted tracker state and the status of their tag statistics rollup",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, db, closeDB, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			snapshots, tagStats := stateRepositories(db)

			userIDs, err := snapshots.ListUserIDs(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(userIDs) == 0 {
				fmt.Fprintln(out, "No tracked users")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "USER\tENTRIES\tACTIVE\tSAVED\tROLLUP")
			for _, userID := range userIDs {
				snapshot, err := snapshots.GetByUserID(ctx, userID)
				if err != nil {
					return err
				}
				integrity := snapshot.Payload.DataIntegrity
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n",
					userID,
					integrity.TotalEntries,
					integrity.ActiveSessions,
					snapshot.UpdatedAt.UTC().Format("2006-01-02 15:04"),
					rollupStatus(ctx, tagStats, userID),
				)
			}
			return tw.Flush()
		},
	}

	return cmd
}

func rollupStatus(ctx context.Context, repo database.TagStatisticsRepositoryInterface, userID string) string {
	stats, err := repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrTagStatisticsNotFound) {
			return "none"
		}
		return "error: " + err.Error()
	}
	if stats.Tainted {
		return fmt.Sprintf("stale (v%d)", stats.AnalysisVersion)
	}
	if stats.LastAnalyzedAt == nil {
		return fmt.Sprintf("current (v%d)", stats.AnalysisVersion)
	}
	return fmt.Sprintf("current (v%d, %s)", stats.AnalysisVersion, stats.LastAnalyzedAt.UTC().Format("2006-01-02 15:04"))
}
