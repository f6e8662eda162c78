package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/uvabd17/liveleaderboard/internal/exporter"
	"github.com/uvabd17/liveleaderboard/internal/hub"
)

func standingsCmd(cfgPath *string) *cobra.Command {
	var event string
	var format string
	var limit int

	cmd := &cobra.Command{
		Use:   "standings",
		Short: "Print the ranked leaderboard of an event from the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			dbConn, st, err := openStore(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer dbConn.Close()

			participants, err := st.ListParticipantsByEvent(ctx, event)
			if err != nil {
				return err
			}
			standings := hub.Rank(participants)
			if limit > 0 && len(standings) > limit {
				standings = standings[:limit]
			}

			b, _, err := exporter.Export(format, event, standings, time.Now())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}

	cmd.Flags().StringVar(&event, "event", "", "event slug (empty for the default board)")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text|json")
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows (0 for all)")
	return cmd
}
