package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/uvabd17/liveleaderboard/internal/config"
	"github.com/uvabd17/liveleaderboard/internal/db"
	"github.com/uvabd17/liveleaderboard/internal/logger"
	"github.com/uvabd17/liveleaderboard/internal/models"
	"github.com/uvabd17/liveleaderboard/internal/store"
)

func Main() {
	if err := NewRoot().Execute(); err != nil {
		os.Exit(1)
	}
}

func NewRoot() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:          "leaderboard",
		Short:        "Live leaderboard CLI",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (yaml)")

	root.AddCommand(standingsCmd(&cfgPath))
	root.AddCommand(seedCmd(&cfgPath))
	return root
}

// openStore connects and migrates. The caller closes the returned DB.
func openStore(ctx context.Context, cfgPath string) (*db.DB, *store.Store, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DB.DSN == "" {
		return nil, nil, fmt.Errorf("db.dsn is not set (LEADERBOARD_DB_DSN)")
	}
	dbConn, err := db.Open(ctx, cfg.DB.DSN)
	if err != nil {
		return nil, nil, err
	}
	if err := db.ApplyMigrations(ctx, dbConn, logger.New(cfg.Log.Level)); err != nil {
		dbConn.Close()
		return nil, nil, err
	}
	return dbConn, store.New(dbConn), nil
}

func seedCmd(cfgPath *string) *cobra.Command {
	var file string
	var event string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert participants from a JSON file, or a demo roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			participants := models.DemoParticipants(time.Now())
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				participants, err = readParticipants(f)
				f.Close()
				if err != nil {
					return fmt.Errorf("%s: %w", file, err)
				}
			}

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			dbConn, st, err := openStore(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer dbConn.Close()

			for _, p := range participants {
				if event != "" {
					p.EventSlug = event
				}
				if _, err := st.UpsertParticipant(ctx, p); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded=%d event=%q\n", len(participants), event)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "JSON array of participants (default: demo roster)")
	cmd.Flags().StringVar(&event, "event", "", "event slug to assign to every participant")
	return cmd
}

// readParticipants decodes a JSON array and validates each entry.
func readParticipants(r io.Reader) ([]models.Participant, error) {
	var in []struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Kind      string `json:"kind"`
		Score     int    `json:"score"`
		EventSlug string `json:"eventSlug"`
	}
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, fmt.Errorf("decode participants: %w", err)
	}
	out := make([]models.Participant, 0, len(in))
	for i, p := range in {
		if p.ID == "" || p.Name == "" {
			return nil, fmt.Errorf("participant %d: id and name required", i)
		}
		kind, err := models.ParseKind(p.Kind)
		if err != nil {
			return nil, fmt.Errorf("participant %d: %w", i, err)
		}
		if p.Score < 0 {
			p.Score = 0
		}
		out = append(out, models.Participant{ID: p.ID, Name: p.Name, Kind: kind, Score: p.Score, EventSlug: p.EventSlug})
	}
	return out, nil
}
