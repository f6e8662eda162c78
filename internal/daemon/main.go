package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/uvabd17/liveleaderboard/internal/api"
	"github.com/uvabd17/liveleaderboard/internal/config"
	"github.com/uvabd17/liveleaderboard/internal/db"
	"github.com/uvabd17/liveleaderboard/internal/hub"
	"github.com/uvabd17/liveleaderboard/internal/logger"
	"github.com/uvabd17/liveleaderboard/internal/models"
	"github.com/uvabd17/liveleaderboard/internal/store"
	"github.com/uvabd17/liveleaderboard/internal/syncbus"
	"golang.org/x/sync/errgroup"
)

func Main() {
	var cfgPath string

	root := &cobra.Command{Use: "leaderboardd", Short: "Live leaderboard daemon (API + SSE hub)"}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (yaml)")

	root.AddCommand(migrateCmd(&cfgPath))
	root.AddCommand(serveCmd(&cfgPath))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func migrateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if cfg.DB.DSN == "" {
				return errors.New("db.dsn is not set")
			}
			log := logger.New(cfg.Log.Level)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			dbConn, err := db.Open(ctx, cfg.DB.DSN)
			if err != nil {
				return err
			}
			defer dbConn.Close()
			return db.ApplyMigrations(ctx, dbConn, log)
		},
	}
}

func serveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and live hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			log := logger.New(cfg.Log.Level)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var (
				dbConn *db.DB
				st     *store.Store
			)
			if cfg.DB.DSN != "" {
				dbConn, err = db.Open(ctx, cfg.DB.DSN)
				if err != nil {
					return err
				}
				defer dbConn.Close()
				if err := db.ApplyMigrations(ctx, dbConn, log); err != nil {
					return err
				}
				st = store.New(dbConn)
			} else {
				log.Warn().Msg("no db.dsn configured, running in memory only")
			}

			bus, err := openBus(ctx, cfg, dbConn)
			if err != nil {
				return err
			}
			if bus != nil {
				defer bus.Close()
			}

			opts := hub.Options{
				TopN:       cfg.Hub.TopN,
				Debounce:   cfg.Hub.Debounce,
				InstanceID: cfg.Hub.InstanceID,
				TokenTTL:   cfg.Hub.TokenTTL,
				Bus:        bus,
				Logger:     log,
			}
			// a nil *store.Store must not become a non-nil interface
			var apiStore api.Store
			if st != nil {
				opts.Loader = st
				apiStore = st
			}
			h := hub.New(opts)
			if st == nil && cfg.Hub.DemoSeed {
				h.Seed(models.DemoParticipants(time.Now()))
			}

			a := api.New(cfg, apiStore, h, log)
			srv := &http.Server{Addr: cfg.API.Listen, Handler: a.Router(), ReadHeaderTimeout: 10 * time.Second}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Info().Str("addr", cfg.API.Listen).Str("instance_id", h.InstanceID()).Bool("sync", bus != nil).Msg("leaderboardd listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("listen: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				return h.Run(gctx)
			})
			g.Go(func() error {
				<-gctx.Done()
				log.Info().Msg("shutting down")

				// closing the hub ends open streams so Shutdown does not wait on them
				h.Close()
				shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shCtx); err != nil {
					return fmt.Errorf("shutdown: %w", err)
				}
				return nil
			})

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

// openBus picks the cross-instance transport. sync.url=db reuses the store's
// pool for LISTEN/NOTIFY.
func openBus(ctx context.Context, cfg *config.Config, dbConn *db.DB) (syncbus.Bus, error) {
	if cfg.SyncUsesDB() {
		if dbConn == nil {
			return nil, errors.New("sync.url=db needs db.dsn")
		}
		return syncbus.NewPG(dbConn.Pool, cfg.Sync.Channel), nil
	}
	bus, err := syncbus.Open(ctx, cfg.Sync.URL, cfg.Sync.Channel)
	if err != nil {
		return nil, fmt.Errorf("open sync bus: %w", err)
	}
	return bus, nil
}
