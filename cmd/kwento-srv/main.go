package main

import (
	"context"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/kwento-games/kwento/internal/broadcast"
	"github.com/kwento-games/kwento/internal/cache/cachelru"
	"github.com/kwento-games/kwento/internal/database"
	roomDb "github.com/kwento-games/kwento/internal/database/roomstate/database"
	"github.com/kwento-games/kwento/internal/evaluator"
	"github.com/kwento-games/kwento/internal/logging"
	"github.com/kwento-games/kwento/internal/server"
	"github.com/kwento-games/kwento/internal/shutdown"
	"github.com/kwento-games/kwento/internal/storychain"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	ctx, done := shutdown.New()
	defer done()

	logger := logging.FromContext(ctx)
	if err := realMain(ctx); err != nil {
		logger.Fatalf("main.realMain: %v", err)
	}
}

func realMain(ctx context.Context) error {
	logger := logging.FromContext(ctx)

	config := storychain.Config{}
	if err := envconfig.Process("", &config); err != nil {
		return err
	}

	if config.Debug {
		ctx = logging.WithLogger(ctx, logging.NewLogger(true))
		logger = logging.FromContext(ctx)
	}

	db, err := database.NewFromEnv(ctx, &config.Db)
	if err != nil {
		return err
	}
	defer db.Close(ctx)

	roomCache, err := cachelru.NewLRU(config.CacheSize)
	if err != nil {
		return err
	}

	rooms := roomDb.New(db, roomCache, config.Db.RoomTTL)
	hub := broadcast.NewHub()

	if config.Evaluator.URL == "" {
		logger.Warnf("evaluator url not set, all rounds will score the fallback %d", config.Evaluator.FallbackScore)
	}
	judge := evaluator.NewJudge(
		evaluator.NewClient(config.Evaluator.URL, config.Evaluator.Timeout),
		config.Evaluator,
	)

	coord := storychain.New(config, rooms, hub, judge, storychain.NewCatalog())
	coord.Run(ctx)
	defer coord.Stop()

	srv, err := server.New(config.Port)
	if err != nil {
		return err
	}

	handler := server.Routes(storychain.NewGateway(coord, hub))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.ServeHTTP(ctx, &http.Server{Handler: handler})
	})

	g.Go(func() error {
		return sweepLoop(ctx, rooms, config.SweepInterval)
	})

	return g.Wait()
}

// sweepLoop drops expired and corrupt room records from the store.
func sweepLoop(ctx context.Context, rooms *roomDb.DB, interval time.Duration) error {
	logger := logging.FromContext(ctx).Named("main.sweepLoop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := rooms.Sweep()
			if err != nil {
				logger.Errorf("sweep: %v", err)
				continue
			}
			if n > 0 {
				logger.Infof("swept %d stale rooms", n)
			}
		}
	}
}
