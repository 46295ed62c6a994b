package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/infra/filestore"
	kafkaexport "live-quiz-service/internal/infra/kafka"
	"live-quiz-service/internal/infra/memory"
	pgarchive "live-quiz-service/internal/infra/postgres"
	redisscores "live-quiz-service/internal/infra/redis"
	transport "live-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), opts)
		},
	}
}

func runServer(ctx context.Context, opts *globalOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store app.RecordStore
	if cfg.Data.Dir == config.MemoryDataDir {
		store = memory.NewRecordStore()
		logger.Warn("records kept in memory only")
	} else {
		store = filestore.New(cfg.Data.Dir, logger)
	}

	hub := transport.NewHub(logger)
	bus := app.Fanout{hub}

	roundOpts := app.CoordinatorOptions{
		TimerUnit:  config.Duration(cfg.Round.TimerUnit, time.Second),
		ReadyGrace: config.Duration(cfg.Round.ReadyGrace, 2*time.Second),
		QueueSize:  cfg.Round.QueueSize,
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, logger); err != nil {
			return err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		roundOpts.Archive = pgarchive.NewAnswerArchive(pool)
	}

	var projection *redisscores.ScoreProjection
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		projection = redisscores.NewScoreProjection(client, cfg.Redis.KeyPrefix, time.Hour, logger)
		bus = append(bus, projection)
	}

	if cfg.Kafka.Enabled {
		producer, err := kafkaexport.NewAsyncProducer(cfg.Kafka.Brokers)
		if err != nil {
			return err
		}
		exporter := kafkaexport.NewEventExporter(producer, cfg.Kafka.Topic, logger)
		defer func() {
			if err := exporter.Close(); err != nil {
				logger.Warn("closing kafka exporter", "error", err)
			}
		}()
		bus = append(bus, exporter)
	}

	coordinator := app.NewCoordinator(store, bus, logger, roundOpts)
	quiz := app.NewQuizService(store, bus, coordinator, logger)
	api := transport.NewAPI(quiz, app.NewLedger(store), coordinator, hub, cfg.JoinURL(), logger)
	if projection != nil {
		api.WithScoreboard(projection)
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.Router(),
		ReadTimeout:  config.Duration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.Duration(cfg.Server.WriteTimeout, 15*time.Second),
		IdleTimeout:  config.Duration(cfg.Server.IdleTimeout, 120*time.Second),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return coordinator.Run(gctx) })
	if projection != nil {
		g.Go(func() error { return projection.Run(gctx) })
	}
	g.Go(func() error {
		// Seeds the scoreboard projection from the answer log.
		if err := coordinator.RebuildLedger(gctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("initial ledger broadcast", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("starting quiz service", "addr", server.Addr, "data_dir", cfg.Data.Dir)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
