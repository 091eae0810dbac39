package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"solana-swap-indexer/internal/config"
	"solana-swap-indexer/internal/ingestion"
	"solana-swap-indexer/internal/logger"
	"solana-swap-indexer/internal/solana"
	"solana-swap-indexer/internal/storage"
	"solana-swap-indexer/internal/storage/clickhouse"
	"solana-swap-indexer/internal/storage/migrations"
	"solana-swap-indexer/internal/storage/postgres"
	"solana-swap-indexer/internal/tokenmeta"
)

const (
	shutdownTimeout   = 30 * time.Second
	httpShutdownGrace = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "config.toml", "Path to the TOML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logger)
	defer logger.Sync(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			log.Infow("received signal, finishing current block", "signal", sig)
			cancel()
		case <-done:
			return
		}

		select {
		case sig := <-sigCh:
			log.Warnw("received second signal, forcing exit", "signal", sig)
			os.Exit(1)
		case <-time.After(shutdownTimeout):
			log.Errorw("graceful shutdown timed out, forcing exit", "timeout", shutdownTimeout)
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, log)
	close(done)
	if err != nil {
		log.Errorw("indexer stopped with error", "err", err)
		logger.Sync(log)
		os.Exit(1)
	}
	log.Infow("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) error {
	pool, err := postgres.NewPool(ctx, cfg.DB.DSN, cfg.DB.MaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.DB.Migrate {
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}
		log.Infow("postgres migrations applied")
	}
	store := postgres.NewStore(pool)

	var sink storage.SwapSink
	if cfg.ClickHouse.DSN != "" {
		conn, err := clickhouse.NewConn(ctx, cfg.ClickHouse.DSN)
		if err != nil {
			return err
		}
		defer conn.Close()

		if cfg.DB.Migrate {
			if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
				return fmt.Errorf("clickhouse migrations: %w", err)
			}
		}
		sink = clickhouse.NewSwapExporter(conn)
		log.Infow("clickhouse export enabled", "database", conn.Database)
	}

	client := solana.NewHTTPClient(cfg.RPC.HTTPURL,
		solana.WithTimeout(cfg.RPC.Timeout.Duration),
		solana.WithMaxRetries(cfg.RPC.MaxRetries),
		solana.WithPendingWindow(cfg.RPC.PendingWindow.Duration),
		solana.WithCommitment(cfg.RPC.Commitment),
		solana.WithLogger(log),
	)

	var subscriber solana.SlotSubscriber
	if cfg.RPC.WSURL != "" {
		ws, err := solana.NewWSClient(ctx, cfg.RPC.WSURL, nil, log)
		if err != nil {
			return fmt.Errorf("connect websocket: %w", err)
		}
		defer ws.Close()
		subscriber = ws
	} else {
		log.Infow("no websocket endpoint configured, polling getSlot", "interval", cfg.Indexer.SlotPollInterval.Duration)
	}

	pipeline, err := ingestion.NewPipeline(ingestion.PipelineOptions{
		Store:     store,
		Tokens:    tokenmeta.NewRPCLoader(client, log),
		Sink:      sink,
		CacheSize: cfg.Indexer.CacheSize,
		Logger:    log,
	})
	if err != nil {
		return err
	}

	blockRetry := ingestion.DefaultBlockRetry
	blockRetry.MaxTries = cfg.Indexer.BlockMaxTries

	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		Client:       client,
		Subscriber:   subscriber,
		Pipeline:     pipeline,
		Store:        store,
		Concurrency:  cfg.Indexer.Concurrency,
		TickInterval: cfg.Indexer.TickInterval.Duration,
		PollInterval: cfg.Indexer.SlotPollInterval.Duration,
		BufferSize:   cfg.Indexer.BufferSize,
		StartSlot:    cfg.Indexer.StartSlot,
		BlockRetry:   blockRetry,
		Logger:       log,
	})

	srv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           newOpsServer(runner.Tracker(), store, log),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Infow("ops server listening", "addr", cfg.Metrics.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("ops server failed", "err", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), httpShutdownGrace)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	return runner.Run(ctx)
}
