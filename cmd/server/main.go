package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"matchbook/api/grpcserver"
	"matchbook/api/httpapi"
	"matchbook/domain/events"
	"matchbook/domain/orderbook"
	"matchbook/infra/config"
	"matchbook/infra/kafka"
	"matchbook/infra/logger"
	"matchbook/infra/metrics"
	"matchbook/infra/storage"
	exitwal "matchbook/infra/wal/exit"
	"matchbook/jobs/broadcaster"
	"matchbook/service"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	envPath := flag.String("env", "", "path to a .env file (default ./.env)")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zl, err := logger.New(cfg.Logging)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("engine exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	remainder, err := cfg.Engine.RemainderStatus()
	if err != nil {
		return err
	}

	// ---------------- Storage ----------------

	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.Storage.BusyTimeout,
		MaxRetries:  cfg.Storage.MaxRetries,
		RetryBase:   cfg.Storage.RetryBase,
	}, log.Named("storage"))
	if err != nil {
		return err
	}
	defer store.Close()

	// ---------------- Recovery ----------------

	books := orderbook.NewRegistry()
	restored, err := service.RecoverBooks(ctx, store, books, log.Named("recovery"))
	if err != nil {
		return fmt.Errorf("recover books: %w", err)
	}
	ids, err := service.NewSequencer(ctx, store)
	if err != nil {
		return fmt.Errorf("seed order ids: %w", err)
	}
	log.Info("state recovered",
		zap.Int("resting_orders", restored),
		zap.Int("books", books.Len()),
		zap.Uint64("last_order_id", ids.Current()),
	)

	// ---------------- Events ----------------

	m := metrics.New()
	hub := httpapi.NewHub(log.Named("ws"))
	defer hub.Close()

	sinks := events.Fanout{hub}

	var bc *broadcaster.Broadcaster
	if cfg.Events.Kafka.Enabled {
		wal, err := exitwal.Open(cfg.Events.WALDir)
		if err != nil {
			return fmt.Errorf("exit wal: %w", err)
		}
		defer wal.Close()

		pub, err := newPublisher(cfg.Events.Kafka, log)
		if err != nil {
			return err
		}
		bc = broadcaster.New(wal, pub, broadcaster.Config{
			Interval:   cfg.Events.Kafka.PollInterval,
			MaxRetries: cfg.Events.Kafka.MaxRetries,
		}, log.Named("broadcaster"))
		defer bc.Close()

		sinks = append(events.Fanout{wal}, sinks...)
		log.Info("kafka relay enabled",
			zap.String("client", cfg.Events.Kafka.Client),
			zap.Strings("brokers", cfg.Events.Kafka.Brokers),
			zap.String("topic", cfg.Events.Kafka.Topic),
			zap.Uint64("wal_last_seq", wal.LastSeq()),
		)
	}

	// ---------------- Engine ----------------

	engine := service.New(books, store, ids,
		service.WithLogger(log.Named("engine")),
		service.WithMetrics(m),
		service.WithEventSink(sinks),
		service.WithMarketRemainder(remainder),
	)

	// ---------------- Servers ----------------

	grpcSrv, health := grpcserver.NewGRPCServer(
		grpcserver.NewServer(engine, cfg.Engine.DefaultDepth, log.Named("grpc")),
	)
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	httpSrv := &http.Server{
		Addr: cfg.Server.HTTPAddr,
		Handler: httpapi.NewServer(engine, hub, m, httpapi.Options{
			CORSOrigins:  cfg.Server.CORSOrigins,
			DefaultDepth: cfg.Engine.DefaultDepth,
		}, log.Named("http")).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("grpc server listening", zap.String("addr", cfg.Server.GRPCAddr))
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		log.Info("http server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// ---------------- Background Jobs ----------------

	g.Go(func() error {
		return engine.RunSnapshotJob(gctx, cfg.Events.SnapshotInterval, cfg.Events.SnapshotDepth, hub)
	})
	if bc != nil {
		g.Go(func() error { return bc.Run(gctx) })
	}

	// ---------------- Shutdown ----------------

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		health.Shutdown()
		hub.Close()

		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(sctx); err != nil {
			log.Warn("http shutdown", zap.Error(err))
		}

		done := make(chan struct{})
		go func() {
			grpcSrv.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-sctx.Done():
			grpcSrv.Stop()
		}
		return nil
	})

	log.Info("matching engine started",
		zap.String("market_remainder", remainder.String()),
		zap.Int("default_depth", cfg.Engine.DefaultDepth),
	)
	return g.Wait()
}

func newPublisher(cfg config.Kafka, log *zap.Logger) (broadcaster.Publisher, error) {
	switch cfg.Client {
	case "kafka-go":
		return kafka.NewProducer(cfg.Brokers, cfg.Topic, log.Named("kafka")), nil
	case "", "sarama":
		p, err := kafka.NewSaramaProducer(cfg.Brokers, cfg.Topic)
		if err != nil {
			return nil, fmt.Errorf("sarama producer: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown kafka client %q", cfg.Client)
	}
}
