package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	grpc_adapter "github.com/JoeShih716/go-cash-ledger/internal/app/core/adapter/in/grpc"
	http_adapter "github.com/JoeShih716/go-cash-ledger/internal/app/core/adapter/in/http"
	"github.com/JoeShih716/go-cash-ledger/internal/app/core/adapter/out/events"
	memory_adapter "github.com/JoeShih716/go-cash-ledger/internal/app/core/adapter/out/memory"
	mysql_adapter "github.com/JoeShih716/go-cash-ledger/internal/app/core/adapter/out/mysql"
	"github.com/JoeShih716/go-cash-ledger/internal/app/core/config"
	"github.com/JoeShih716/go-cash-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-cash-ledger/pkg/logging"
	metrics_prometheus "github.com/JoeShih716/go-cash-ledger/pkg/metrics/prometheus"
	"github.com/JoeShih716/go-cash-ledger/pkg/mysql"
	"github.com/JoeShih716/go-cash-ledger/pkg/wal"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "cash ledger: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. 載入設定
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Logger
	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logging.SetGlobal(logger)
	defer func() { _ = logger.Sync() }()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// 3. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics_prometheus.NewPrometheusCollector("cashledger")
	if err := collector.Register(registry); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. 帳本引擎
	ledger, closeLedger, err := buildLedger(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLedger()

	// 5. 事件發布
	publisher, closePublisher, err := events.NewPublisher(cfg.Events, collector, logger)
	if err != nil {
		return fmt.Errorf("init event publisher: %w", err)
	}
	defer closePublisher.Close()

	// 6. UseCase
	core := usecase.NewCoreUseCase(ledger,
		usecase.WithPublisher(publisher),
		usecase.WithMetrics(collector),
		usecase.WithLogger(logger.Named("core")),
		usecase.WithLocation(loc),
	)

	// 7. Driving adapters
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           http_adapter.NewRouter(core, logger.Named("http"), promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
		ReadHeaderTimeout: 5 * time.Second,
	}
	grpcServer := grpc_adapter.NewServer(core, logger.Named("grpc"))
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.GRPCAddr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", zap.String("addr", cfg.Server.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("starting grpc server", zap.String("addr", cfg.Server.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	// Graceful Shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down servers")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server exited")
	return nil
}

// buildLedger 依設定建立帳本引擎，回傳的 close 函式負責釋放 WAL / DB
func buildLedger(ctx context.Context, cfg *config.Config, logger *logging.Logger) (usecase.Ledger, func(), error) {
	switch cfg.Ledger.Engine {
	case config.EngineMySQL:
		client, err := mysql.NewClient(cfg.MySQL, logger)
		if err != nil {
			return nil, nil, err
		}
		ledger := mysql_adapter.NewMySQLLedger(client, mysql_adapter.WithLogger(logger.Named("mysql_ledger")))
		if err := ledger.Migrate(ctx, cfg.Accounts()); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return ledger, func() { _ = client.Close() }, nil

	case config.EngineMutex, config.EngineLMAX:
		var walFile *wal.WAL
		if cfg.Ledger.WALPath != "" {
			var err error
			if walFile, err = wal.NewWAL(cfg.Ledger.WALPath); err != nil {
				return nil, nil, fmt.Errorf("init wal: %w", err)
			}
		}
		closeWAL := func() {
			if walFile != nil {
				_ = walFile.Close()
			}
		}
		opts := []memory_adapter.Option{memory_adapter.WithMaxLockRetries(cfg.Ledger.MaxLockRetries)}

		if cfg.Ledger.Engine == config.EngineMutex {
			ledger, err := memory_adapter.NewMutexLedger(cfg.Accounts(), walFile, opts...)
			if err != nil {
				closeWAL()
				return nil, nil, fmt.Errorf("init mutex ledger: %w", err)
			}
			logger.Info("mutex ledger ready", zap.String("wal", cfg.Ledger.WALPath))
			return ledger, closeWAL, nil
		}

		ledger, err := memory_adapter.NewLMAXLedger(cfg.Accounts(), walFile, opts...)
		if err != nil {
			closeWAL()
			return nil, nil, fmt.Errorf("init lmax ledger: %w", err)
		}
		// event loop 不跟著 signal 停止，等 servers 都關閉後才由 close 函式停下
		loopCtx, cancel := context.WithCancel(context.Background())
		ledger.Start(loopCtx)
		logger.Info("lmax ledger ready", zap.String("wal", cfg.Ledger.WALPath))
		// 等 event loop 停下來再關 WAL
		return ledger, func() {
			cancel()
			<-ledger.Done()
			closeWAL()
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown ledger engine %q", cfg.Ledger.Engine)
}
