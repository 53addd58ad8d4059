package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rl1809/order-placement/internal/adapter/handler"
	"github.com/rl1809/order-placement/internal/adapter/observability"
	"github.com/rl1809/order-placement/internal/adapter/storage"
	"github.com/rl1809/order-placement/internal/config"
	"github.com/rl1809/order-placement/internal/core/domain"
	"github.com/rl1809/order-placement/internal/core/service"
	"github.com/rl1809/order-placement/internal/port"
	"github.com/rl1809/order-placement/internal/worker"
)

// store is what every storage backend offers the server.
type store interface {
	port.CustomerRepository
	port.ProductRepository
	port.OrderRepository
	port.InventoryRepository
	port.OrderCanceller
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var instruments *observability.Instruments
	if cfg.TracingEnabled {
		var shutdown func(context.Context) error
		instruments, shutdown, err = observability.Init(ctx, cfg.ServiceName, logger)
		if err != nil {
			return err
		}
		defer func() {
			flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer flushCancel()
			if err := shutdown(flushCtx); err != nil {
				logger.Warn("telemetry shutdown", "error", err)
			}
		}()
	}

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithOrphanQueueSize(cfg.OrphanQueueSize),
	}
	if cfg.InventoryBackend == config.InventoryRedis {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, PoolSize: 100})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		logger.Info("connected to redis", "addr", cfg.RedisAddr)

		ledger := storage.NewRedisAdapter(rdb)
		if err := syncStock(ctx, st, ledger, logger); err != nil {
			return err
		}
		opts = append(opts, service.WithInventory(service.NewReservingAdjuster(ledger, st, logger)))
	}

	orderService, err := service.NewOrderService(st, st, st, opts...)
	if err != nil {
		return err
	}

	placer := observability.New(orderService,
		observability.WithLogger(logger),
		observability.WithTracer(instruments.Tracer("order-placement")),
		observability.WithMeter(instruments.Meter("order-placement")),
	)

	reconciler := worker.NewReconciler(orderService.Orphans(), st, cfg.ReconcileWorkers, logger)
	reconciler.Start()

	grpcServer := grpc.NewServer()
	handler.RegisterOrderServiceServer(grpcServer, handler.NewGRPCHandler(placer))
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	go func() {
		logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", "error", err)
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewHTTPHandler(placer, logger).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", "error", err)
	}
	grpcServer.GracefulStop()

	// No placements are in flight now; drain the orphan queue.
	orderService.Close()
	reconciler.Wait()
	logger.Info("workers stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store, func(), error) {
	switch cfg.StorageBackend {
	case config.StorageMySQL:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, nil, err
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		adapter := storage.NewMySQLAdapter(db)
		if err := adapter.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("connected to mysql")
		return adapter, func() { db.Close() }, nil

	case config.StoragePostgres:
		db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		adapter := storage.NewPostgresAdapter(db)
		if err := adapter.Migrate(ctx); err != nil {
			sqlDB.Close()
			return nil, nil, err
		}
		logger.Info("connected to postgres")
		return adapter, func() { sqlDB.Close() }, nil

	default:
		adapter := storage.NewMemoryAdapter()
		seedCatalog(adapter)
		logger.Info("using in-memory store with demo catalog")
		return adapter, func() {}, nil
	}
}

func seedCatalog(m *storage.MemoryAdapter) {
	m.AddCustomer(domain.Customer{ID: "customer-1", Name: "Demo Customer", Email: "demo@example.com"})
	m.AddProduct(domain.Product{ID: "iphone-15", Name: "iPhone 15", Price: decimal.RequireFromString("799.00"), Quantity: 100})
	m.AddProduct(domain.Product{ID: "airpods-pro", Name: "AirPods Pro", Price: decimal.RequireFromString("249.00"), Quantity: 250})
	m.AddProduct(domain.Product{ID: "usb-c-cable", Name: "USB-C Cable", Price: decimal.RequireFromString("19.99"), Quantity: 1000})
}

// syncStock copies catalog quantities into the ledger so both start equal.
func syncStock(ctx context.Context, products port.ProductRepository, ledger port.StockCache, logger *slog.Logger) error {
	catalog, err := products.ListProducts(ctx)
	if err != nil {
		return err
	}
	for _, p := range catalog {
		if err := ledger.SetStock(ctx, p.ID, p.Quantity); err != nil {
			return err
		}
	}
	logger.Info("synced stock to redis", "products", len(catalog))
	return nil
}
