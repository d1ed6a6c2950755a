package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/config"
	grpcsrv "github.com/fjod/storefront/internal/grpc"
	h "github.com/fjod/storefront/internal/http"
	"github.com/fjod/storefront/internal/persistence"
	"github.com/fjod/storefront/internal/poller"
	"github.com/fjod/storefront/internal/publisher"
	"github.com/fjod/storefront/internal/session"
	"github.com/fjod/storefront/internal/storage"
	"github.com/fjod/storefront/pkg/circuitbreaker"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

func newServeCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the gRPC health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.LogLevel, cfg.LogDev)
			if err != nil {
				return err
			}
			defer log.Sync()
			zap.ReplaceGlobals(log)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	blobs, closeBlobs, err := openBlobStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeBlobs()

	products, closeCatalog, err := openCatalog(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeCatalog()

	format, err := cart.CheckoutFormatFor(cfg.CheckoutLocale)
	if err != nil {
		return err
	}

	oracle := catalog.NewOracle(products, circuitbreaker.DefaultConfig("catalog"), log)
	registry := session.NewRegistry(func(ctx context.Context, sessionID string) *cart.Store {
		sessionLog := log.With(zap.String("session_id", sessionID))
		adapter := persistence.NewAdapter(blobs, session.CartKey(sessionID), persistence.WithLogger(sessionLog))
		return cart.NewStore(ctx, adapter,
			cart.WithStockOracle(oracle),
			cart.WithStockPolicy(cfg.StockPolicy),
			cart.WithCheckoutFormat(format),
			cart.WithLogger(sessionLog))
	}, session.DefaultSweepInterval,
		session.WithIdleTimeout(cfg.SessionIdleTimeout),
		session.WithLogger(log))
	defer registry.Close()

	handlerOpts := []h.CartHandlerOption{h.WithHandlerLogger(log)}
	if cfg.CheckoutEnabled() {
		handlerOpts = append(handlerOpts, h.WithCheckoutTarget(cfg.CheckoutEndpoint, cfg.CheckoutPhone))
	}

	if len(cfg.KafkaBrokers) > 0 {
		pub := publisher.NewHandoffPublisher(log, cfg.KafkaBrokers...)
		defer pub.Close()
		handlerOpts = append(handlerOpts, h.WithHandoffPublisher(pub))

		p := poller.NewPoller(func(ctx context.Context, sessionID string) error {
			return registry.Do(ctx, sessionID, func(s *cart.Store) error {
				s.Clear(ctx)
				return nil
			})
		}, log, cfg.KafkaBrokers...)
		defer p.Close()
		go p.Run(ctx)
		log.Info("kafka enabled", zap.Strings("brokers", cfg.KafkaBrokers))
	}

	// gRPC health
	reporter := grpcsrv.NewHealthReporter(blobs, grpcsrv.DefaultCheckInterval, log)
	go reporter.Run(ctx)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	grpcServer := grpcsrv.NewServer(reporter.Server())
	go func() {
		log.Info("gRPC health listening", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("gRPC server stopped", zap.Error(err))
		}
	}()

	// HTTP API
	router := h.NewRouter(h.RouterConfig{
		Cart:           h.NewCartHandler(registry, products, cfg.RequestTimeout, handlerOpts...),
		Products:       h.NewProductHandler(products, cfg.RequestTimeout),
		Health:         blobs.Ping,
		Logger:         log,
		RequestTimeout: cfg.RequestTimeout,
		SecureCookies:  cfg.SecureCookies,
	})
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("storefront starting", zap.String("port", cfg.HTTPPort), zap.String("storage", cfg.CartStorage))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Graceful shutdown
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		grpcServer.Stop()
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
	log.Info("server exited")
	return nil
}

func openBlobStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.BlobStore, func(), error) {
	switch cfg.CartStorage {
	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("redis connection failed: %w", err)
		}
		log.Info("redis ping succeeded", zap.String("addr", cfg.RedisAddr))
		return storage.NewRedisStore(client), func() { client.Close() }, nil

	case config.StorageMongo:
		db, err := storage.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, nil, err
		}
		store := storage.NewMongoStore(db)
		if err := store.CreateIndexes(ctx); err != nil {
			log.Warn("failed to create mongo indexes", zap.Error(err))
		}
		log.Info("connected to MongoDB", zap.String("db", cfg.MongoDBName))
		return store, func() { db.Client().Disconnect(context.Background()) }, nil

	case config.StoragePostgres:
		store, err := storage.NewPostgresStore(cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		if err := store.RunMigrations(); err != nil {
			store.Close()
			return nil, nil, err
		}
		log.Info("connected to postgres", zap.String("host", cfg.Postgres.Host))
		return store, func() { store.Close() }, nil
	}

	log.Warn("carts are kept in memory and lost on restart")
	return storage.NewMemoryStore(), func() {}, nil
}

func openCatalog(ctx context.Context, cfg *config.Config, log *zap.Logger) (catalog.Catalog, func(), error) {
	var c interface {
		catalog.Catalog
		catalog.Writer
	}
	closeFn := func() {}

	if cfg.CatalogDB != "" {
		db, err := catalog.NewSQLiteCatalog(cfg.CatalogDB)
		if err != nil {
			return nil, nil, err
		}
		if err := db.RunMigrations(); err != nil {
			db.Close()
			return nil, nil, err
		}
		c = db
		closeFn = func() { db.Close() }
	} else {
		c = catalog.NewMemoryCatalog()
	}

	if cfg.CatalogFile != "" {
		products, err := catalog.LoadFile(cfg.CatalogFile)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		if err := c.Upsert(ctx, products...); err != nil {
			closeFn()
			return nil, nil, err
		}
		log.Info("catalog imported", zap.String("file", cfg.CatalogFile), zap.Int("products", len(products)))
	}
	return c, closeFn, nil
}
