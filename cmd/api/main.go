package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/shukmarket/orders-backend/internal/catalog"
	"github.com/shukmarket/orders-backend/internal/config"
	"github.com/shukmarket/orders-backend/internal/httpx"
	kafkax "github.com/shukmarket/orders-backend/internal/kafka"
	"github.com/shukmarket/orders-backend/internal/logx"
	"github.com/shukmarket/orders-backend/internal/orders"
	"github.com/shukmarket/orders-backend/internal/postgres"
	"github.com/shukmarket/orders-backend/internal/redisx"
	"github.com/shukmarket/orders-backend/internal/resolve"
	"github.com/shukmarket/orders-backend/internal/tokenize"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger, err := logx.New(os.Getenv("APP_ENV"))
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalw("db connect", "error", err)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prodCreated := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024)
	prodCreated.Start(ctx)
	prodUpdated := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderUpdated, 1024)
	prodUpdated.Start(ctx)
	prodRejected := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStockRejected, 1024)
	prodRejected.Start(ctx)

	store := &catalog.Store{DB: db, Log: logger.With("component", "catalog")}
	weights := &tokenize.WeightStore{DB: db, Log: logger.With("component", "weights")}
	resolver := &resolve.Resolver{Catalog: store, Weights: weights, Log: logger.With("component", "resolver")}
	finder := &resolve.Finder{Catalog: store, Log: logger.With("component", "alternatives")}
	engine := &orders.Engine{
		DB:            db,
		Catalog:       store,
		Resolver:      resolver,
		Finder:        finder,
		MaxPerProduct: cfg.MaxPerProduct,
		AltLimit:      cfg.AlternativeLimit,
		Log:           logger.With("component", "engine"),
	}

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Engine:       engine,
		Redis:        rdb,
		ProdCreated:  prodCreated,
		ProdUpdated:  prodUpdated,
		ProdRejected: prodRejected,
		Service:      cfg.ServiceName,
		Log:          logger.With("component", "orders_handler"),
	}
	oh.Register(router)
	rh := &httpx.ResolveHandler{
		Resolver: resolver,
		Finder:   finder,
		Weights:  weights,
		Redis:    rdb,
		AltLimit: cfg.AlternativeLimit,
		Log:      logger.With("component", "resolve_handler"),
	}
	rh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		logger.Infow("HTTP listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("listen", "error", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Infow("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prodCreated.Close()
	prodUpdated.Close()
	prodRejected.Close()
	cancel()
	prodCreated.WaitClosed()
	prodUpdated.WaitClosed()
	prodRejected.WaitClosed()
}
