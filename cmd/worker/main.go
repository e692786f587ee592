package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shukmarket/orders-backend/internal/catalog"
	"github.com/shukmarket/orders-backend/internal/config"
	kafkax "github.com/shukmarket/orders-backend/internal/kafka"
	"github.com/shukmarket/orders-backend/internal/logx"
	"github.com/shukmarket/orders-backend/internal/orders"
	"github.com/shukmarket/orders-backend/internal/postgres"
	"github.com/shukmarket/orders-backend/internal/redisx"
	"github.com/shukmarket/orders-backend/internal/tokenize"
)

// catalogChangeHandler rebuilds a shop's token weights whenever the admin
// side reports a product create/rename/delete.
type catalogChangeHandler struct {
	weights *tokenize.WeightStore
	rdb     *redis.Client
	log     *zap.SugaredLogger
}

func (h *catalogChangeHandler) handle(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := kafkax.DecodeEnvelope(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventCatalogChanged {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, "weights", env.EventID)
	if exists, _ := redisx.Exists(ctx, h.rdb, dkey); exists {
		return nil
	}
	_ = h.rdb.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	payload, err := kafkax.DecodePayload[orders.CatalogChangedPayload](env.Payload)
	if err != nil {
		return err
	}
	return h.weights.Rebuild(ctx, payload.ShopID)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

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

	prodExpired := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderExpired, 256)
	prodExpired.Start(ctx)

	store := &catalog.Store{DB: db, Log: logger.With("component", "catalog")}
	weights := &tokenize.WeightStore{DB: db, Log: logger.With("component", "weights")}
	engine := &orders.Engine{DB: db, Catalog: store, Log: logger.With("component", "engine")}

	group := getenv("WEIGHTS_GROUP", "weights-worker")
	workers, err := strconv.Atoi(getenv("WEIGHTS_WORKERS", "4"))
	if err != nil || workers <= 0 {
		workers = 4
	}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicCatalogChanged, workers,
		logger.With("component", "consumer"))
	handler := &catalogChangeHandler{weights: weights, rdb: rdb, log: logger}

	go func() {
		logger.Infow("catalog consumer started", "group", group, "topic", orders.TopicCatalogChanged, "workers", workers)
		if err := cons.Start(ctx, handler.handle); err != nil {
			logger.Warnw("consumer exit", "error", err)
			cancel()
		}
	}()

	// Stale-order sweep: pending orders older than the TTL give their stock
	// back and disappear from the queue.
	go func() {
		tick := time.NewTicker(time.Minute)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				expired, err := engine.ExpireStalePending(ctx, cfg.PendingOrderTTL)
				if err != nil {
					logger.Warnw("stale order sweep failed", "error", err)
					continue
				}
				for _, id := range expired {
					ev := orders.Envelope{
						EventID:       uuid.NewString(),
						EventType:     orders.EventOrderExpired,
						EventVersion:  1,
						OccurredAt:    time.Now().UTC(),
						Producer:      cfg.ServiceName + "-worker",
						CorrelationID: strconv.FormatInt(id, 10),
						Payload:       kafkax.MustJSON(orders.OrderExpiredPayload{OrderID: id}),
					}
					prodExpired.Publish(orders.PartitionKey(id), kafkax.MustJSON(ev),
						kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderExpired)},
						kafkago.Header{Key: "x-event-version", Value: []byte("1")},
					)
				}
				if len(expired) > 0 {
					logger.Infow("expired stale orders", "count", len(expired))
				}
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Infow("shutting down worker")
	cancel()
	time.Sleep(500 * time.Millisecond)
	prodExpired.Close()
	prodExpired.WaitClosed()
}
