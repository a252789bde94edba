package infrastructure

import (
	"context"
	"fmt"

	"flashsale/internal/config"
	"flashsale/internal/queue"
	"flashsale/internal/ratelimit"
	"flashsale/internal/repository"
	"flashsale/internal/reservation"
	"flashsale/internal/service"
	transportHTTP "flashsale/internal/transport/http"
	"flashsale/internal/worker"
)

// Bootstrap initialises all dependencies from config and wires up the application.
// Returns the App, a cleanup function, or an error.
func Bootstrap(ctx context.Context) (*App, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	db, err := connectPostgres(cfg.DSN())
	if err != nil {
		return nil, nil, err
	}

	rdb, err := connectRedis(cfg.RedisAddr())
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	var cleanupFns []func()
	cleanupFns = append(cleanupFns, func() {
		db.Close()
		_ = rdb.Close()
	})

	policy, err := reservation.ParseRollbackPolicy(cfg.RollbackPolicy)
	if err != nil {
		return nil, runCleanup(cleanupFns), err
	}

	reservations := reservation.NewStore(rdb, policy)
	goodsRepo := repository.NewGoodsRepo(db)
	ordersRepo := repository.NewOrdersRepo(db)
	results := repository.NewResultStore(rdb)
	fulfiller := worker.NewFulfiller(ordersRepo, reservations, results)

	// ── Queue wiring ───────────────────────────────────────────────────────────
	var publisher queue.Publisher
	var servers []Server

	switch cfg.QueueProvider {
	case "nats":
		nc, err := connectNats(cfg.NatsAddr())
		if err != nil {
			return nil, runCleanup(cleanupFns), err
		}
		cleanupFns = append(cleanupFns, nc.Close)

		jsq, err := queue.NewJetStreamQueue(nc)
		if err != nil {
			return nil, runCleanup(cleanupFns), err
		}
		publisher = jsq
		servers = append(servers, queue.NewJetStreamConsumer(jsq, fulfiller, cfg.MaxDeliver))

	case "rabbit":
		rq, err := queue.NewRabbitQueue(cfg.RabbitURL())
		if err != nil {
			return nil, runCleanup(cleanupFns), err
		}
		cleanupFns = append(cleanupFns, rq.Close)

		publisher = rq
		servers = append(servers, queue.NewRabbitConsumer(rq, fulfiller, cfg.MaxDeliver))

	default:
		return nil, runCleanup(cleanupFns), fmt.Errorf("unknown queue provider %q", cfg.QueueProvider)
	}

	svc, err := service.NewFlashSale(
		ratelimit.NewRegistry(),
		reservations,
		publisher,
		goodsRepo,
		ordersRepo,
		results,
		service.Options{
			RateAlgorithm: cfg.RateAlgorithm,
			RateQPS:       cfg.RateQPS,
			RateBurst:     cfg.RateBurst,
			Breaker: ratelimit.BreakerConfig{
				FailureThreshold: cfg.BreakerFailureThreshold,
				SuccessThreshold: cfg.BreakerSuccessThreshold,
				OpenTimeout:      cfg.BreakerOpenTimeout,
			},
		},
	)
	if err != nil {
		return nil, runCleanup(cleanupFns), err
	}

	if addr, apiErr := cfg.ApiAddr(); apiErr == nil {
		servers = append(servers, transportHTTP.NewServer(addr, svc))
	}

	return NewApp(servers), runCleanup(cleanupFns), nil
}

// runCleanup returns a single function that calls all cleanup functions in reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
