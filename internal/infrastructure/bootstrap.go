package infrastructure

import (
	"context"
	"log/slog"

	"subpay/internal/config"
	"subpay/internal/plan"
	"subpay/internal/provider"
	"subpay/internal/repository"
	"subpay/internal/service"
	transportHTTP "subpay/internal/transport/http"
	transportNATS "subpay/internal/transport/nats"
	"subpay/internal/worker"
)

// Bootstrap initialises all dependencies from config and wires up the
// application. Returns the App, a cleanup function, or an error.
func Bootstrap(ctx context.Context) (*App, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	db, err := connectPostgres(ctx, cfg.DSN())
	if err != nil {
		return nil, nil, err
	}

	rdb, err := connectRedis(ctx, cfg.RedisAddr())
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	var cleanupFns []func()
	cleanupFns = append(cleanupFns, func() {
		db.Close()
		_ = rdb.Close()
	})

	store := repository.NewStore(db)
	replay := repository.NewReplayCache(rdb)

	checkout := provider.NewCheckout(cfg.CheckoutAPIBase, cfg.CheckoutSecretKey, cfg.CheckoutWebhookSecret, cfg.BaseURL)
	coinpay := provider.NewCoinPay(cfg.CoinPayAPIBase, cfg.CoinPayPublicKey, cfg.CoinPayPrivateKey, cfg.BaseURL)

	logger := slog.Default()

	var bus repository.MessageBus
	var servers []Server

	// The event bus and audit worker only run when NATS is configured.
	var svc service.PaymentService
	if natsURL := cfg.NatsAddr(); natsURL != "" {
		nc, err := connectNats(natsURL)
		if err != nil {
			return nil, runCleanup(cleanupFns), err
		}
		cleanupFns = append(cleanupFns, nc.Close)
		bus = transportNATS.NewBus(nc)

		svc = service.New(store, plan.Default(), checkout, coinpay, bus, replay, logger)
		servers = append(servers, worker.NewAuditWorker(svc, nc))
	} else {
		svc = service.New(store, plan.Default(), checkout, coinpay, nil, replay, logger)
	}

	servers = append(servers, transportHTTP.NewServer(cfg.ApiAddr(), svc, cfg.AdminToken, logger))

	return NewApp(servers), runCleanup(cleanupFns), nil
}

// runCleanup returns a single function that calls all cleanup functions in
// reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
