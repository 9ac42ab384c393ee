package main

import (
	"context"
	"fmt"

	"github.com/effectivemobile/parking/internal/cache"
	"github.com/effectivemobile/parking/internal/config"
	"github.com/effectivemobile/parking/internal/gateway"
	"github.com/effectivemobile/parking/internal/metrics"
	"github.com/effectivemobile/parking/internal/notify"
	"github.com/effectivemobile/parking/internal/parking"
	"github.com/effectivemobile/parking/internal/store"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// app holds the wired dependencies shared by every command.
type app struct {
	cfg        *config.Config
	log        *logrus.Logger
	db         *sqlx.DB
	store      store.Store
	svc        *parking.Service
	dispatcher *notify.Dispatcher
	registry   *prometheus.Registry
	closers    []func() error
}

func newLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		log.Warnf("unknown log level %q, using info", cfg.Level)
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	a := &app{cfg: cfg, log: newLogger(cfg.Log), registry: prometheus.NewRegistry()}

	switch cfg.Storage.Driver {
	case "memory":
		a.log.Warn("using in-memory store; data is lost on exit")
		a.store = store.NewMemoryStore()
	default:
		db, err := sqlx.Connect("postgres", cfg.Postgres.DSN())
		if err != nil {
			return nil, fmt.Errorf("can't connect to db: %w", err)
		}
		a.db = db
		a.closers = append(a.closers, db.Close)
		a.store = store.NewPostgresStore(db, a.log)
	}

	var sender notify.Sender = notify.NewLogSender(a.log)
	if cfg.AMQP.URL != "" {
		amqpSender, err := notify.NewAMQPSender(cfg.AMQP.URL, cfg.AMQP.Exchange, a.log)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect amqp: %w", err)
		}
		a.closers = append(a.closers, amqpSender.Close)
		sender = amqpSender
	}
	a.dispatcher = notify.NewDispatcher(sender, a.log, cfg.Timeout)

	breaker := gateway.DefaultBreakerConfig()
	breaker.FailureThreshold = cfg.Gateway.FailureThreshold
	breaker.Timeout = cfg.Gateway.OpenTimeout
	gw := gateway.NewBreakerGateway(gateway.NewMoMoClient(gateway.MoMoConfig{
		Endpoint:    cfg.Gateway.Endpoint,
		PartnerCode: cfg.Gateway.PartnerCode,
		AccessKey:   cfg.Gateway.AccessKey,
		SecretKey:   cfg.Gateway.SecretKey,
		RedirectURL: cfg.Gateway.RedirectURL,
		IPNURL:      cfg.Gateway.IPNURL,
		Timeout:     cfg.Gateway.Timeout,
	}, a.log), breaker, a.log)

	loc, err := cfg.Location()
	if err != nil {
		a.close()
		return nil, err
	}
	opts := []parking.Option{
		parking.WithMetrics(metrics.New(a.registry)),
		parking.WithLocation(loc),
		parking.WithPaymentMethod(cfg.Gateway.Method),
		parking.WithGatewayTimeout(cfg.Gateway.Timeout),
	}
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			a.log.WithError(err).Warn("redis unreachable; availability is served uncached")
			client.Close()
		} else {
			a.closers = append(a.closers, client.Close)
			opts = append(opts, parking.WithCache(cache.NewAvailabilityCache(client, cfg.Redis.TTL)))
		}
	}
	a.svc = parking.NewService(a.store, gw, a.dispatcher, a.log, opts...)
	return a, nil
}

// close waits for pending notifications, then releases connections in
// reverse order of acquisition.
func (a *app) close() {
	if a.dispatcher != nil {
		a.dispatcher.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.WithError(err).Warn("close failed")
		}
	}
}
