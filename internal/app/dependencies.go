// Package app wires shared infrastructure for the API and worker binaries:
// database pool, Redis, task queue, provider client and the payment service.
package app

import (
	"context"
	"fmt"
	"net/http"

	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/momo-gateway/internal/config"
	"github.com/noah-isme/momo-gateway/internal/db"
	"github.com/noah-isme/momo-gateway/internal/events"
	"github.com/noah-isme/momo-gateway/internal/lock"
	"github.com/noah-isme/momo-gateway/internal/momo"
	"github.com/noah-isme/momo-gateway/internal/order"
	"github.com/noah-isme/momo-gateway/internal/payment"
	"github.com/noah-isme/momo-gateway/internal/queue"
	"github.com/noah-isme/momo-gateway/internal/resilience"
)

// Dependencies holds the long-lived resources shared across modules.
type Dependencies struct {
	Cfg       *config.Config
	Logger    zerolog.Logger
	DB        *pgxpool.Pool
	Redis     *redis.Client
	AsynqOpt  asynq.RedisClientOpt
	Tasks     *asynq.Client
	Validator *validator.Validate

	Momo     *momo.Client
	Tokens   *momo.TokenManager
	Payments *payment.Service
	Orders   order.Store
}

// New connects infrastructure, runs migrations and assembles the payment
// service graph.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Dependencies, error) {
	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("app: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("app: ping postgres: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("app: parse redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("app: ping redis: %w", err)
	}
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		logger.Warn().Err(err).Msg("redis tracing instrumentation failed")
	}

	asynqOpt := asynq.RedisClientOpt{
		Addr:     redisOpts.Addr,
		Username: redisOpts.Username,
		Password: redisOpts.Password,
		DB:       redisOpts.DB,
	}
	tasks := asynq.NewClient(asynqOpt)

	breaker := resilience.NewBreaker(cfg.BreakerThreshold, 0.5, cfg.BreakerCooldown).
		WithTarget("momo").
		WithLogger(logger)
	momoClient := &momo.Client{
		BaseURL:           cfg.MomoBaseURL,
		SubscriptionKey:   cfg.MomoSubKey,
		TargetEnvironment: cfg.MomoEnvironment,
		CallbackHost:      cfg.MomoCallbackHost,
		HTTP: &resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Breaker:     breaker,
			BaseBackoff: cfg.RetryBaseBackoff,
			MaxAttempts: cfg.RetryMaxAttempts,
			Jitter:      0.2,
			Timeout:     cfg.ProviderTimeout,
		},
	}
	tokens := &momo.TokenManager{
		Client:       momoClient,
		Credentials:  momo.Credentials{UserID: cfg.MomoUserID, APIKey: cfg.MomoAPIKey},
		SafetyMargin: cfg.TokenMargin,
	}

	store := &payment.PGStore{Pool: pool}
	orders := &order.PGStore{Pool: pool}
	poller := &payment.Poller{
		Provider:    momoClient,
		Tokens:      tokens,
		Cache:       &payment.TerminalCache{R: rdb},
		MaxAttempts: cfg.PollMaxAttempts,
		Interval:    cfg.PollInterval,
		Logger:      logger,
	}
	svc := &payment.Service{
		Store:        store,
		Orders:       orders,
		Provider:     momoClient,
		Tokens:       tokens,
		Resolver:     poller,
		Locks:        lock.Locker{R: rdb},
		Enqueue:      &queue.Enqueuer{Client: tasks},
		Bus:          &events.Bus{Store: store},
		Validate:     validator.New(),
		Currency:     cfg.CurrencyCode,
		Exponent:     cfg.CurrencyExponent,
		LockTTL:      cfg.PaymentLockTTL,
		PayerMessage: "Order payment",
		PayeeNote:    "Thank you for your purchase",
		Logger:       logger,
	}

	return &Dependencies{
		Cfg:       cfg,
		Logger:    logger,
		DB:        pool,
		Redis:     rdb,
		AsynqOpt:  asynqOpt,
		Tasks:     tasks,
		Validator: svc.Validate,
		Momo:      momoClient,
		Tokens:    tokens,
		Payments:  svc,
		Orders:    orders,
	}, nil
}

// Close releases all held resources.
func (d *Dependencies) Close() {
	if d == nil {
		return
	}
	if d.Tasks != nil {
		_ = d.Tasks.Close()
	}
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	if d.DB != nil {
		d.DB.Close()
	}
}
