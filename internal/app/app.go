package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/offmarket/offmarket/internal/config"
	"github.com/offmarket/offmarket/internal/delivery/rest"
	"github.com/offmarket/offmarket/internal/domain"
	"github.com/offmarket/offmarket/internal/infra/db"
	"github.com/offmarket/offmarket/internal/infra/events"
	"github.com/offmarket/offmarket/internal/infra/lock"
	"github.com/offmarket/offmarket/internal/infra/log"
	"github.com/offmarket/offmarket/internal/infra/mail"
	"github.com/offmarket/offmarket/internal/infra/memory"
	"github.com/offmarket/offmarket/internal/infra/tracing"
	"github.com/offmarket/offmarket/internal/usecase"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const runLeaseKey = "offmarket:evaluation:lease"

type stores struct {
	users   domain.UserRepository
	alerts  domain.AlertStore
	catalog domain.CatalogStore
	health  func(ctx context.Context) error
}

type App struct {
	server    *rest.Server
	scheduler *usecase.Scheduler
	hub       *rest.Hub
	logger    *zap.Logger
	cleanups  []func(context.Context) error
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := log.NewLogger(cfg.LogLevel, cfg.AppEnv)
	if err != nil {
		return nil, err
	}
	a := &App{logger: logger}

	shutdownTracing, err := tracing.Init(ctx, cfg.OTLPEndpoint, cfg.OTelServiceName, logger)
	if err != nil {
		return nil, err
	}
	a.cleanups = append(a.cleanups, shutdownTracing)

	st, err := a.openStores(cfg)
	if err != nil {
		a.cleanup(ctx)
		return nil, err
	}

	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		a.cleanup(ctx)
		return nil, err
	}

	var guard usecase.RunGuard = lock.NewLocal()
	var limiter rest.RateLimiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.cleanup(ctx)
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		a.cleanups = append(a.cleanups, func(context.Context) error { return client.Close() })
		guard = lock.NewRedis(client, runLeaseKey, instanceName(), cfg.RunLeaseTTL)
		limiter = rest.NewRedisLimiter(client, cfg.CheckRatePerMinute)
		logger.Info("redis run lease enabled", zap.String("addr", opts.Addr))
	}

	a.hub = rest.NewHub(st.users, logger)
	sinks := []events.Publisher{a.hub}
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaAlertsTopic, cfg.WriteTimeout, logger)
		if err != nil {
			a.cleanup(ctx)
			return nil, err
		}
		a.cleanups = append(a.cleanups, func(context.Context) error { return kafka.Close() })
		sinks = append(sinks, kafka)
		logger.Info("kafka alert events enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaAlertsTopic))
	}

	evaluator := usecase.NewEvaluator(st.alerts, notifier, events.NewFanout(sinks...), usecase.EvaluatorConfig{
		FetchTimeout: cfg.FetchTimeout,
		SendTimeout:  cfg.MailSendTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}, logger)
	a.scheduler = usecase.NewScheduler(evaluator, guard, usecase.SchedulerConfig{
		Interval:   cfg.SchedulerInterval,
		RunTimeout: cfg.SchedulerRunTimeout,
	}, logger)

	router := rest.NewRouter(rest.Deps{
		Alerts:  usecase.NewAlertUsecase(st.users, st.alerts),
		Catalog: usecase.NewCatalogUsecase(st.catalog),
		Trigger: a.scheduler,
		Hub:     a.hub,
		Limiter: limiter,
		Health:  st.health,
		Logger:  logger,
	})
	a.server = rest.NewServer(cfg.HTTPAddr, router, logger)

	return a, nil
}

func (a *App) openStores(cfg config.Config) (stores, error) {
	if cfg.StoreBackend == config.StoreMemory {
		store := memory.NewStore()
		seedDemo(store, a.logger)
		return stores{users: store, alerts: store, catalog: store}, nil
	}

	dbConn, err := db.Open(cfg, a.logger)
	if err != nil {
		return stores{}, err
	}
	sqlDB, err := dbConn.DB()
	if err != nil {
		return stores{}, err
	}
	a.cleanups = append(a.cleanups, func(context.Context) error { return sqlDB.Close() })

	return stores{
		users:   db.NewUserRepository(dbConn),
		alerts:  db.NewAlertRepository(dbConn),
		catalog: db.NewCatalogRepository(dbConn),
		health:  sqlDB.PingContext,
	}, nil
}

// instanceName labels this process in the shared run lease.
func instanceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "offmarket"
	}
	return host
}

func newNotifier(cfg config.Config, logger *zap.Logger) (usecase.Notifier, error) {
	if cfg.MailTransport == config.MailSMTP {
		return mail.NewSMTPNotifier(cfg, logger)
	}
	if cfg.IsProduction() {
		logger.Warn("smtp credentials missing, price drop emails are captured in the sandbox")
	}
	return mail.NewSandbox(cfg.FrontendURL, logger), nil
}

func seedDemo(store *memory.Store, logger *zap.Logger) {
	lat, lon := 40.4168, -3.7038
	shop := store.PutStore(domain.Store{Name: "Demo Market", Address: "Puerta del Sol", Latitude: &lat, Longitude: &lon})
	product := store.PutProduct(domain.Product{StoreID: shop.ID, Name: "Coffee Beans 1kg", Price: decimal.RequireFromString("18.90"), Currency: "EUR"})
	user := store.PutUser("demo@offmarket.local")
	logger.Info("memory store seeded",
		zap.Uint("user_id", user.ID),
		zap.Uint("store_id", shop.ID),
		zap.Uint("product_id", product.ID),
	)
}

// Run starts the scheduler and serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.scheduler.Start(ctx)
	a.logger.Info("evaluation scheduler armed", zap.String("interval", a.scheduler.Status().Interval))

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start()
	}()

	a.logger.Info("alert api accepting requests")
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (a *App) Shutdown() {
	a.logger.Info("draining alert api and scheduler")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Warn("failed to stop http server", zap.Error(err))
		}
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.scheduler != nil {
		a.scheduler.Wait()
	}
	a.cleanup(ctx)
	_ = a.logger.Sync()
}

// cleanup releases resources in reverse order of acquisition.
func (a *App) cleanup(ctx context.Context) {
	var errs []error
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		if err := a.cleanups[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.cleanups = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("failed to release resources", zap.Error(err))
	}
}
