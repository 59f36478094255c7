package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"propman-be/internal/config"
	"propman-be/internal/controller"
	"propman-be/internal/pkg/logger"
	"propman-be/internal/repository/memory"
	"propman-be/internal/repository/unitofwork"
	"propman-be/internal/service"
	"propman-be/internal/websocket"
	"propman-be/pkg/cron"
	"propman-be/pkg/events"
	"propman-be/pkg/lock"
	"propman-be/pkg/payment"
	paymentFactory "propman-be/pkg/payment/factory"
	"propman-be/pkg/payment/midtrans"
	"propman-be/pkg/payment/mpesa"
	"propman-be/pkg/subscription"
	lifecycleEvents "propman-be/pkg/subscription/events"

	pktNats "propman-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const lockPrefix = "propman:"

type Container struct {
	// Controllers
	SubscriptionController controller.ISubscriptionController
	PaymentController      controller.IPaymentController

	// Background work (run by main.go)
	LifecycleService *service.LifecycleService
	ConsumerService  service.IConsumerService
	ReconcileJob     *cron.ReconcileJob
	WebSocketHub     *websocket.Hub

	Logger logger.ILogger

	closers []func()
}

// NewContainer wires the application. db may be nil when the store driver
// is memory.
func NewContainer(db *gorm.DB, cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	paymentLogger := logger.NewIsolatedLogger(cfg.App.PaymentLogPath)
	c := &Container{Logger: sysLogger}

	uowFactory, err := newRepositoryFactory(db, cfg)
	if err != nil {
		return nil, err
	}

	// 2. Infrastructure
	var rdb redis.UniversalClient
	if cfg.App.RedisURL != "" {
		client, err := newRedisClient(cfg.App.RedisURL, sysLogger)
		if err != nil {
			return nil, err
		}
		rdb = client
		c.closers = append(c.closers, func() { _ = client.Close() })
	}

	locker, err := newLocker(cfg.App.LockDriver, rdb, sysLogger)
	if err != nil {
		return nil, err
	}

	var natsPub *pktNats.Publisher
	var natsSub *pktNats.Subscriber
	if cfg.App.NatsURL != "" {
		natsPub, err = pktNats.NewPublisher(cfg.App.NatsURL, sysLogger)
		if err != nil {
			sysLogger.Warn("BOOTSTRAP", "Failed to connect to NATS Publisher, using in-process bus", map[string]interface{}{
				"error": err.Error(),
			})
			natsPub = nil
		} else {
			c.closers = append(c.closers, natsPub.Close)
		}
	}
	if natsPub != nil {
		natsSub, err = pktNats.NewSubscriber(cfg.App.NatsURL, paymentLogger)
		if err != nil {
			sysLogger.Warn("BOOTSTRAP", "Failed to connect to NATS Subscriber", map[string]interface{}{
				"error": err.Error(),
			})
			natsSub = nil
		} else {
			c.closers = append(c.closers, natsSub.Close)
		}
	}

	// 3. Event Bus
	var bus events.Bus
	var pubSub *gochannel.GoChannel
	if natsPub != nil {
		bus = natsPub
	} else {
		pubSub = gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			watermill.NewStdLogger(false, false),
		)
		bus = events.NewChannelBus(pubSub, cfg.App.EventTopic)
		c.closers = append(c.closers, func() { _ = pubSub.Close() })
	}
	publisher := lifecycleEvents.New(bus, sysLogger)

	// 4. Payment
	callbacks := payment.NewCallbackStore(cfg.Payment.CallbackTTL)
	gateway, err := paymentFactory.NewGateway(paymentFactory.Options{
		Provider: cfg.Payment.Provider,
		Mpesa: mpesa.Config{
			BaseURL:         cfg.Mpesa.BaseURL,
			ConsumerKey:     cfg.Mpesa.ConsumerKey,
			ConsumerSecret:  cfg.Mpesa.ConsumerSecret,
			ShortCode:       cfg.Mpesa.ShortCode,
			PassKey:         cfg.Mpesa.PassKey,
			CallbackURL:     callbackURL(cfg.Mpesa.CallbackURL, cfg.Mpesa.CallbackToken),
			TransactionType: cfg.Mpesa.TransactionType,
			Timeout:         cfg.Mpesa.Timeout,
		},
		Midtrans: midtrans.Config{
			ServerKey:    cfg.Midtrans.ServerKey,
			IsProduction: cfg.Midtrans.IsProduction,
		},
	}, paymentLogger)
	if err != nil {
		return nil, err
	}
	poller := payment.NewPoller(gateway, payment.PollerConfig{
		Interval:    cfg.Payment.PollInterval,
		MaxAttempts: cfg.Payment.MaxAttempts,
	}, paymentLogger).WithCallbacks(callbacks)

	// 5. Services
	machine := subscription.NewMachine(subscription.DefaultCatalog(), cfg.Subscription.WarningWindow)
	lifecycle := service.NewLifecycleService(
		uowFactory,
		machine,
		gateway,
		poller,
		locker,
		publisher,
		callbacks,
		sysLogger,
	)

	hub := websocket.NewHub(rdb, logger.NewIsolatedLogger("logs/notification.log"))
	notifService := service.NewNotificationService(hub, sysLogger)
	consumerService := service.NewConsumerService(
		pubSub,
		cfg.App.EventTopic,
		natsSub,
		paymentLogger,
		notifService.HandleEvent,
	)

	c.LifecycleService = lifecycle
	c.ConsumerService = consumerService
	c.WebSocketHub = hub
	c.ReconcileJob = cron.NewReconcileJob(lifecycle, cfg.Subscription.ReconcileSchedule, cfg.Subscription.ReconcileTimeout, sysLogger)

	// 6. Controllers
	c.SubscriptionController = controller.NewSubscriptionController(lifecycle)
	c.PaymentController = controller.NewPaymentController(lifecycle, hub, cfg.JWT.Secret, cfg.Mpesa.CallbackToken, cfg.Payment.SyncTimeout, sysLogger)

	c.closers = append(c.closers, func() {
		_ = paymentLogger.Sync()
		_ = sysLogger.Sync()
	})

	sysLogger.Info("BOOTSTRAP", "Container ready", map[string]interface{}{
		"store":    cfg.App.StoreDriver,
		"lock":     cfg.App.LockDriver,
		"gateway":  gateway.Name(),
		"nats":     natsPub != nil,
		"redis":    rdb != nil,
		"schedule": cfg.Subscription.ReconcileSchedule,
	})

	return c, nil
}

// Close waits for in-flight confirmations, then releases connections in
// reverse order of creation.
func (c *Container) Close(ctx context.Context) error {
	var err error
	if c.LifecycleService != nil {
		err = c.LifecycleService.Close(ctx)
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	return err
}

func newRepositoryFactory(db *gorm.DB, cfg *config.Config) (unitofwork.RepositoryFactory, error) {
	switch strings.ToLower(cfg.App.StoreDriver) {
	case "memory":
		return memory.NewStore().NewRepositoryFactory(), nil
	case "", "postgres":
		if db == nil {
			return nil, errors.New("postgres store requires a database connection")
		}
		return unitofwork.NewRepositoryFactory(db), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.App.StoreDriver)
}

func newLocker(driver string, rdb redis.UniversalClient, log logger.ILogger) (lock.Locker, error) {
	switch strings.ToLower(driver) {
	case "", "memory":
		return lock.NewMemoryLock(), nil
	case "redis":
		if rdb == nil {
			return nil, errors.New("redis lock driver requires REDIS_URL")
		}
		return lock.NewRedisLock(rdb, lockPrefix, log), nil
	}
	return nil, fmt.Errorf("unknown lock driver %q", driver)
}

// callbackURL appends the shared callback token so Daraja echoes it back.
func callbackURL(raw, token string) string {
	if raw == "" || token == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func newRedisClient(url string, log logger.ILogger) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Warn("BOOTSTRAP", "Failed to parse Redis URL, using direct Addr", map[string]interface{}{
			"error": err.Error(),
		})
		opt = &redis.Options{Addr: url}
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return rdb, nil
}
