package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/digital-shop/bot/internal/bot"
	"github.com/digital-shop/bot/internal/catalog"
	"github.com/digital-shop/bot/internal/config"
	"github.com/digital-shop/bot/internal/db"
	"github.com/digital-shop/bot/internal/events"
	apphttp "github.com/digital-shop/bot/internal/http"
	"github.com/digital-shop/bot/internal/http/handlers"
	"github.com/digital-shop/bot/internal/rbac"
	"github.com/digital-shop/bot/internal/services"
	"github.com/digital-shop/bot/internal/session"
	"github.com/digital-shop/bot/internal/store"
	"github.com/digital-shop/bot/internal/telegram"
	"github.com/digital-shop/bot/migrations"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	st, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer st.Close()

	// Redis (optional)
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = db.NewRedisClient(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()
	}

	var (
		sessions   session.Store
		publisher  events.Publisher
		subscriber events.Subscriber
		dedup      events.Deduper
	)
	if rdb != nil {
		sessions = session.NewRedisStore(rdb)
		publisher = events.NewRedisPublisher(rdb, log)
		subscriber = events.NewRedisSubscriber(rdb, log)
		dedup = events.NewRedisDeduper(rdb)
	} else {
		log.Info("REDIS_URL is empty, sessions and events kept in memory")
		sessions = session.NewMemoryStore()
		bus := events.NewMemoryBus()
		publisher, subscriber = bus, bus
		dedup = events.NewMemoryDeduper()
	}

	// Catalog
	cat := catalog.Default()
	if cfg.CatalogFile != "" {
		cat, err = catalog.Load(cfg.CatalogFile)
		if err != nil {
			log.Fatal("failed to load catalog", zap.String("file", cfg.CatalogFile), zap.Error(err))
		}
	}
	wallets, err := cfg.Wallets.Normalize()
	if err != nil {
		log.Fatal("invalid wallet configuration", zap.Error(err))
	}
	log.Info("catalog loaded", zap.Int("products", len(cat.Products())), zap.Strings("currencies", wallets.Available()))

	// Services
	tg := telegram.NewClient(cfg.BotAPIURL, cfg.BotToken, log)
	messenger := bot.NewTelegramMessenger(tg)
	authz := rbac.NewAuthorizer(cfg.AdminTelegramIDs)

	accessService := services.NewAccessService(st, cat, messenger, publisher, log)
	orderService := services.NewOrderService(st, sessions, cat, wallets, authz, accessService, publisher, log)
	controller := bot.NewController(orderService, accessService, authz, messenger, bot.Options{
		SupportURL:        cfg.SupportURL,
		HowToBuyCryptoURL: cfg.HowToBuyCryptoURL,
	}, log)

	notifier := bot.NewNotifier(subscriber, dedup, authz, messenger, log)
	if err := notifier.Start(ctx); err != nil {
		log.Warn("admin notifier disabled", zap.Error(err))
	}

	// Handlers
	wsHub := handlers.NewWSHub(cfg.JWTSecret, authz, subscriber, log)
	wsHub.Start(ctx)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, apphttp.Handlers{
		Webhook: handlers.NewWebhookHandler(controller, cfg.WebhookSecret, log),
		Auth:    handlers.NewAuthHandler(orderService, authz, cfg, log),
		Orders:  handlers.NewOrderHandler(orderService, controller, log),
		Meta:    handlers.NewMetaHandler(cat, wallets),
		WS:      wsHub,
	})

	// Updates: webhook or long polling
	pollerDone := make(chan struct{})
	if cfg.UsePolling() {
		if err := tg.DeleteWebhook(ctx); err != nil {
			log.Warn("failed to delete webhook", zap.Error(err))
		}
		poller := bot.NewPoller(tg, controller, cfg.PollTimeout, cfg.MaxConcurrent, log)
		go func() {
			poller.Run(ctx)
			close(pollerDone)
		}()
	} else {
		close(pollerDone)
		if err := tg.SetWebhook(ctx, cfg.WebhookURL, cfg.WebhookSecret); err != nil {
			log.Fatal("failed to set webhook", zap.String("url", cfg.WebhookURL), zap.Error(err))
		}
		log.Info("webhook registered", zap.String("url", cfg.WebhookURL))
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
			log.Warn("http shutdown", zap.Error(err))
		}
	}()

	addr := fmt.Sprintf(":%s", cfg.HTTPPort)
	log.Info("starting bot server", zap.String("addr", addr), zap.Bool("polling", cfg.UsePolling()))
	if err := app.Listen(addr); err != nil {
		log.Error("server error", zap.Error(err))
	}
	cancel()
	<-pollerDone
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case "sqlite":
		return store.NewSQLiteStore(ctx, cfg.SQLitePath, log)
	default:
		pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
			pool.Close()
			return nil, err
		}
		return store.NewPostgresStore(pool), nil
	}
}
