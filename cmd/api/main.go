package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/anjiri1684/letter_broker/configs"
	"github.com/anjiri1684/letter_broker/database"
	"github.com/anjiri1684/letter_broker/handlers"
	"github.com/anjiri1684/letter_broker/jobs"
	"github.com/anjiri1684/letter_broker/logger"
	"github.com/anjiri1684/letter_broker/metrics"
	"github.com/anjiri1684/letter_broker/middleware"
	"github.com/anjiri1684/letter_broker/notifications"
	"github.com/anjiri1684/letter_broker/payments"
	"github.com/anjiri1684/letter_broker/repository"
	"github.com/anjiri1684/letter_broker/repository/memory"
	"github.com/anjiri1684/letter_broker/routes"
	"github.com/anjiri1684/letter_broker/services"
	"github.com/anjiri1684/letter_broker/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

func openStore(s config.Settings, log logrus.FieldLogger) repository.Store {
	if s.StoreDriver == "memory" {
		log.Warn("using the in-memory store, data is lost on restart")
		return memory.New()
	}
	db, err := database.ConnectDB(s.DatabaseURL, log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	if err := database.Migrate(db, log); err != nil {
		log.WithError(err).Fatal("failed to migrate database")
	}
	return repository.NewGormStore(db)
}

func newGateway(s config.Settings, log logrus.FieldLogger) payments.Gateway {
	if s.StripeSecretKey == "" {
		log.Warn("STRIPE_SECRET_KEY not set, using the sandbox payment gateway")
		return payments.NewSandboxGateway(log)
	}
	return payments.NewStripeGateway(s.StripeSecretKey, log)
}

func newRateLimit(s config.Settings, log logrus.FieldLogger) fiber.Handler {
	if s.RedisURL == "" {
		return middleware.RateLimit(nil, s.RateLimitPerMinute, time.Minute, log)
	}
	opts, err := redis.ParseURL(s.RedisURL)
	if err != nil {
		log.WithError(err).Fatal("failed to parse REDIS_URL")
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("redis not reachable, rate limiter will fail open until it is")
	}
	return middleware.RateLimit(middleware.NewRedisCounter(client), s.RateLimitPerMinute, time.Minute, log)
}

func main() {
	settings := config.Load()
	log := logger.New("letter-broker", settings.LogLevel)

	if settings.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	store := openStore(settings, log)
	gateway := newGateway(settings, log)
	hub := websocket.NewHub(log)
	processor := notifications.NewProcessor(store, log,
		notifications.NewEmailChannel(notifications.EmailConfig{
			APIKey:      settings.BrevoAPIKey,
			SenderEmail: settings.EmailSender,
			SenderName:  settings.EmailSenderName,
		}, log),
		notifications.NewSMSChannel(notifications.SMSConfig{
			Provider: settings.SMSProvider,
			APIKey:   settings.SMSAPIKey,
			Sender:   settings.SMSSender,
		}, log),
		notifications.NewWhatsAppChannel(notifications.WhatsAppConfig{
			Token:   settings.WhatsAppToken,
			PhoneID: settings.WhatsAppPhoneID,
		}, log),
		notifications.NewInAppChannel(store.InApp(), hub),
	)
	notifier := services.NewNotifier(log, processor.Configured()...)
	log.WithField("channels", processor.Configured()).Info("notification channels configured")
	audit := services.NewStoreAuditor(store, log)

	settlement := services.NewSettlementService(store, gateway, notifier, audit, settings.FulfillerShare, log)
	refunds := services.NewRefundService(store, gateway, notifier, audit, log)
	requests := services.NewRequestService(store, notifier, audit, settlement, log)
	paymentSvc := services.NewPaymentService(store, gateway, notifier, audit, services.Pricing{
		Price:    settings.RequestPrice,
		Currency: settings.RequestCurrency,
	}, log)
	webhooks := services.NewWebhookService(store, notifier, audit, settings.StripeWebhookSecret, settings.WebhookTimeout, log)
	tokens := services.NewTokenService(store, audit, log)

	enforcer := jobs.NewEnforcer(store, notifier, audit, settlement, refunds, log)

	scheduler := cron.New()
	if settings.EnableCron {
		if err := jobs.Schedule(scheduler, enforcer, processor, log); err != nil {
			log.WithError(err).Fatal("failed to schedule sweeps")
		}
		scheduler.Start()
		log.Info("cron sweeps scheduled")
	}

	app := fiber.New(fiber.Config{
		AppName:       settings.AppName,
		CaseSensitive: true,
		StrictRouting: true,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  15 * time.Second,
		IdleTimeout:   60 * time.Second,
		ErrorHandler:  handlers.ErrorHandler(log),
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, Stripe-Signature, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowMethods:  "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders: "Content-Length, Retry-After",
		MaxAge:        86400,
	}))
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(metrics.Middleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	routes.Register(app, routes.Deps{
		Requests:        handlers.NewRequestHandler(requests),
		Payments:        handlers.NewPaymentHandler(paymentSvc, webhooks),
		Admin:           handlers.NewAdminHandler(refunds, settlement, tokens),
		Jobs:            handlers.NewJobHandler(enforcer, processor),
		Notifications:   handlers.NewNotificationHandler(store.InApp()),
		Hub:             hub,
		JWTSecret:       settings.JWTSecret,
		SchedulerSecret: settings.SchedulerSecret,
		RateLimit:       newRateLimit(settings, log),
		Log:             log,
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("shutting down")
		<-scheduler.Stop().Done()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.WithError(err).Error("server shutdown")
		}
	}()

	log.WithField("port", settings.Port).Info("server is running")
	if err := app.Listen(":" + settings.Port); err != nil {
		log.WithError(err).Fatal("server failed to start")
	}
}
