package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/apptengine/libs/config"
	"github.com/md-rashed-zaman/apptengine/libs/db"
	"github.com/md-rashed-zaman/apptengine/libs/httpx"
	"github.com/md-rashed-zaman/apptengine/libs/kafkax"
	otelx "github.com/md-rashed-zaman/apptengine/libs/otel"
	"github.com/md-rashed-zaman/apptengine/libs/runtime"
	"github.com/md-rashed-zaman/apptengine/services/notification-service/internal/email"
	"github.com/md-rashed-zaman/apptengine/services/notification-service/internal/inbox"
	"github.com/md-rashed-zaman/apptengine/services/notification-service/internal/notify"
	"github.com/md-rashed-zaman/apptengine/services/notification-service/internal/sms"
	"github.com/md-rashed-zaman/apptengine/services/notification-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var defaultTopics = []string{
	"booking.appointment.created.v1",
	"booking.appointment.confirmed.v1",
	"booking.appointment.rescheduled.v1",
	"booking.appointment.cancelled.v1",
	"booking.appointment.completed.v1",
	"booking.appointment.no_show.v1",
	"scheduler.reminder.due.v1",
}

func main() {
	config.LoadDotEnv()
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	notificationsRepo := storage.NewRepository(pool)
	if config.Bool("DB_MIGRATE", true) {
		if err := notificationsRepo.Migrate(ctx); err != nil {
			logger.Error("db migration failed", "err", err)
			panic(err)
		}
	}

	emailSender := email.NewSMTPSender(
		config.String("SMTP_HOST", "mailpit"),
		config.String("SMTP_PORT", "1025"),
		config.String("SMTP_FROM", ""),
	)
	var smsSender sms.Sender
	switch strings.ToLower(config.String("SMS_PROVIDER", "noop")) {
	case "webhook":
		smsSender = sms.NewWebhookSender(
			config.String("SMS_WEBHOOK_URL", ""),
			config.String("SMS_WEBHOOK_TOKEN", ""),
			config.String("SMS_SENDER_ID", ""),
		)
	default:
		smsSender = sms.NewNoopSender()
	}
	dispatcher := notify.NewDispatcher(emailSender, smsSender, notificationsRepo, logger)

	topics := defaultTopics
	if raw := config.String("KAFKA_CONSUME_TOPICS", ""); raw != "" {
		topics = kafkax.SplitBrokers(raw)
	}
	brokers := config.String("KAFKA_BROKERS", "")
	eventConsumer := kafkax.NewConsumer(logger, inbox.NewRepository(pool), kafkax.ConsumerConfig{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
		Topics:  topics,
	}, dispatcher.Handle)
	go eventConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
