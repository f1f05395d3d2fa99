package main

import (
	"context"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/apptengine/libs/config"
	"github.com/md-rashed-zaman/apptengine/libs/db"
	"github.com/md-rashed-zaman/apptengine/libs/httpx"
	"github.com/md-rashed-zaman/apptengine/libs/kafkax"
	otelx "github.com/md-rashed-zaman/apptengine/libs/otel"
	"github.com/md-rashed-zaman/apptengine/libs/runtime"
	"github.com/md-rashed-zaman/apptengine/services/scheduler-service/internal/inbox"
	"github.com/md-rashed-zaman/apptengine/services/scheduler-service/internal/jobs"
	"github.com/md-rashed-zaman/apptengine/services/scheduler-service/internal/reminders"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var defaultTopics = []string{
	"booking.appointment.created.v1",
	"booking.appointment.rescheduled.v1",
	"booking.appointment.cancelled.v1",
	"booking.appointment.completed.v1",
	"booking.appointment.no_show.v1",
}

func main() {
	config.LoadDotEnv()
	service := config.String("SERVICE_NAME", "scheduler-service")
	port, err := config.Port("PORT", "8087")
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

	jobRepo := jobs.NewRepository(pool)
	if config.Bool("DB_MIGRATE", true) {
		if err := jobRepo.Migrate(ctx); err != nil {
			logger.Error("db migration failed", "err", err)
			panic(err)
		}
	}

	backoff, err := config.Duration("SCHEDULER_BACKOFF", time.Minute)
	if err != nil {
		panic(err)
	}
	brokers := config.String("KAFKA_BROKERS", "")
	jobWorker := jobs.NewWorker(pool, jobRepo, logger, jobs.WorkerConfig{
		Brokers:   brokers,
		Interval:  2 * time.Second,
		BatchSize: 50,
		Backoff:   backoff,
	})
	go jobWorker.Run(ctx)

	topics := defaultTopics
	if raw := config.String("KAFKA_CONSUME_TOPICS", ""); raw != "" {
		topics = kafkax.SplitBrokers(raw)
	}
	eventConsumer := kafkax.NewConsumer(logger, inbox.NewRepository(pool), kafkax.ConsumerConfig{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "scheduler-service"),
		Topics:  topics,
	}, func(ctx context.Context, msg kafka.Message) error {
		plan, err := reminders.PlanFor(msg.Value, time.Now().UTC())
		if err != nil {
			logger.Error("invalid appointment event", "err", err, "topic", msg.Topic)
			return nil
		}
		if plan.Empty() {
			return nil
		}
		if err := jobRepo.Apply(ctx, plan); err != nil {
			return err
		}
		if plan.Schedule != nil {
			logger.Info("reminder scheduled", "appointment_id", plan.Schedule.AppointmentID, "remind_at", plan.Schedule.RemindAt)
		}
		return nil
	})
	go eventConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "scheduler")
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
