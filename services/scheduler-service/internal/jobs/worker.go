package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/apptengine/libs/db"
	"github.com/md-rashed-zaman/apptengine/libs/kafkax"
	otelx "github.com/md-rashed-zaman/apptengine/libs/otel"
	"github.com/segmentio/kafka-go"
)

// TopicReminderDue carries reminders whose time has come.
const TopicReminderDue = "scheduler.reminder.due.v1"

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Worker struct {
	pool      *db.Pool
	repo      *Repository
	logger    *slog.Logger
	brokers   []string
	interval  time.Duration
	batchSize int
	backoff   time.Duration
}

type WorkerConfig struct {
	Brokers   string
	Interval  time.Duration
	BatchSize int
	Backoff   time.Duration
}

func NewWorker(pool *db.Pool, repo *Repository, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 1 * time.Minute
	}
	return &Worker{
		pool:      pool,
		repo:      repo,
		logger:    logger,
		brokers:   kafkax.SplitBrokers(cfg.Brokers),
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		backoff:   cfg.Backoff,
	}
}

func (w *Worker) Run(ctx context.Context) {
	if len(w.brokers) == 0 {
		w.logger.Warn("reminder worker disabled (no kafka brokers configured)")
		return
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(w.brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	defer writer.Close()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.ProcessBatch(ctx, writer)
			if err != nil {
				w.logger.Error("reminder batch failed", "err", err)
				continue
			}
			if n > 0 {
				w.logger.Info("reminders sent", "count", n)
			}
		}
	}
}

// ProcessBatch publishes due reminders. When the write fails every job in the
// batch is pushed back by the backoff; jobs out of attempts are marked failed.
func (w *Worker) ProcessBatch(ctx context.Context, writer MessageWriter) (int, error) {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	jobs, err := w.repo.FetchDue(ctx, tx, w.batchSize)
	if err != nil {
		return 0, err
	}
	if len(jobs) == 0 {
		return 0, tx.Commit(ctx)
	}

	msgs := make([]kafka.Message, 0, len(jobs))
	ids := make([]int64, 0, len(jobs))
	for _, job := range jobs {
		msgs = append(msgs, Message(ctx, job))
		ids = append(ids, job.ID)
	}

	if writeErr := writer.WriteMessages(ctx, msgs...); writeErr != nil {
		nextRunAt := time.Now().UTC().Add(w.backoff)
		for _, job := range jobs {
			attempts := job.Attempts + 1
			if err := w.repo.MarkFailed(ctx, tx, job.ID, attempts, job.MaxAttempts, nextRunAt, writeErr.Error()); err != nil {
				return 0, err
			}
			if attempts >= job.MaxAttempts {
				w.logger.Error("reminder dropped after max attempts", "appointment_id", job.AppointmentID, "attempts", attempts)
			}
		}
		if err := tx.Commit(ctx); err != nil {
			return 0, err
		}
		return 0, writeErr
	}

	if err := w.repo.MarkSent(ctx, tx, ids); err != nil {
		return 0, err
	}
	return len(jobs), tx.Commit(ctx)
}

// EventID is stable per scheduled reminder so redelivered messages dedupe
// downstream, while a rescheduled reminder gets a fresh id.
func EventID(job Job) string {
	return "reminder:" + job.AppointmentID + ":" + job.RemindAt.UTC().Format(time.RFC3339)
}

// Message builds the due-reminder message, keyed by appointment id and
// continuing the trace of the event that scheduled it.
func Message(ctx context.Context, job Job) kafka.Message {
	msgCtx := otelx.ContextWithTraceContext(ctx, job.Traceparent, job.Tracestate)
	msg := kafka.Message{
		Topic: TopicReminderDue,
		Key:   []byte(job.AppointmentID),
		Value: job.Payload,
		Headers: kafkax.EventMeta{EventID: EventID(job), EventType: TopicReminderDue, AggregateType: "reminder"}.Headers(),
	}
	msg.Headers = kafkax.InjectTraceHeaders(msgCtx, msg.Headers)
	return msg
}
