package kafkax

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
)

type memInbox struct {
	seen map[string]bool
	err  error
}

func (m *memInbox) Record(_ context.Context, id, _ string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.seen[id] {
		return false, nil
	}
	m.seen[id] = true
	return true, nil
}

func TestConsumerProcessDedupes(t *testing.T) {
	inbox := &memInbox{seen: map[string]bool{}}
	calls := 0
	c := &Consumer{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		inbox:  inbox,
		handler: func(context.Context, kafka.Message) error {
			calls++
			return nil
		},
	}
	msg := kafka.Message{
		Topic:   "booking.appointment.created.v1",
		Headers: []kafka.Header{{Key: "event_id", Value: []byte("evt-1")}},
	}
	c.Process(context.Background(), msg)
	c.Process(context.Background(), msg)
	if calls != 1 {
		t.Fatalf("expected handler once, got %d", calls)
	}

	inbox.err = errors.New("db down")
	c.Process(context.Background(), kafka.Message{Key: []byte("evt-2")})
	if calls != 1 {
		t.Fatalf("handler must not run when the inbox fails, got %d calls", calls)
	}
}
