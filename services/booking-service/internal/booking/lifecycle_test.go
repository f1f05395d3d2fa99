package booking

import (
	"context"
	"testing"
	"time"

	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/storage"
	"github.com/shopspring/decimal"
)

func TestLifecycle_FullVisit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := mustSucceed(t, h.book(t, "c1", "p1", "FACIAL", 1, 10))

	steps := []func() (Result, error){
		func() (Result, error) { return h.engine.Confirm(ctx, a.ID) },
		func() (Result, error) { return h.engine.CheckIn(ctx, a.ID) },
		func() (Result, error) { return h.engine.Start(ctx, a.ID) },
		func() (Result, error) {
			return h.engine.Complete(ctx, CompleteRequest{AppointmentID: a.ID, ProductsUsed: []model.ProductUsage{{ProductID: "serum", Quantity: 1}}})
		},
	}
	want := []model.Status{model.StatusConfirmed, model.StatusCheckedIn, model.StatusInProgress, model.StatusCompleted}
	for i, step := range steps {
		res, err := step()
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if got := mustSucceed(t, res); got.Status != want[i] {
			t.Fatalf("step %d: expected %s, got %s", i, want[i], got.Status)
		}
	}

	done, err := h.engine.GetAppointment(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAppointment: %v", err)
	}
	if done.ConfirmedAt == nil || done.CheckedInAt == nil || done.StartedAt == nil || done.CompletedAt == nil || len(done.ProductsUsed) != 1 {
		t.Fatalf("timestamps or products missing: %+v", done)
	}

	_ = h.store.Snapshot(ctx, func(ctx context.Context, tx storage.ReadTx) error {
		c, err := tx.Client(ctx, "c1")
		if err != nil {
			t.Fatalf("Client: %v", err)
		}
		if c.VisitCount != 1 || !c.LifetimeSpend.Equal(decimal.NewFromInt(100)) || c.LoyaltyPoints != 100 {
			t.Fatalf("client counters not updated: %+v", c)
		}
		return nil
	})

	res, err := h.engine.Cancel(ctx, CancelRequest{AppointmentID: a.ID})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	expectCode(t, res, model.CodeInvalidStatusTransition)
}

func TestLifecycle_InvalidTransitions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := mustSucceed(t, h.book(t, "c1", "p1", "FACIAL", 1, 10))

	res, err := h.engine.Complete(ctx, CompleteRequest{AppointmentID: a.ID})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	expectCode(t, res, model.CodeInvalidStatusTransition)

	res, err = h.engine.Start(ctx, a.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	expectCode(t, res, model.CodeInvalidStatusTransition)

	res, err = h.engine.MarkNoShow(ctx, a.ID)
	if err != nil {
		t.Fatalf("MarkNoShow: %v", err)
	}
	expectCode(t, res, model.CodeInvalidStatusTransition)
}

func TestSweepNoShows(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addClient(t, "c2", nil)
	missed := mustSucceed(t, h.book(t, "c1", "p1", "FACIAL", 1, 10))
	arrived := mustSucceed(t, h.book(t, "c2", "p1", "FACIAL", 1, 11))
	later := mustSucceed(t, h.book(t, "c1", "p1", "FACIAL", 1, 14))

	h.clock.Set(arrived.StartTime.Add(-5 * time.Minute))
	if _, err := h.engine.CheckIn(ctx, arrived.ID); err != nil {
		t.Fatalf("CheckIn: %v", err)
	}

	h.clock.Set(arrived.StartTime.Add(45 * time.Minute))
	n, err := h.engine.SweepNoShows(ctx)
	if err != nil {
		t.Fatalf("SweepNoShows: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 no-show, got %d", n)
	}
	for id, want := range map[string]model.Status{
		missed.ID:  model.StatusNoShow,
		arrived.ID: model.StatusCheckedIn,
		later.ID:   model.StatusScheduled,
	} {
		got, err := h.engine.GetAppointment(ctx, id)
		if err != nil {
			t.Fatalf("GetAppointment: %v", err)
		}
		if got.Status != want {
			t.Fatalf("appointment %s: expected %s, got %s", got.Number, want, got.Status)
		}
	}
}
