package booking

import (
	"context"
	"testing"
	"time"

	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/model"
)

func TestException_BlocksAndRemoves(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := h.events.Schedules.Subscribe(events.ScheduleForProvider("p1"))
	defer sub.Close()

	start, end := at(1, 12)
	res, err := h.engine.AddException(ctx, ExceptionRequest{
		ProviderID: "p1", Type: model.ExceptionBlockedTime, StartTime: start, EndTime: end, Reason: "lunch", RequestedBy: model.ActorProvider,
	})
	if err != nil {
		t.Fatalf("AddException: %v", err)
	}
	if !res.Success || res.Exception.Approval != model.ApprovalApproved {
		t.Fatalf("unexpected result %+v", res)
	}

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	evt, err := sub.Next(waitCtx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if evt.Type != events.ScheduleExceptionAdded || len(evt.AffectedSlots) != 1 {
		t.Fatalf("unexpected schedule event %+v", evt)
	}

	expectCode(t, h.book(t, "c1", "p1", "FACIAL", 1, 12), model.CodeBlockedTime)

	rm, err := h.engine.RemoveException(ctx, "p1", res.Exception.ID)
	if err != nil {
		t.Fatalf("RemoveException: %v", err)
	}
	if !rm.Success || rm.Exception.DeletedAt == nil {
		t.Fatalf("exception not soft-deleted: %+v", rm)
	}
	mustSucceed(t, h.book(t, "c1", "p1", "FACIAL", 1, 12))

	again, err := h.engine.RemoveException(ctx, "p1", res.Exception.ID)
	if err != nil {
		t.Fatalf("RemoveException: %v", err)
	}
	if again.Success || again.Errors[0].Code != model.CodeExceptionNotFound {
		t.Fatalf("expected EXCEPTION_NOT_FOUND, got %+v", again)
	}
}

func TestException_WarnsAboutOverlap(t *testing.T) {
	h := newHarness(t)
	mustSucceed(t, h.book(t, "c1", "p1", "FACIAL", 1, 10))
	start, _ := at(1, 9)
	res, err := h.engine.AddException(context.Background(), ExceptionRequest{
		ProviderID: "p1", Type: model.ExceptionVacation, StartTime: start, EndTime: start.Add(8 * time.Hour),
	})
	if err != nil {
		t.Fatalf("AddException: %v", err)
	}
	if !res.Success || len(res.Warnings) != 1 {
		t.Fatalf("expected overlap warning, got %+v", res)
	}
}

func TestException_ExtraHoursNeedApproval(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	start, _ := at(5, 10) // Saturday
	res, err := h.engine.AddException(ctx, ExceptionRequest{
		ProviderID: "p1", Type: model.ExceptionSpecialHours, StartTime: start, EndTime: start.Add(4 * time.Hour), RequestedBy: model.ActorProvider,
	})
	if err != nil {
		t.Fatalf("AddException: %v", err)
	}
	if res.Exception.Approval != model.ApprovalPending {
		t.Fatalf("expected pending approval, got %s", res.Exception.Approval)
	}
	expectCode(t, h.book(t, "c1", "p1", "FACIAL", 5, 10), model.CodeOutsideWorkingHours)

	ap, err := h.engine.SetExceptionApproval(ctx, "p1", res.Exception.ID, model.ApprovalApproved)
	if err != nil || !ap.Success {
		t.Fatalf("SetExceptionApproval: %v %+v", err, ap)
	}
	mustSucceed(t, h.book(t, "c1", "p1", "FACIAL", 5, 10))
}

func TestException_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	start, end := at(1, 12)

	cases := []ExceptionRequest{
		{ProviderID: "p1", Type: "HOLIDAY", StartTime: start, EndTime: end},
		{ProviderID: "p1", Type: model.ExceptionBlockedTime, StartTime: end, EndTime: start},
		{ProviderID: "p1", Type: model.ExceptionGroupSession, StartTime: start, EndTime: end, Capacity: 1},
		{ProviderID: "p1", Type: model.ExceptionBlockedTime, StartTime: start, EndTime: end, Recurrence: &model.RecurrenceRule{Frequency: "HOURLY"}},
	}
	for i, req := range cases {
		res, err := h.engine.AddException(ctx, req)
		if err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		if res.Success {
			t.Fatalf("case %d: expected validation failure", i)
		}
	}

	res, err := h.engine.AddException(ctx, ExceptionRequest{ProviderID: "nope", Type: model.ExceptionBlockedTime, StartTime: start, EndTime: end})
	if err != nil {
		t.Fatalf("AddException: %v", err)
	}
	if res.Success || res.Errors[0].Code != model.CodeProviderNotFound {
		t.Fatalf("expected PROVIDER_NOT_FOUND, got %+v", res)
	}
}
