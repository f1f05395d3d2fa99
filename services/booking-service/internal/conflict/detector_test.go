package conflict

import (
	"context"
	"testing"
	"time"

	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/model"
)

type fakeReader struct {
	appointments []model.Appointment
	exceptions   []model.AvailabilityException
}

func (f *fakeReader) ProviderAppointments(_ context.Context, providerID string, start, end time.Time) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range f.appointments {
		if a.ProviderID == providerID && model.Overlaps(a.StartTime, a.EndTime, start, end) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeReader) ClientAppointments(_ context.Context, clientID string, start, end time.Time) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range f.appointments {
		if a.ClientID == clientID && model.Overlaps(a.StartTime, a.EndTime, start, end) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeReader) Exceptions(_ context.Context, providerID string, _, _ time.Time) ([]model.AvailabilityException, error) {
	var out []model.AvailabilityException
	for _, e := range f.exceptions {
		if e.ProviderID == providerID {
			out = append(out, e)
		}
	}
	return out, nil
}

var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func testProvider(capacity int) model.Provider {
	var w model.WeeklySchedule
	for d := time.Monday; d <= time.Friday; d++ {
		w[d] = model.DaySchedule{IsWorkingDay: true, Shifts: []model.Shift{{StartMinute: 9 * 60, EndMinute: 17 * 60}}}
	}
	return model.Provider{
		ID:       "p1",
		Schedule: w,
		Offerings: []model.ServiceOffering{
			{ServiceType: "FACIAL", DurationMinutes: 60, Capacity: capacity},
			{ServiceType: "YOGA", DurationMinutes: 60, Capacity: 3},
		},
	}
}

func at(h int) model.TimeWindow {
	return model.TimeWindow{Start: monday.Add(time.Duration(h) * time.Hour), End: monday.Add(time.Duration(h+1) * time.Hour)}
}

func appt(id, client string, st model.ServiceType, w model.TimeWindow, status model.Status) model.Appointment {
	return model.Appointment{ID: id, Number: "APT-" + id, ProviderID: "p1", ClientID: client, ServiceType: st, StartTime: w.Start, EndTime: w.End, Status: status}
}

func reasons(r Result) []Reason {
	out := make([]Reason, 0, len(r.Conflicts))
	for _, c := range r.Conflicts {
		out = append(out, c.Reason)
	}
	return out
}

func TestCheck_NoConflict(t *testing.T) {
	res, err := NewDetector().Check(context.Background(), &fakeReader{}, testProvider(1), Request{ClientID: "c1", ServiceType: "FACIAL", Window: at(10)})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.HasConflict {
		t.Fatalf("expected no conflict, got %v", reasons(res))
	}
}

func TestCheck_ProviderConflictAndCapacity(t *testing.T) {
	r := &fakeReader{appointments: []model.Appointment{appt("a1", "c2", "FACIAL", at(10), model.StatusScheduled)}}
	res, err := NewDetector().Check(context.Background(), r, testProvider(1), Request{ClientID: "c1", ServiceType: "FACIAL", Window: at(10)})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	got := reasons(res)
	if len(got) != 2 || got[0] != ReasonProviderConflict || got[1] != ReasonCapacityExceeded {
		t.Fatalf("unexpected reasons %v", got)
	}
	if got[0].Code() != model.CodeProviderUnavailable {
		t.Fatalf("unexpected code %s", got[0].Code())
	}
}

func TestCheck_TerminalAndExcludedIgnored(t *testing.T) {
	r := &fakeReader{appointments: []model.Appointment{
		appt("a1", "c2", "FACIAL", at(10), model.StatusCancelled),
		appt("a2", "c1", "FACIAL", at(10), model.StatusScheduled),
	}}
	res, err := NewDetector().Check(context.Background(), r, testProvider(1), Request{ClientID: "c1", ServiceType: "FACIAL", Window: at(10), ExcludeAppointmentID: "a2"})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.HasConflict {
		t.Fatalf("expected no conflict, got %v", reasons(res))
	}
}

func TestCheck_ClientConflict(t *testing.T) {
	r := &fakeReader{appointments: []model.Appointment{
		{ID: "x", ProviderID: "p2", ClientID: "c1", StartTime: at(10).Start.Add(30 * time.Minute), EndTime: at(11).Start.Add(30 * time.Minute), Status: model.StatusConfirmed},
	}}
	res, err := NewDetector().Check(context.Background(), r, testProvider(1), Request{ClientID: "c1", ServiceType: "FACIAL", Window: at(10)})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if got := reasons(res); len(got) != 1 || got[0] != ReasonClientConflict {
		t.Fatalf("unexpected reasons %v", got)
	}
}

func TestCheck_GroupCapacity(t *testing.T) {
	r := &fakeReader{appointments: []model.Appointment{
		appt("a1", "c2", "YOGA", at(10), model.StatusScheduled),
		appt("a2", "c3", "YOGA", at(10), model.StatusScheduled),
	}}
	d := NewDetector()
	res, err := d.Check(context.Background(), r, testProvider(1), Request{ClientID: "c4", ServiceType: "YOGA", Window: at(10)})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.HasConflict || res.Booked != 2 || res.Capacity != 3 {
		t.Fatalf("third seat should be free: %+v", res)
	}

	r.appointments = append(r.appointments, appt("a3", "c4", "YOGA", at(10), model.StatusScheduled))
	res, err = d.Check(context.Background(), r, testProvider(1), Request{ClientID: "c5", ServiceType: "YOGA", Window: at(10)})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if got := reasons(res); len(got) != 1 || got[0] != ReasonCapacityExceeded {
		t.Fatalf("unexpected reasons %v", got)
	}
}

func TestCheck_BlockedTimeInsideWorkingHours(t *testing.T) {
	r := &fakeReader{exceptions: []model.AvailabilityException{{
		ID: "e1", ProviderID: "p1", Type: model.ExceptionBlockedTime, Approval: model.ApprovalApproved,
		StartTime: at(12).Start, EndTime: at(13).Start,
	}}}
	res, err := NewDetector().Check(context.Background(), r, testProvider(1), Request{ClientID: "c1", ServiceType: "FACIAL", Window: at(12)})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	got := reasons(res)
	if len(got) != 1 || got[0] != ReasonBlockedTime || res.Conflicts[0].ExceptionID != "e1" {
		t.Fatalf("blocked time should conflict even within working hours: %v", got)
	}
}

func TestCheck_RecurringBlock(t *testing.T) {
	r := &fakeReader{exceptions: []model.AvailabilityException{{
		ID: "lunch", ProviderID: "p1", Type: model.ExceptionUnavailable, Approval: model.ApprovalApproved,
		StartTime: at(12).Start.AddDate(0, 0, -7), EndTime: at(13).Start.AddDate(0, 0, -7),
		Recurrence: &model.RecurrenceRule{Frequency: model.FrequencyWeekly, Interval: 1},
	}}}
	res, err := NewDetector().Check(context.Background(), r, testProvider(1), Request{ClientID: "c1", ServiceType: "FACIAL", Window: at(12)})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if got := reasons(res); len(got) != 1 || got[0] != ReasonBlockedTime {
		t.Fatalf("unexpected reasons %v", got)
	}
}

func TestCheck_OutsideHoursAndPermit(t *testing.T) {
	r := &fakeReader{}
	d := NewDetector()
	res, err := d.Check(context.Background(), r, testProvider(1), Request{ClientID: "c1", ServiceType: "FACIAL", Window: at(18)})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if got := reasons(res); len(got) != 1 || got[0] != ReasonOutsideWorkingHours {
		t.Fatalf("unexpected reasons %v", got)
	}

	r.exceptions = []model.AvailabilityException{{
		ID: "late", ProviderID: "p1", Type: model.ExceptionSpecialHours, Approval: model.ApprovalApproved,
		StartTime: at(17).Start, EndTime: at(20).Start,
	}}
	res, err = d.Check(context.Background(), r, testProvider(1), Request{ClientID: "c1", ServiceType: "FACIAL", Window: at(18)})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.HasConflict {
		t.Fatalf("special hours should permit: %v", reasons(res))
	}

	r.exceptions[0].Approval = model.ApprovalPending
	res, _ = d.Check(context.Background(), r, testProvider(1), Request{ClientID: "c1", ServiceType: "FACIAL", Window: at(18)})
	if !res.HasConflict {
		t.Fatalf("pending special hours should not permit")
	}
}

func TestCheck_GroupSessionOverridesCapacity(t *testing.T) {
	r := &fakeReader{
		appointments: []model.Appointment{appt("a1", "c2", "FACIAL", at(10), model.StatusScheduled)},
		exceptions: []model.AvailabilityException{{
			ID: "g", ProviderID: "p1", Type: model.ExceptionGroupSession, Approval: model.ApprovalApproved,
			StartTime: at(10).Start, EndTime: at(11).Start, Capacity: 2,
		}},
	}
	res, err := NewDetector().Check(context.Background(), r, testProvider(1), Request{ClientID: "c1", ServiceType: "FACIAL", Window: at(10)})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.HasConflict || res.Capacity != 2 {
		t.Fatalf("group session should allow second seat: %+v", res)
	}
}

func TestCheckMany(t *testing.T) {
	r := &fakeReader{appointments: []model.Appointment{appt("a1", "c2", "FACIAL", at(10), model.StatusScheduled)}}
	windows := []model.TimeWindow{at(9), at(10), at(11)}
	got, err := NewDetector().CheckMany(context.Background(), r, testProvider(1), "", "FACIAL", windows)
	if err != nil {
		t.Fatalf("CheckMany: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	if got[at(9).Key()].HasConflict || got[at(11).Key()].HasConflict {
		t.Fatalf("adjacent slots should be free")
	}
	if !got[at(10).Key()].HasConflict || got[at(10).Key()].Booked != 1 {
		t.Fatalf("10:00 should be booked: %+v", got[at(10).Key()])
	}
}
