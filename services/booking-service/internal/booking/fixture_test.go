package booking

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/storage"
	"github.com/shopspring/decimal"
)

// Monday 2 March 2026, 08:00 UTC.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration // added after every read
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type harness struct {
	engine *Engine
	store  *storage.Memory
	clock  *fakeClock
	events *events.Broadcaster
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemory(5 * time.Second)
	clock := &fakeClock{now: monday.Add(8 * time.Hour)}
	bc := events.NewBroadcaster(logger, 256)
	h := &harness{
		engine: New(store, bc, logger, DefaultConfig(), WithClock(clock.Now)),
		store:  store,
		clock:  clock,
		events: bc,
	}
	h.addProvider(t, "p1")
	h.addProvider(t, "p2")
	h.addClient(t, "c1", nil)
	return h
}

func weekdays9to5() model.WeeklySchedule {
	var w model.WeeklySchedule
	for d := time.Monday; d <= time.Friday; d++ {
		w[d] = model.DaySchedule{IsWorkingDay: true, Shifts: []model.Shift{{StartMinute: 9 * 60, EndMinute: 17 * 60}}}
	}
	return w
}

func (h *harness) addProvider(t *testing.T, id string) {
	t.Helper()
	err := h.store.SaveProvider(context.Background(), model.Provider{
		ID:            id,
		Name:          "Provider " + id,
		Schedule:      weekdays9to5(),
		PracticeState: "CA",
		Timezone:      "UTC",
		Offerings: []model.ServiceOffering{
			{ServiceType: "FACIAL", DurationMinutes: 60, Price: decimal.NewFromInt(100), Capacity: 1},
			{ServiceType: "YOGA", DurationMinutes: 60, Price: decimal.NewFromInt(20), Capacity: 3},
			{ServiceType: "BOTOX", DurationMinutes: 30, Price: decimal.NewFromInt(400), RequiredCertifications: []string{"RN"}},
		},
	})
	if err != nil {
		t.Fatalf("SaveProvider: %v", err)
	}
}

func (h *harness) addClient(t *testing.T, id string, mutate func(*model.Client)) {
	t.Helper()
	c := model.Client{
		ID:        id,
		FirstName: "Client",
		LastName:  id,
		Email:     id + "@example.com",
		Medical:   model.MedicalProfile{LastUpdatedAt: monday.AddDate(0, -1, 0)},
		Consents: []model.ConsentForm{
			{FormType: model.ConsentGeneralTreatment, SignedAt: monday.AddDate(0, -1, 0)},
		},
		Preferences: model.Preferences{ReminderChannel: model.ReminderEmail},
	}
	if mutate != nil {
		mutate(&c)
	}
	if err := h.store.SaveClient(context.Background(), c); err != nil {
		t.Fatalf("SaveClient: %v", err)
	}
}

// at returns 1h window on the given day offset from Monday at hour h.
func at(day, hour int) (time.Time, time.Time) {
	start := monday.AddDate(0, 0, day).Add(time.Duration(hour) * time.Hour)
	return start, start.Add(time.Hour)
}

func (h *harness) book(t *testing.T, clientID, providerID string, st model.ServiceType, day, hour int) Result {
	t.Helper()
	start, end := at(day, hour)
	res, err := h.engine.Book(context.Background(), BookRequest{
		ClientID: clientID, ProviderID: providerID, ServiceType: st, StartTime: start, EndTime: end, BookedBy: model.ActorClient,
	})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	return res
}

func mustSucceed(t *testing.T, res Result) model.Appointment {
	t.Helper()
	if !res.Success || res.Appointment == nil {
		t.Fatalf("expected success, got errors %+v", res.Errors)
	}
	return *res.Appointment
}

func expectCode(t *testing.T, res Result, code model.ErrorCode) {
	t.Helper()
	if res.Success {
		t.Fatalf("expected %s, got success", code)
	}
	if res.FirstCode() != code {
		t.Fatalf("expected first error %s, got %+v", code, res.Errors)
	}
}

func hasCode(res Result, code model.ErrorCode) bool {
	for _, e := range res.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}
