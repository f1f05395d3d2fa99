package booking

import (
	"context"
	"errors"
	"testing"

	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/model"
	"github.com/shopspring/decimal"
)

func TestSaveProviderValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	overlapping := weekdays9to5()
	overlapping[1].Shifts = append(overlapping[1].Shifts, model.Shift{StartMinute: 16 * 60, EndMinute: 18 * 60})

	bad := []model.Provider{
		{Name: "no id"},
		{ID: "p9", Name: "tz", Timezone: "Mars/Olympus"},
		{ID: "p9", Name: "shifts", Schedule: overlapping},
		{ID: "p9", Name: "dup", Offerings: []model.ServiceOffering{
			{ServiceType: "FACIAL", DurationMinutes: 60},
			{ServiceType: "FACIAL", DurationMinutes: 30},
		}},
		{ID: "p9", Name: "price", Offerings: []model.ServiceOffering{{ServiceType: "FACIAL", DurationMinutes: 60, Price: decimal.NewFromInt(-1)}}},
	}
	for _, p := range bad {
		if err := h.engine.SaveProvider(ctx, p); !errors.Is(err, ErrInvalidRecord) {
			t.Fatalf("%s: expected ErrInvalidRecord, got %v", p.Name, err)
		}
	}

	ok := model.Provider{ID: "p9", Name: "Sam", Timezone: "America/New_York", Schedule: weekdays9to5(),
		Offerings: []model.ServiceOffering{{ServiceType: "FACIAL", DurationMinutes: 45, Price: decimal.NewFromInt(80)}}}
	if err := h.engine.SaveProvider(ctx, ok); err != nil {
		t.Fatalf("SaveProvider: %v", err)
	}
	if err := h.engine.SaveClient(ctx, model.Client{}); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord for client without id, got %v", err)
	}
}
