package model

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type ServiceType string

// Shift is a working interval expressed in minutes since local midnight.
type Shift struct {
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

func (s Shift) Valid() bool {
	return s.StartMinute >= 0 && s.EndMinute <= 24*60 && s.StartMinute <= s.EndMinute
}

// On anchors the shift to the calendar day of day in loc.
func (s Shift) On(day time.Time, loc *time.Location) TimeWindow {
	y, m, d := day.In(loc).Date()
	return TimeWindow{
		Start: time.Date(y, m, d, 0, s.StartMinute, 0, 0, loc),
		End:   time.Date(y, m, d, 0, s.EndMinute, 0, 0, loc),
	}
}

type DaySchedule struct {
	IsWorkingDay bool    `json:"is_working_day"`
	Shifts       []Shift `json:"shifts"`
}

// WeeklySchedule is indexed by time.Weekday (Sunday = 0).
type WeeklySchedule [7]DaySchedule

// Validate checks that every shift is well formed and that shifts within a
// day are ordered and do not overlap.
func (w WeeklySchedule) Validate() error {
	for wd, day := range w {
		shifts := append([]Shift(nil), day.Shifts...)
		sort.Slice(shifts, func(i, j int) bool { return shifts[i].StartMinute < shifts[j].StartMinute })
		for i, s := range shifts {
			if !s.Valid() {
				return fmt.Errorf("%s: invalid shift %d-%d", time.Weekday(wd), s.StartMinute, s.EndMinute)
			}
			if i > 0 && s.StartMinute < shifts[i-1].EndMinute {
				return fmt.Errorf("%s: overlapping shifts", time.Weekday(wd))
			}
		}
	}
	return nil
}

type ServiceOffering struct {
	ServiceType            ServiceType     `json:"service_type"`
	DurationMinutes        int             `json:"duration_minutes"`
	Price                  decimal.Decimal `json:"price"`
	Capacity               int             `json:"capacity"`
	RequiredCertifications []string        `json:"required_certifications,omitempty"`
}

// EffectiveCapacity defaults an unset capacity to 1 (exclusive).
func (o ServiceOffering) EffectiveCapacity() int {
	if o.Capacity <= 0 {
		return 1
	}
	return o.Capacity
}

func (o ServiceOffering) Duration() time.Duration {
	return time.Duration(o.DurationMinutes) * time.Minute
}

func (o ServiceOffering) RequiresLicense() bool {
	return len(o.RequiredCertifications) > 0
}

type LicenseStatus string

const (
	LicenseActive    LicenseStatus = "ACTIVE"
	LicenseSuspended LicenseStatus = "SUSPENDED"
	LicenseExpired   LicenseStatus = "EXPIRED"
	LicensePending   LicenseStatus = "PENDING"
)

type License struct {
	State              string        `json:"state"`
	Number             string        `json:"number,omitempty"`
	AuthorizedServices []ServiceType `json:"authorized_services"`
	ExpiresAt          time.Time     `json:"expires_at"`
	Status             LicenseStatus `json:"status"`
}

// Authorizes reports whether the license permits serviceType in state at the
// given instant. Only ACTIVE, unexpired licenses authorize anything.
func (l License) Authorizes(serviceType ServiceType, state string, at time.Time) bool {
	if l.Status != LicenseActive || !at.Before(l.ExpiresAt) || l.State != state {
		return false
	}
	for _, st := range l.AuthorizedServices {
		if st == serviceType {
			return true
		}
	}
	return false
}

type Provider struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Email         string            `json:"email,omitempty"`
	Schedule      WeeklySchedule    `json:"schedule"`
	Offerings     []ServiceOffering `json:"offerings"`
	Licenses      []License         `json:"licenses,omitempty"`
	PracticeState string            `json:"practice_state,omitempty"`
	BufferMinutes int               `json:"buffer_minutes"`
	Timezone      string            `json:"timezone"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	DeletedAt     *time.Time        `json:"deleted_at,omitempty"`
}

// Location resolves the provider timezone, falling back to UTC.
func (p Provider) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (p Provider) Buffer() time.Duration {
	return time.Duration(p.BufferMinutes) * time.Minute
}

func (p Provider) Offering(serviceType ServiceType) (ServiceOffering, bool) {
	for _, o := range p.Offerings {
		if o.ServiceType == serviceType {
			return o, true
		}
	}
	return ServiceOffering{}, false
}

// IsAuthorized reports whether the provider may perform the offering at the
// given instant in their practice state.
func (p Provider) IsAuthorized(o ServiceOffering, at time.Time) bool {
	if !o.RequiresLicense() {
		return true
	}
	for _, l := range p.Licenses {
		if l.Authorizes(o.ServiceType, p.PracticeState, at) {
			return true
		}
	}
	return false
}
