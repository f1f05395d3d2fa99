package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusScheduled  Status = "SCHEDULED"
	StatusConfirmed  Status = "CONFIRMED"
	StatusCheckedIn  Status = "CHECKED_IN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusNoShow     Status = "NO_SHOW"
)

// TerminalStatuses never block time and never transition again.
var TerminalStatuses = []Status{StatusCompleted, StatusCancelled, StatusNoShow}

func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCheckedIn, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusScheduled:  {StatusConfirmed, StatusCheckedIn, StatusCancelled, StatusNoShow},
	StatusConfirmed:  {StatusCheckedIn, StatusCancelled, StatusNoShow},
	StatusCheckedIn:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted},
}

// CanTransition reports whether the lifecycle permits moving from -> to.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Actor string

const (
	ActorClient   Actor = "CLIENT"
	ActorProvider Actor = "PROVIDER"
	ActorAdmin    Actor = "ADMIN"
	ActorSystem   Actor = "SYSTEM"
)

func (a Actor) Valid() bool {
	switch a {
	case ActorClient, ActorProvider, ActorAdmin, ActorSystem:
		return true
	}
	return false
}

type Cancellation struct {
	CancelledAt  time.Time       `json:"cancelled_at"`
	CancelledBy  Actor           `json:"cancelled_by"`
	Reason       string          `json:"reason,omitempty"`
	Fee          decimal.Decimal `json:"fee"`
	RefundIssued bool            `json:"refund_issued"`
	Rescheduled  bool            `json:"rescheduled,omitempty"`
}

type RescheduleRecord struct {
	FromAppointmentID string    `json:"from_appointment_id"`
	FromStart         time.Time `json:"from_start"`
	FromEnd           time.Time `json:"from_end"`
	ToStart           time.Time `json:"to_start"`
	ToEnd             time.Time `json:"to_end"`
	RescheduledBy     Actor     `json:"rescheduled_by"`
	RescheduledAt     time.Time `json:"rescheduled_at"`
	Reason            string    `json:"reason,omitempty"`
}

type ProductUsage struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	Quantity  int    `json:"quantity"`
}

type Appointment struct {
	ID                 string             `json:"id"`
	Number             string             `json:"number"`
	ClientID           string             `json:"client_id"`
	ProviderID         string             `json:"provider_id"`
	ServiceType        ServiceType        `json:"service_type"`
	StartTime          time.Time          `json:"start_time"`
	EndTime            time.Time          `json:"end_time"`
	DurationMinutes    int                `json:"duration_minutes"`
	DurationOverridden bool               `json:"duration_overridden,omitempty"`
	Status             Status             `json:"status"`
	Price              decimal.Decimal    `json:"price"`
	Notes              string             `json:"notes,omitempty"`
	RequestedProducts  []string           `json:"requested_products,omitempty"`
	ProductsUsed       []ProductUsage     `json:"products_used,omitempty"`
	Cancellation       *Cancellation      `json:"cancellation,omitempty"`
	RescheduleCount    int                `json:"reschedule_count"`
	RescheduleHistory  []RescheduleRecord `json:"reschedule_history,omitempty"`
	RescheduledFromID  string             `json:"rescheduled_from_id,omitempty"`
	RescheduledToID    string             `json:"rescheduled_to_id,omitempty"`
	ConfirmedAt        *time.Time         `json:"confirmed_at,omitempty"`
	CheckedInAt        *time.Time         `json:"checked_in_at,omitempty"`
	StartedAt          *time.Time         `json:"started_at,omitempty"`
	CompletedAt        *time.Time         `json:"completed_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
	DeletedAt          *time.Time         `json:"deleted_at,omitempty"`
}

func (a Appointment) Window() TimeWindow {
	return TimeWindow{Start: a.StartTime, End: a.EndTime}
}

// Blocking reports whether the appointment occupies provider and client time.
func (a Appointment) Blocking() bool {
	return !a.Status.IsTerminal() && a.DeletedAt == nil
}
