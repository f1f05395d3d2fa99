package model

import "time"

type ExceptionType string

const (
	ExceptionBlockedTime  ExceptionType = "BLOCKED_TIME"
	ExceptionVacation     ExceptionType = "VACATION"
	ExceptionUnavailable  ExceptionType = "UNAVAILABLE"
	ExceptionSpecialHours ExceptionType = "SPECIAL_HOURS"
	ExceptionAvailable    ExceptionType = "AVAILABLE"
	ExceptionGroupSession ExceptionType = "GROUP_SESSION"
)

func (t ExceptionType) Valid() bool {
	return t.Blocks() || t.Permits()
}

// Blocks reports whether the type forbids appointments inside its window.
func (t ExceptionType) Blocks() bool {
	switch t {
	case ExceptionBlockedTime, ExceptionVacation, ExceptionUnavailable:
		return true
	}
	return false
}

// Permits reports whether the type opens time outside the weekly schedule.
func (t ExceptionType) Permits() bool {
	switch t {
	case ExceptionSpecialHours, ExceptionAvailable, ExceptionGroupSession:
		return true
	}
	return false
}

type Frequency string

const (
	FrequencyDaily   Frequency = "DAILY"
	FrequencyWeekly  Frequency = "WEEKLY"
	FrequencyMonthly Frequency = "MONTHLY"
)

type RecurrenceRule struct {
	Frequency Frequency  `json:"frequency"`
	Interval  int        `json:"interval"`
	Count     int        `json:"count,omitempty"`
	Until     *time.Time `json:"until,omitempty"`
}

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

type AvailabilityException struct {
	ID         string          `json:"id"`
	ProviderID string          `json:"provider_id"`
	Type       ExceptionType   `json:"type"`
	StartTime  time.Time       `json:"start_time"`
	EndTime    time.Time       `json:"end_time"`
	Recurrence *RecurrenceRule `json:"recurrence,omitempty"`
	Capacity   int             `json:"capacity,omitempty"`
	Approval   ApprovalStatus  `json:"approval_status"`
	Reason     string          `json:"reason,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	DeletedAt  *time.Time      `json:"deleted_at,omitempty"`
}

func (e AvailabilityException) Window() TimeWindow {
	return TimeWindow{Start: e.StartTime, End: e.EndTime}
}

// InEffect reports whether the exception participates in conflict checks.
// Blocking exceptions apply unless rejected; permitting ones only once approved.
func (e AvailabilityException) InEffect() bool {
	if e.DeletedAt != nil {
		return false
	}
	switch {
	case e.Type.Blocks():
		return e.Approval != ApprovalRejected
	case e.Type.Permits():
		return e.Approval == ApprovalApproved
	}
	return false
}
