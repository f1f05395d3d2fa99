package notify

import (
	"time"

	"github.com/shopspring/decimal"
)

// AppointmentEvent mirrors the booking service's appointment event payload.
// Only fields used in messages are decoded.
type AppointmentEvent struct {
	Type        string       `json:"type"`
	Appointment Appointment  `json:"appointment"`
	Previous    *Appointment `json:"previous,omitempty"`
	Client      Contact      `json:"client"`
	CommittedAt time.Time    `json:"committed_at"`
}

type Appointment struct {
	ID           string          `json:"id"`
	Number       string          `json:"number"`
	ClientID     string          `json:"client_id"`
	ProviderID   string          `json:"provider_id"`
	ServiceType  string          `json:"service_type"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      time.Time       `json:"end_time"`
	Status       string          `json:"status"`
	Price        decimal.Decimal `json:"price"`
	Cancellation *Cancellation   `json:"cancellation,omitempty"`
}

type Cancellation struct {
	Reason       string          `json:"reason,omitempty"`
	Fee          decimal.Decimal `json:"fee"`
	RefundIssued bool            `json:"refund_issued"`
	Rescheduled  bool            `json:"rescheduled,omitempty"`
}

type Contact struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Channel string `json:"channel"`
}
