package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConsentGeneralTreatment satisfies any service type.
const ConsentGeneralTreatment = "GENERAL_TREATMENT"

// MedicalHistoryMaxAge is how long a medical profile stays fresh.
const MedicalHistoryMaxAge = 6 // months

type MedicalProfile struct {
	SkinType          string        `json:"skin_type,omitempty"`
	Concerns          []string      `json:"concerns,omitempty"`
	Allergies         []string      `json:"allergies,omitempty"`
	Medications       []string      `json:"medications,omitempty"`
	Contraindications []ServiceType `json:"contraindications,omitempty"`
	LastUpdatedAt     time.Time     `json:"last_updated_at"`
}

type ConsentForm struct {
	FormType  string     `json:"form_type"`
	SignedAt  time.Time  `json:"signed_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Covers reports whether the form authorizes serviceType at the given instant.
func (f ConsentForm) Covers(serviceType ServiceType, at time.Time) bool {
	if f.SignedAt.IsZero() || f.SignedAt.After(at) {
		return false
	}
	if f.ExpiresAt != nil && !at.Before(*f.ExpiresAt) {
		return false
	}
	return f.FormType == ConsentGeneralTreatment || f.FormType == string(serviceType)
}

type ReminderChannel string

const (
	ReminderEmail ReminderChannel = "EMAIL"
	ReminderSMS   ReminderChannel = "SMS"
	ReminderNone  ReminderChannel = "NONE"
)

type Preferences struct {
	ReminderChannel     ReminderChannel `json:"reminder_channel"`
	ReminderLeadMinutes int             `json:"reminder_lead_minutes"`
}

type Client struct {
	ID            string          `json:"id"`
	FirstName     string          `json:"first_name"`
	LastName      string          `json:"last_name"`
	Email         string          `json:"email,omitempty"`
	Phone         string          `json:"phone,omitempty"`
	Medical       MedicalProfile  `json:"medical"`
	Consents      []ConsentForm   `json:"consents,omitempty"`
	VisitCount    int             `json:"visit_count"`
	LoyaltyPoints int             `json:"loyalty_points"`
	LifetimeSpend decimal.Decimal `json:"lifetime_spend"`
	Preferences   Preferences     `json:"preferences"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DeletedAt     *time.Time      `json:"deleted_at,omitempty"`
}

func (c Client) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

func (c Client) HasValidConsent(serviceType ServiceType, at time.Time) bool {
	for _, f := range c.Consents {
		if f.Covers(serviceType, at) {
			return true
		}
	}
	return false
}

func (c Client) IsContraindicated(serviceType ServiceType) bool {
	for _, st := range c.Medical.Contraindications {
		if st == serviceType {
			return true
		}
	}
	return false
}

// MedicalHistoryStale reports whether the medical profile has not been
// refreshed within MedicalHistoryMaxAge months of now.
func (c Client) MedicalHistoryStale(now time.Time) bool {
	if c.Medical.LastUpdatedAt.IsZero() {
		return true
	}
	return c.Medical.LastUpdatedAt.Before(now.AddDate(0, -MedicalHistoryMaxAge, 0))
}
