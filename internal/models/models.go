package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Mode string

const (
	ModeSolo Mode = "solo"
	ModeTeam Mode = "team"
)

// Raw registration statuses as the backend sends them.
const (
	StatusRegistered      = "registered"
	StatusInvited         = "invited"
	StatusPending         = "pending"
	StatusPendingPayment  = "pending_payment"
	StatusPaid            = "paid"
	StatusSucceeded       = "succeeded"
	StatusCancelledByUser = "cancelled_by_user"
	StatusCancelledAdmin  = "cancelled_admin"
	StatusExpired         = "expired"
	StatusRefunded        = "refunded"
)

// Raw payment statuses.
const (
	PaymentUnknown       = "unknown"
	PaymentPending       = "pending"
	PaymentPaid          = "paid"
	PaymentSucceeded     = "succeeded"
	PaymentFailed        = "failed"
	PaymentCoveredByTeam = "covered_by_team"
	PaymentNotApplicable = "not_applicable"
	PaymentRefunded      = "refunded"
)

// Raw invitation statuses.
const (
	InvitationInvited  = "invited"
	InvitationAccepted = "accepted"
	InvitationDeclined = "declined"
	InvitationRevoked  = "revoked"
	InvitationExpired  = "expired"
)

type Payment struct {
	Status            string `json:"status"`
	Provider          string `json:"provider,omitempty"`
	ExternalPaymentID string `json:"external_payment_id,omitempty"`
}

type Registration struct {
	ID         string   `json:"registration_id"`
	EventID    string   `json:"event_id"`
	EventTitle string   `json:"event_title,omitempty"`
	Mode       Mode     `json:"mode"`
	Status     string   `json:"status"`
	Payment    *Payment `json:"payment,omitempty"`
	RefundFlag bool     `json:"refund_flag"`
	TeamID     string   `json:"team_id,omitempty"`
	FeeCents   int64    `json:"amount_due_cents,omitempty"`
}

// UnmarshalJSON accepts both "registration_id" and "id" because the
// listing endpoints are not consistent about it.
func (r *Registration) UnmarshalJSON(data []byte) error {
	type plain Registration
	aux := struct {
		*plain
		AltID string `json:"id"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = aux.AltID
	}
	if r.Mode == "" {
		if r.TeamID != "" {
			r.Mode = ModeTeam
		} else {
			r.Mode = ModeSolo
		}
	}
	return nil
}

type TeamMember struct {
	RegistrationID string `json:"registration_id"`
	Email          string `json:"email"`
	Status         string `json:"status"`
}

type Team struct {
	ID               string       `json:"team_id"`
	CreatedByEmail   string       `json:"created_by_email"`
	Members          []TeamMember `json:"members"`
	CoursePreference string       `json:"course_preference,omitempty"`
	CookingLocation  string       `json:"cooking_location,omitempty"`
}

type Invitation struct {
	ID             string `json:"id"`
	EventID        string `json:"event_id"`
	EventTitle     string `json:"event_title,omitempty"`
	InvitedEmail   string `json:"invited_email"`
	Status         string `json:"status"`
	RegistrationID string `json:"registration_id,omitempty"`
}

type Event struct {
	ID                   string     `json:"id"`
	Title                string     `json:"title"`
	FeeCents             int64      `json:"fee_cents"`
	RegistrationDeadline *time.Time `json:"registration_deadline,omitempty"`
}

// Profile is the acting account; only the fields the registration core reads.
type Profile struct {
	Email              string `json:"email"`
	KitchenAvailable   bool   `json:"kitchen_available"`
	MainCoursePossible bool   `json:"main_course_possible"`
}

// CanCookMain reports whether the profile declares kitchen and main-course capability.
func (p Profile) CanCookMain() bool {
	return p.KitchenAvailable && p.MainCoursePossible
}

type ProviderCatalog struct {
	Providers []string `json:"providers"`
	Default   string   `json:"default"`
}

// UnmarshalJSON accepts {"providers": [...], "default": "..."} or a bare array.
func (c *ProviderCatalog) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("provider list: %w", err)
		}
		c.Providers = list
		c.Default = ""
		return nil
	}
	type plain ProviderCatalog
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("provider catalog: %w", err)
	}
	*c = ProviderCatalog(p)
	return nil
}

// Normalize lower-cases and de-duplicates providers keeping order, and makes
// sure Default is one of them whenever there is at least one provider.
func (c ProviderCatalog) Normalize() ProviderCatalog {
	out := ProviderCatalog{Providers: make([]string, 0, len(c.Providers))}
	seen := map[string]bool{}
	for _, p := range c.Providers {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out.Providers = append(out.Providers, p)
	}
	def := strings.ToLower(strings.TrimSpace(c.Default))
	if len(out.Providers) > 0 && !seen[def] {
		def = out.Providers[0]
	}
	if len(out.Providers) == 0 {
		def = ""
	}
	out.Default = def
	return out
}

func (c ProviderCatalog) Has(provider string) bool {
	provider = strings.ToLower(strings.TrimSpace(provider))
	for _, p := range c.Providers {
		if p == provider {
			return true
		}
	}
	return false
}

// Clone returns a copy callers may not use to mutate the cached catalog.
func (c ProviderCatalog) Clone() ProviderCatalog {
	return ProviderCatalog{
		Providers: append([]string(nil), c.Providers...),
		Default:   c.Default,
	}
}
