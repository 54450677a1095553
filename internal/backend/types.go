package backend

import (
	"encoding/json"
	"strings"
)

type SoloRequest struct {
	EventID            string `json:"event_id"`
	CoursePreference   string `json:"course_preference,omitempty"`
	KitchenAvailable   bool   `json:"kitchen_available"`
	MainCoursePossible bool   `json:"main_course_possible"`
	DietaryPreference  string `json:"dietary_preference,omitempty"`
}

type PartnerExisting struct {
	Email string `json:"email"`
}

type PartnerExternal struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Diet         string `json:"dietary_preference,omitempty"`
	FieldOfStudy string `json:"field_of_study,omitempty"`
}

type TeamRequest struct {
	EventID          string           `json:"event_id"`
	CookingLocation  string           `json:"cooking_location"`
	CoursePreference string           `json:"course_preference,omitempty"`
	PartnerExisting  *PartnerExisting `json:"partner_existing,omitempty"`
	PartnerExternal  *PartnerExternal `json:"partner_external,omitempty"`
}

type RegistrationResponse struct {
	RegistrationID string `json:"registration_id"`
	TeamID         string `json:"team_id,omitempty"`
	Status         string `json:"status,omitempty"`
	PaymentLink    string `json:"payment_link,omitempty"`
	AmountDueCents *int64 `json:"amount_due_cents,omitempty"`
}

type PaymentRequest struct {
	RegistrationID string `json:"registration_id"`
	Provider       string `json:"provider"`
}

type Link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// NextAction is the envelope telling the client what to do after payment
// creation. Raw keeps the original bytes for provider-native shapes.
type NextAction struct {
	Type         string          `json:"type"`
	URL          string          `json:"url,omitempty"`
	ApprovalLink string          `json:"approval_link,omitempty"`
	OrderID      string          `json:"order_id,omitempty"`
	Links        []Link          `json:"links,omitempty"`
	Instructions json.RawMessage `json:"instructions,omitempty"`
	Raw          json.RawMessage `json:"-"`
}

func (n *NextAction) UnmarshalJSON(data []byte) error {
	type plain NextAction
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*n = NextAction(p)
	n.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Approval returns the link a buyer follows to approve a marketplace order.
func (n NextAction) Approval() string {
	if n.ApprovalLink != "" {
		return n.ApprovalLink
	}
	for _, l := range n.Links {
		if strings.EqualFold(l.Rel, "approve") || strings.EqualFold(l.Rel, "payer-action") {
			return l.Href
		}
	}
	return n.URL
}

type PaymentResponse struct {
	Status       string          `json:"status,omitempty"`
	NextAction   *NextAction     `json:"next_action,omitempty"`
	PaymentLink  string          `json:"payment_link,omitempty"`
	Instructions json.RawMessage `json:"instructions,omitempty"`
	PaymentID    string          `json:"payment_id,omitempty"`
}

// InvitationResponse is returned by accept and revoke calls.
type InvitationResponse struct {
	Status                string `json:"status,omitempty"`
	RegistrationID        string `json:"registration_id,omitempty"`
	PaymentCreateEndpoint string `json:"payment_create_endpoint,omitempty"`
	AmountDueCents        *int64 `json:"amount_due_cents,omitempty"`
}
