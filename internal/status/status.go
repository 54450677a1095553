// Package status turns the raw registration, payment and invitation enums
// the backend sends into the single badge every screen renders.
package status

import (
	"dinnerhop-bot/internal/models"
	"dinnerhop-bot/internal/util"
)

type Tone string

const (
	ToneNeutral Tone = "neutral"
	ToneSuccess Tone = "success"
	ToneDanger  Tone = "danger"
	ToneInfo    Tone = "info"
)

type Canonical struct {
	Label         string
	Tone          Tone
	IsCancelled   bool
	IsPaid        bool
	IsInvited     bool
	RefundPending bool
}

func (c Canonical) String() string {
	switch c.Tone {
	case ToneSuccess:
		return "✅ " + c.Label
	case ToneDanger:
		return "❌ " + c.Label
	case ToneInfo:
		return "✉️ " + c.Label
	default:
		return c.Label
	}
}

var cancelledLabels = map[string]string{
	models.StatusCancelledByUser: "Cancelled (you)",
	models.StatusCancelledAdmin:  "Cancelled (organizer)",
	models.StatusExpired:         "Expired",
	models.StatusRefunded:        "Refunded",
}

var knownStatuses = map[string]bool{
	models.StatusRegistered:     true,
	models.StatusPendingPayment: true,
}

// Classify is deterministic and side-effect free. Invited wins over any
// payment field on the same record, and cancellation wins over payment
// success because a record can be marked paid before a later cancellation
// or refund propagates.
func Classify(reg models.Registration) Canonical {
	st := util.Lower(reg.Status)
	pay := ""
	if reg.Payment != nil {
		pay = util.Lower(reg.Payment.Status)
	}

	if st == models.StatusInvited || st == models.StatusPending {
		return Canonical{Label: "Invited", Tone: ToneInfo, IsInvited: true}
	}

	refunded := st == models.StatusRefunded || pay == models.PaymentRefunded
	if label, ok := cancelledLabels[st]; ok || refunded {
		if refunded {
			label = "Refunded"
		}
		return Canonical{
			Label:       label,
			Tone:        ToneDanger,
			IsCancelled: true,
			// refund already applied, nothing left pending
			RefundPending: reg.RefundFlag && !refunded,
		}
	}

	if pay == models.PaymentPaid || pay == models.PaymentSucceeded ||
		st == models.StatusPaid || st == models.StatusSucceeded {
		return Canonical{Label: "Paid", Tone: ToneSuccess, IsPaid: true, RefundPending: reg.RefundFlag}
	}

	if st != "" && !knownStatuses[st] {
		// unknown backend states are shown verbatim
		return Canonical{Label: reg.Status, Tone: ToneNeutral, RefundPending: reg.RefundFlag}
	}

	return Canonical{Label: "registered", Tone: ToneNeutral, RefundPending: reg.RefundFlag}
}

// Terminal reports whether no further user transition is possible.
func Terminal(reg models.Registration) bool {
	return Classify(reg).IsCancelled
}

// AwaitingPayment reports whether a payment may still be started for reg.
func AwaitingPayment(reg models.Registration) bool {
	c := Classify(reg)
	if c.IsCancelled || c.IsPaid || c.IsInvited {
		return false
	}
	if reg.Payment != nil {
		switch util.Lower(reg.Payment.Status) {
		case models.PaymentCoveredByTeam, models.PaymentNotApplicable:
			return false
		}
	}
	return util.Lower(reg.Status) == models.StatusPendingPayment ||
		(reg.Payment != nil && (util.Lower(reg.Payment.Status) == models.PaymentPending ||
			util.Lower(reg.Payment.Status) == models.PaymentFailed))
}

// ClassifyInvitation maps an invitation status onto the same badge vocabulary.
func ClassifyInvitation(raw string) Canonical {
	switch util.Lower(raw) {
	case models.InvitationInvited, "pending", "":
		return Canonical{Label: "Invited", Tone: ToneInfo, IsInvited: true}
	case models.InvitationAccepted:
		return Canonical{Label: "Accepted", Tone: ToneSuccess}
	case models.InvitationDeclined:
		return Canonical{Label: "Declined", Tone: ToneDanger, IsCancelled: true}
	case models.InvitationRevoked:
		return Canonical{Label: "Revoked", Tone: ToneDanger, IsCancelled: true}
	case models.InvitationExpired:
		return Canonical{Label: "Expired", Tone: ToneDanger, IsCancelled: true}
	default:
		return Canonical{Label: raw, Tone: ToneNeutral}
	}
}

// InvitationOpen reports whether accept/decline controls should be shown.
func InvitationOpen(raw string) bool {
	return ClassifyInvitation(raw).IsInvited
}
