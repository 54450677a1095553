// Package invitation accepts and declines team invitations.
package invitation

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"dinnerhop-bot/internal/apperrors"
	"dinnerhop-bot/internal/backend"
	"dinnerhop-bot/internal/journal"
	"dinnerhop-bot/internal/models"
	"dinnerhop-bot/internal/payments"
	"dinnerhop-bot/internal/util"
)

type API interface {
	AcceptInvitationByRegistration(ctx context.Context, registrationID string) (backend.InvitationResponse, error)
	AcceptInvitationByID(ctx context.Context, invitationID string) (backend.InvitationResponse, error)
	RevokeInvitation(ctx context.Context, invitationID string) (backend.InvitationResponse, error)
}

type PaymentStarter interface {
	Start(ctx context.Context, req payments.StartRequest) (payments.Result, error)
}

type AcceptResult struct {
	RegistrationID string
	// AlreadySettled means the invitation was no longer open; nothing changed.
	AlreadySettled bool
	Status         string
	Payment        payments.Result
}

type DeclineResult struct {
	AlreadySettled bool
	Status         string
}

type Lifecycle struct {
	api      API
	payments PaymentStarter
	journal  journal.Recorder
}

func New(api API, pay PaymentStarter, rec journal.Recorder) *Lifecycle {
	if rec == nil {
		rec = journal.Noop{}
	}
	return &Lifecycle{api: api, payments: pay, journal: rec}
}

// Accept accepts inv and, when the server hands out a payment hint, starts
// payment for the member's own registration. feeCents is used when the hint
// has no amount. Accepting twice is harmless.
func (l *Lifecycle) Accept(ctx context.Context, inv models.Invitation, feeCents int64) (AcceptResult, error) {
	var (
		resp backend.InvitationResponse
		err  error
	)
	switch {
	case strings.TrimSpace(inv.RegistrationID) != "":
		resp, err = l.api.AcceptInvitationByRegistration(ctx, inv.RegistrationID)
	case strings.TrimSpace(inv.ID) != "":
		resp, err = l.api.AcceptInvitationByID(ctx, inv.ID)
	default:
		return AcceptResult{}, fmt.Errorf("invitation has neither id nor registration id")
	}

	out := AcceptResult{RegistrationID: firstNonEmpty(resp.RegistrationID, inv.RegistrationID)}
	if err != nil {
		if settled(err) {
			log.Printf("invitation: accept %s: already settled", inv.ID)
			out.AlreadySettled = true
			return out, nil
		}
		return out, err
	}
	out.Status = resp.Status
	switch util.Lower(resp.Status) {
	case models.InvitationDeclined, models.InvitationRevoked, models.InvitationExpired:
		out.AlreadySettled = true
		return out, nil
	}

	journal.Log(ctx, l.journal, journal.Entry{
		Kind:           journal.KindInvitationAccepted,
		RegistrationID: out.RegistrationID,
		EventID:        inv.EventID,
	})

	// only a payment hint hands over to the coordinator; a covered share or a
	// repeated accept carries none
	if l.payments == nil || strings.TrimSpace(resp.PaymentCreateEndpoint) == "" {
		return out, nil
	}
	fee := feeCents
	if resp.AmountDueCents != nil {
		fee = *resp.AmountDueCents
	}
	pay, err := l.payments.Start(ctx, payments.StartRequest{
		RegistrationID: out.RegistrationID,
		FeeCents:       fee,
		CreateEndpoint: resp.PaymentCreateEndpoint,
	})
	out.Payment = pay
	if err != nil {
		log.Printf("invitation: payment after accept %s: %v", out.RegistrationID, err)
		return out, err
	}
	return out, nil
}

// Decline revokes inv. There is never a payment follow-up.
func (l *Lifecycle) Decline(ctx context.Context, inv models.Invitation) (DeclineResult, error) {
	if strings.TrimSpace(inv.ID) == "" {
		return DeclineResult{}, fmt.Errorf("invitation id missing")
	}
	resp, err := l.api.RevokeInvitation(ctx, inv.ID)
	if err != nil {
		if settled(err) {
			log.Printf("invitation: decline %s: already settled", inv.ID)
			return DeclineResult{AlreadySettled: true}, nil
		}
		return DeclineResult{}, err
	}
	out := DeclineResult{Status: resp.Status}
	switch util.Lower(resp.Status) {
	case models.InvitationAccepted, models.InvitationExpired:
		out.AlreadySettled = true
		return out, nil
	}
	journal.Log(ctx, l.journal, journal.Entry{
		Kind:           journal.KindInvitationDeclined,
		RegistrationID: inv.RegistrationID,
		EventID:        inv.EventID,
	})
	return out, nil
}

func settled(err error) bool {
	e, ok := apperrors.As(err)
	if !ok || e.Code == apperrors.CodeAuth {
		return false
	}
	return e.Status == http.StatusConflict || e.Status == http.StatusGone
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
