// Package payments picks a payment provider for a registration, creates the
// payment and tells the caller what the user has to do next.
package payments

import (
	"context"
	"errors"
	"log"
	"strings"

	"dinnerhop-bot/internal/apperrors"
	"dinnerhop-bot/internal/backend"
)

type Outcome string

const (
	OutcomeNoPaymentRequired Outcome = "no_payment_required"
	OutcomeRedirected        Outcome = "redirected"
	OutcomeInstructions      Outcome = "instructions_shown"
	OutcomeAborted           Outcome = "aborted"
)

type StartRequest struct {
	RegistrationID string
	FeeCents       int64
	// CreateEndpoint overrides the creation route, e.g. for accepted
	// invitations. When set the fee short-circuit is skipped.
	CreateEndpoint string
}

type Result struct {
	Outcome      Outcome
	Provider     string
	RedirectURL  string
	Instructions string
	PaymentID    string
}

type Coordinator struct {
	creator  Creator
	resolver CatalogResolver
	chooser  Chooser
}

func NewCoordinator(creator Creator, resolver CatalogResolver, chooser Chooser) *Coordinator {
	return &Coordinator{creator: creator, resolver: resolver, chooser: chooser}
}

// Start drives one payment attempt. A failed attempt never touches the
// registration; callers may call Start again.
func (c *Coordinator) Start(ctx context.Context, req StartRequest) (Result, error) {
	endpoint := strings.TrimSpace(req.CreateEndpoint)
	if req.FeeCents <= 0 && endpoint == "" {
		return Result{Outcome: OutcomeNoPaymentRequired}, nil
	}
	if strings.TrimSpace(req.RegistrationID) == "" {
		return Result{Outcome: OutcomeAborted}, apperrors.Provider("Payment could not be started: the registration is unknown.", nil)
	}

	cat := c.resolver.Resolve(ctx)
	if len(cat.Providers) == 0 {
		return Result{Outcome: OutcomeAborted}, apperrors.Provider("No payment method is available right now. Your registration is kept, please try again later.", nil)
	}

	provider := cat.Default
	if len(cat.Providers) > 1 && c.chooser != nil {
		picked, err := c.chooser.ChooseProvider(ctx, req.RegistrationID, cat.Providers, cat.Default)
		switch {
		case errors.Is(err, ErrChoiceDismissed):
			log.Printf("payments: choice dismissed for %s, using default %s", req.RegistrationID, cat.Default)
		case err != nil:
			log.Printf("payments: choice aborted for %s: %v", req.RegistrationID, err)
			return Result{Outcome: OutcomeAborted}, nil
		case cat.Has(picked):
			provider = strings.ToLower(strings.TrimSpace(picked))
		default:
			log.Printf("payments: unknown provider %q picked for %s, using default %s", picked, req.RegistrationID, cat.Default)
		}
	}
	if ctx.Err() != nil {
		return Result{Outcome: OutcomeAborted, Provider: provider}, nil
	}

	resp, err := c.creator.CreatePayment(ctx, endpoint, backend.PaymentRequest{
		RegistrationID: req.RegistrationID,
		Provider:       provider,
	})
	if err != nil {
		log.Printf("payments: create via %s (%s) for %s: %v", c.creator.Name(), provider, req.RegistrationID, err)
		if apperrors.IsAuth(err) {
			return Result{Outcome: OutcomeAborted, Provider: provider}, err
		}
		return Result{Outcome: OutcomeAborted, Provider: provider}, apperrors.Provider("", err)
	}

	a, ok := resolveAction(resp)
	if !ok {
		log.Printf("payments: %s answered without a usable next action for %s", provider, req.RegistrationID)
		return Result{Outcome: OutcomeAborted, Provider: provider}, apperrors.Provider("The payment provider sent no payment link. Your registration is kept, please try again.", nil)
	}
	return Result{
		Outcome:      a.outcome,
		Provider:     provider,
		RedirectURL:  a.url,
		Instructions: a.instructions,
		PaymentID:    resp.PaymentID,
	}, nil
}
