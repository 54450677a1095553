// Package registration validates and submits solo and team registrations
// and hands the result over to payment.
package registration

import (
	"context"
	"log"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"dinnerhop-bot/internal/backend"
	"dinnerhop-bot/internal/journal"
	"dinnerhop-bot/internal/models"
	"dinnerhop-bot/internal/payments"
)

type Submitter interface {
	RegisterSolo(ctx context.Context, req backend.SoloRequest, idempotencyKey string) (backend.RegistrationResponse, error)
	RegisterTeam(ctx context.Context, req backend.TeamRequest, idempotencyKey string) (backend.RegistrationResponse, error)
}

type PaymentStarter interface {
	Start(ctx context.Context, req payments.StartRequest) (payments.Result, error)
}

// Refresher reloads the "my registrations" view. It is called without
// waiting for it.
type Refresher interface {
	RefreshRegistrations(ctx context.Context)
}

type Result struct {
	RegistrationID string
	TeamID         string
	Status         string
	AmountDueCents int64
	Payment        payments.Result
}

type Orchestrator struct {
	api       Submitter
	resolver  payments.CatalogResolver
	payments  PaymentStarter
	refresher Refresher
	journal   journal.Recorder
	validate  *validator.Validate
}

func New(api Submitter, resolver payments.CatalogResolver, pay PaymentStarter, refresher Refresher, rec journal.Recorder) *Orchestrator {
	if rec == nil {
		rec = journal.Noop{}
	}
	return &Orchestrator{
		api:       api,
		resolver:  resolver,
		payments:  pay,
		refresher: refresher,
		journal:   rec,
		validate:  newValidator(),
	}
}

// Validate checks f without any network call.
func (o *Orchestrator) Validate(f Form) error {
	return Validate(o.validate, f)
}

// Submit registers and then starts payment. When payment fails after a
// successful registration both the result and the payment error are
// returned; the registration stands.
func (o *Orchestrator) Submit(ctx context.Context, f Form) (Result, error) {
	f = normalized(f)
	if err := o.Validate(f); err != nil {
		return Result{}, err
	}
	key := f.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	var resp backend.RegistrationResponse
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		resp, err = o.send(gctx, f, key)
		return err
	})
	if o.resolver != nil {
		// warms the per-view catalog so the payment step does not wait on it
		g.Go(func() error {
			o.resolver.Resolve(gctx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	res := Result{
		RegistrationID: resp.RegistrationID,
		TeamID:         resp.TeamID,
		Status:         resp.Status,
		AmountDueCents: f.FeeCents,
	}
	if resp.AmountDueCents != nil {
		res.AmountDueCents = *resp.AmountDueCents
	}
	log.Printf("registration: %s registered for %s (%s)", res.RegistrationID, f.EventID, f.Mode)
	journal.Log(ctx, o.journal, journal.Entry{
		Kind:           journal.KindRegistered,
		RegistrationID: res.RegistrationID,
		EventID:        f.EventID,
		Detail:         string(f.Mode),
	})

	if o.refresher != nil {
		go o.refresher.RefreshRegistrations(context.WithoutCancel(ctx))
	}

	if link := strings.TrimSpace(resp.PaymentLink); link != "" {
		res.Payment = payments.Result{Outcome: payments.OutcomeRedirected, RedirectURL: link}
		return res, nil
	}
	if o.payments == nil {
		return res, nil
	}

	pay, err := o.payments.Start(ctx, payments.StartRequest{RegistrationID: res.RegistrationID, FeeCents: res.AmountDueCents})
	res.Payment = pay
	if err != nil {
		log.Printf("registration: payment for %s failed: %v", res.RegistrationID, err)
		return res, err
	}
	journal.Log(ctx, o.journal, journal.Entry{
		Kind:           journal.KindPaymentStarted,
		RegistrationID: res.RegistrationID,
		EventID:        f.EventID,
		Provider:       pay.Provider,
		Outcome:        string(pay.Outcome),
	})
	return res, nil
}

func (o *Orchestrator) send(ctx context.Context, f Form, key string) (backend.RegistrationResponse, error) {
	if f.Mode == models.ModeSolo {
		return o.api.RegisterSolo(ctx, backend.SoloRequest{
			EventID:            f.EventID,
			CoursePreference:   f.Solo.CoursePreference,
			KitchenAvailable:   f.Solo.KitchenAvailable,
			MainCoursePossible: f.Solo.MainCoursePossible,
			DietaryPreference:  strings.TrimSpace(f.Solo.DietaryPreference),
		}, key)
	}

	req := backend.TeamRequest{
		EventID:          f.EventID,
		CookingLocation:  f.Team.CookingLocation,
		CoursePreference: f.Team.CoursePreference,
	}
	if p := f.Team.PartnerExisting; p != nil {
		req.PartnerExisting = &backend.PartnerExisting{Email: strings.TrimSpace(p.Email)}
	} else if p := f.Team.PartnerExternal; p != nil {
		req.PartnerExternal = &backend.PartnerExternal{
			Name:         strings.TrimSpace(p.Name),
			Email:        strings.TrimSpace(p.Email),
			Diet:         strings.TrimSpace(p.Diet),
			FieldOfStudy: strings.TrimSpace(p.FieldOfStudy),
		}
	}
	return o.api.RegisterTeam(ctx, req, key)
}
