package tgbot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"dinnerhop-bot/internal/apperrors"
	"dinnerhop-bot/internal/cancellation"
	"dinnerhop-bot/internal/confirm"
	"dinnerhop-bot/internal/journal"
	"dinnerhop-bot/internal/models"
	"dinnerhop-bot/internal/payments"
	"dinnerhop-bot/internal/session"
	"dinnerhop-bot/internal/status"
)

// refresher re-sends the registration list of one chat.
type refresher struct {
	app  *App
	view *session.View
}

func (r refresher) RefreshRegistrations(ctx context.Context) {
	if err := r.app.showRegistrations(ctx, r.view); err != nil {
		log.Printf("refresh chat %d: %v", r.view.ChatID, err)
	}
}

// ---------- Registrations ----------

func (a *App) showRegistrations(ctx context.Context, v *session.View) error {
	regs, err := v.API.RegistrationStatus(ctx)
	if err != nil {
		return a.fail(ctx, v, err)
	}
	if len(regs) == 0 {
		return a.SendText(ctx, v.ChatID, "You have no registrations yet. Use /register <event id>.")
	}
	return a.listRegistrations(ctx, v, "📋 Your registrations", regs)
}

// showActive lists only registrations for events that are still open.
func (a *App) showActive(ctx context.Context, v *session.View) error {
	regs, err := v.API.ActiveRegistrations(ctx)
	if err != nil {
		return a.fail(ctx, v, err)
	}
	if len(regs) == 0 {
		return a.SendText(ctx, v.ChatID, "No registrations for upcoming events.")
	}
	return a.listRegistrations(ctx, v, "📅 Upcoming events", regs)
}

func (a *App) listRegistrations(ctx context.Context, v *session.View, heading string, regs []models.Registration) error {
	plans, err := a.cancelPlans(ctx, v, regs)
	if err != nil {
		return a.fail(ctx, v, err)
	}

	var b strings.Builder
	b.WriteString(heading + "\n")
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for _, r := range regs {
		c := status.Classify(r)
		title := r.EventTitle
		if title == "" {
			title = r.EventID
		}
		fmt.Fprintf(&b, "\n%s (%s)\n%s", title, r.Mode, c)
		if c.RefundPending {
			b.WriteString("\n💸 Refund pending")
		}
		b.WriteString("\n")

		row := []tgbotapi.InlineKeyboardButton{}
		if status.AwaitingPayment(r) {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData("💳 Pay "+title, "p:"+r.ID))
		}
		if plans[r.ID].Kind != cancellation.KindNone && !c.IsInvited {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData("🗑 Cancel "+title, "c:"+r.ID))
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}

	msg := tgbotapi.NewMessage(v.ChatID, b.String())
	if len(rows) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	return a.send(ctx, msg)
}

func findRegistration(regs []models.Registration, id string) (models.Registration, bool) {
	for _, r := range regs {
		if r.ID == id {
			return r, true
		}
	}
	return models.Registration{}, false
}

func (a *App) lookupRegistration(ctx context.Context, v *session.View, id string) (models.Registration, bool, error) {
	regs, err := v.API.RegistrationStatus(ctx)
	if err != nil {
		return models.Registration{}, false, err
	}
	r, ok := findRegistration(regs, id)
	return r, ok, nil
}

// ---------- Payment ----------

func (a *App) payRegistration(ctx context.Context, v *session.View, regID string) error {
	reg, ok, err := a.lookupRegistration(ctx, v, regID)
	if err != nil {
		return a.fail(ctx, v, err)
	}
	if !ok {
		return a.SendText(ctx, v.ChatID, "Registration not found.")
	}
	if !status.AwaitingPayment(reg) {
		return a.SendText(ctx, v.ChatID, "Nothing to pay for this registration.")
	}

	fee := reg.FeeCents
	if fee <= 0 && reg.EventID != "" {
		if ev, err := v.API.Event(ctx, reg.EventID); err == nil {
			fee = ev.FeeCents
		} else {
			log.Printf("event %s fee: %v", reg.EventID, err)
		}
	}

	svc, err := a.services(v)
	if err != nil {
		return err
	}
	res, err := svc.coordinator.Start(ctx, payments.StartRequest{RegistrationID: reg.ID, FeeCents: fee})
	if err == nil {
		journal.Log(ctx, a.journal, journal.Entry{
			ChatID:         v.ChatID,
			Kind:           journal.KindPaymentStarted,
			RegistrationID: reg.ID,
			EventID:        reg.EventID,
			Provider:       res.Provider,
			Outcome:        string(res.Outcome),
		})
	}
	return a.renderPayment(ctx, v, reg.ID, res, err)
}

// renderPayment tells the user what to do after a payment attempt.
func (a *App) renderPayment(ctx context.Context, v *session.View, regID string, res payments.Result, err error) error {
	retry := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔁 Try paying again", "p:"+regID),
	))

	if err != nil {
		if apperrors.IsAuth(err) {
			return a.fail(ctx, v, err)
		}
		log.Printf("chat %d payment %s: %v", v.ChatID, regID, err)
		msg := tgbotapi.NewMessage(v.ChatID, "⚠️ "+apperrors.UserMessage(err))
		msg.ReplyMarkup = retry
		return a.send(ctx, msg)
	}

	switch res.Outcome {
	case payments.OutcomeNoPaymentRequired:
		return a.SendText(ctx, v.ChatID, "✅ No payment needed. You're all set.")
	case payments.OutcomeRedirected:
		a.trackPayment(regID, v.ChatID)
		msg := tgbotapi.NewMessage(v.ChatID, "💳 Complete your payment with "+providerLabel(res.Provider)+":")
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("Pay now", res.RedirectURL),
		))
		return a.send(ctx, msg)
	case payments.OutcomeInstructions:
		return a.SendText(ctx, v.ChatID, "🏦 Payment instructions\n\n"+res.Instructions)
	default:
		msg := tgbotapi.NewMessage(v.ChatID, "Payment was not started. Your registration is kept.")
		msg.ReplyMarkup = retry
		return a.send(ctx, msg)
	}
}

// ---------- Cancellation ----------

func (a *App) handleCancelCallback(ctx context.Context, v *session.View, data string) error {
	switch {
	case strings.HasPrefix(data, "y:"):
		return a.confirmCancel(ctx, v, strings.TrimPrefix(data, "y:"))
	case strings.HasPrefix(data, "n:"):
		v.Confirm("cancel:" + strings.TrimPrefix(data, "n:")).Abort()
		return a.SendText(ctx, v.ChatID, "Okay, nothing was cancelled.")
	default:
		return a.askCancel(ctx, v, data)
	}
}

// cancelPlans resolves the cancel route of every listed registration. Team
// rows whose team cannot be looked up get KindNone and no cancel button.
func (a *App) cancelPlans(ctx context.Context, v *session.View, regs []models.Registration) (map[string]cancellation.Plan, error) {
	svc, err := a.services(v)
	if err != nil {
		return nil, err
	}
	email := a.actingEmail(ctx, v)

	var mu sync.Mutex
	plans := make(map[string]cancellation.Plan, len(regs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, r := range regs {
		r := r
		g.Go(func() error {
			plan, err := svc.cancellation.Plan(gctx, r, email)
			if err != nil {
				if apperrors.IsAuth(err) {
					return err
				}
				log.Printf("chat %d cancel plan %s: %v", v.ChatID, r.ID, err)
			}
			mu.Lock()
			plans[r.ID] = plan
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return plans, nil
}

func (a *App) actingEmail(ctx context.Context, v *session.View) string {
	p, err := v.Profile(ctx)
	if err != nil {
		log.Printf("chat %d profile: %v", v.ChatID, err)
		return ""
	}
	return p.Email
}

func (a *App) cancelPlan(ctx context.Context, v *session.View, regID string) (cancellation.Plan, *cancellation.Coordinator, error) {
	reg, ok, err := a.lookupRegistration(ctx, v, regID)
	if err != nil {
		return cancellation.Plan{Kind: cancellation.KindNone}, nil, err
	}
	if !ok {
		return cancellation.Plan{Kind: cancellation.KindNone}, nil, nil
	}
	svc, err := a.services(v)
	if err != nil {
		return cancellation.Plan{Kind: cancellation.KindNone}, nil, err
	}
	plan, err := svc.cancellation.Plan(ctx, reg, a.actingEmail(ctx, v))
	if err != nil {
		if apperrors.IsAuth(err) {
			return plan, nil, err
		}
		// no role, no cancel control
		log.Printf("chat %d cancel plan %s: %v", v.ChatID, regID, err)
	}
	return plan, svc.cancellation, nil
}

func (a *App) askCancel(ctx context.Context, v *session.View, regID string) error {
	plan, _, err := a.cancelPlan(ctx, v, regID)
	if err != nil {
		return a.fail(ctx, v, err)
	}
	if plan.Kind == cancellation.KindNone {
		return a.SendText(ctx, v.ChatID, "This registration cannot be cancelled.")
	}

	ctl := v.Confirm("cancel:" + regID)
	switch err := ctl.Request(); {
	case errors.Is(err, confirm.ErrDone):
		return a.SendText(ctx, v.ChatID, "This registration is already cancelled.")
	case errors.Is(err, confirm.ErrBusy):
		return a.SendText(ctx, v.ChatID, "Cancellation is in progress…")
	}

	msg := tgbotapi.NewMessage(v.ChatID, "⚠️ "+plan.Prompt())
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Yes, cancel", "c:y:"+regID),
		tgbotapi.NewInlineKeyboardButtonData("No", "c:n:"+regID),
	))
	return a.send(ctx, msg)
}

func (a *App) confirmCancel(ctx context.Context, v *session.View, regID string) error {
	ctl := v.Confirm("cancel:" + regID)
	if ctl.State() != confirm.StateConfirming {
		return a.confirmStateMessage(ctx, v, ctl)
	}
	plan, coord, err := a.cancelPlan(ctx, v, regID)
	if err != nil {
		ctl.Abort()
		return a.fail(ctx, v, err)
	}
	if plan.Kind == cancellation.KindNone {
		ctl.Abort()
		return a.SendText(ctx, v.ChatID, "This registration cannot be cancelled.")
	}

	err = ctl.Confirm(ctx, func(ctx context.Context) error { return coord.Cancel(ctx, plan) })
	switch {
	case errors.Is(err, confirm.ErrBusy), errors.Is(err, confirm.ErrDone), errors.Is(err, confirm.ErrNotConfirming):
		return a.confirmStateMessage(ctx, v, ctl)
	case apperrors.IsAuth(err):
		return a.fail(ctx, v, err)
	case err != nil:
		// the control is idle again; offer the cancel button once more
		log.Printf("chat %d cancel %s: %v", v.ChatID, regID, err)
		msg := tgbotapi.NewMessage(v.ChatID, "⚠️ "+apperrors.UserMessage(err))
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗑 Try again", "c:"+regID),
		))
		return a.send(ctx, msg)
	}
	if err := a.SendText(ctx, v.ChatID, "✅ Cancelled."); err != nil {
		return err
	}
	return a.showRegistrations(ctx, v)
}

func (a *App) confirmStateMessage(ctx context.Context, v *session.View, ctl *confirm.Control) error {
	switch ctl.State() {
	case confirm.StateInFlight:
		return a.SendText(ctx, v.ChatID, "Already in progress…")
	case confirm.StateDone:
		return a.SendText(ctx, v.ChatID, "Already done.")
	default:
		return a.SendText(ctx, v.ChatID, "Please start again from /my.")
	}
}

// ---------- Invitations ----------

func (a *App) showInvitations(ctx context.Context, v *session.View) error {
	invs, err := v.API.Invitations(ctx)
	if err != nil {
		return a.fail(ctx, v, err)
	}
	if len(invs) == 0 {
		return a.SendText(ctx, v.ChatID, "You have no invitations.")
	}

	var b strings.Builder
	b.WriteString("✉️ Your invitations\n")
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for _, inv := range invs {
		title := inv.EventTitle
		if title == "" {
			title = inv.EventID
		}
		fmt.Fprintf(&b, "\n%s\n%s\n", title, status.ClassifyInvitation(inv.Status))
		if status.InvitationOpen(inv.Status) {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✅ Accept "+title, "i:a:"+inv.ID),
				tgbotapi.NewInlineKeyboardButtonData("❌ Decline", "i:d:"+inv.ID),
			))
		}
	}
	msg := tgbotapi.NewMessage(v.ChatID, b.String())
	if len(rows) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	return a.send(ctx, msg)
}

func (a *App) lookupInvitation(ctx context.Context, v *session.View, id string) (models.Invitation, bool, error) {
	invs, err := v.API.Invitations(ctx)
	if err != nil {
		return models.Invitation{}, false, err
	}
	for _, inv := range invs {
		if inv.ID == id {
			return inv, true, nil
		}
	}
	return models.Invitation{}, false, nil
}

func (a *App) handleInvitationCallback(ctx context.Context, v *session.View, data string) error {
	action, id, ok := strings.Cut(data, ":")
	if !ok {
		return nil
	}
	inv, found, err := a.lookupInvitation(ctx, v, id)
	if err != nil {
		return a.fail(ctx, v, err)
	}
	if !found {
		return a.SendText(ctx, v.ChatID, "Invitation not found.")
	}
	svc, err := a.services(v)
	if err != nil {
		return err
	}

	switch action {
	case "a":
		return a.acceptInvitation(ctx, v, svc, inv)
	case "d":
		if err := v.Confirm("decline:" + inv.ID).Request(); err != nil {
			return a.confirmStateMessage(ctx, v, v.Confirm("decline:"+inv.ID))
		}
		msg := tgbotapi.NewMessage(v.ChatID, "Decline the invitation to "+inv.EventTitle+"?")
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Yes, decline", "i:dy:"+inv.ID),
			tgbotapi.NewInlineKeyboardButtonData("No", "i:dn:"+inv.ID),
		))
		return a.send(ctx, msg)
	case "dn":
		v.Confirm("decline:" + inv.ID).Abort()
		return a.SendText(ctx, v.ChatID, "Okay, the invitation stays open.")
	case "dy":
		ctl := v.Confirm("decline:" + inv.ID)
		var res struct{ settled bool }
		err := ctl.Confirm(ctx, func(ctx context.Context) error {
			out, err := svc.invitations.Decline(ctx, inv)
			res.settled = out.AlreadySettled
			return err
		})
		switch {
		case errors.Is(err, confirm.ErrBusy), errors.Is(err, confirm.ErrDone), errors.Is(err, confirm.ErrNotConfirming):
			return a.confirmStateMessage(ctx, v, ctl)
		case err != nil:
			return a.fail(ctx, v, err)
		case res.settled:
			return a.SendText(ctx, v.ChatID, "This invitation was already answered.")
		}
		return a.SendText(ctx, v.ChatID, "Invitation declined.")
	}
	return nil
}

func (a *App) acceptInvitation(ctx context.Context, v *session.View, svc services, inv models.Invitation) error {
	var fee int64
	if inv.EventID != "" {
		if ev, err := v.API.Event(ctx, inv.EventID); err == nil {
			fee = ev.FeeCents
		}
	}
	res, err := svc.invitations.Accept(ctx, inv, fee)
	if res.AlreadySettled {
		return a.SendText(ctx, v.ChatID, "This invitation was already answered.")
	}
	if err != nil && res.Payment.Outcome == "" {
		return a.fail(ctx, v, err)
	}
	if sendErr := a.SendText(ctx, v.ChatID, "🎉 You joined the team for "+inv.EventTitle+"."); sendErr != nil {
		return sendErr
	}
	if err == nil && res.Payment.Outcome == "" {
		// no payment hint: the share is covered or already settled
		return nil
	}
	return a.renderPayment(ctx, v, res.RegistrationID, res.Payment, err)
}
