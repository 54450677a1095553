package tgbot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"dinnerhop-bot/internal/apperrors"
	"dinnerhop-bot/internal/flow"
	"dinnerhop-bot/internal/models"
	"dinnerhop-bot/internal/registration"
	"dinnerhop-bot/internal/session"
	"dinnerhop-bot/internal/util"
)

type option struct {
	value string
	label string
}

// step is one question of the registration dialog. Steps without options
// take free text; optional steps accept "-" for nothing.
type step struct {
	key      string
	prompt   string
	options  []option
	optional bool
	when     func(d map[string]string) bool
}

var (
	yesNo = []option{{"yes", "Yes"}, {"no", "No"}}

	courseOptions = []option{
		{registration.CourseStarter, "Starter"},
		{registration.CourseMain, "Main course"},
		{registration.CourseDessert, "Dessert"},
		{"any", "No preference"},
	}

	soloSteps = []step{
		{key: "course_preference", prompt: "Which course would you like to cook?", options: courseOptions},
		{key: "kitchen_available", prompt: "Do you have a kitchen available?", options: yesNo},
		{
			key:     "main_course_possible",
			prompt:  "Can your kitchen handle a main course?",
			options: yesNo,
			when:    func(d map[string]string) bool { return d["kitchen_available"] == "yes" },
		},
		{key: "dietary_preference", prompt: "Any dietary preference? Send it as text, or - for none.", optional: true},
	}

	teamSteps = []step{
		{key: "partner_kind", prompt: "Who is your partner?", options: []option{{"existing", "Has an account"}, {"external", "No account yet"}}},
		{key: "partner_email", prompt: "Your partner's email address?"},
		{key: "partner_name", prompt: "Your partner's name?", when: external},
		{key: "partner_diet", prompt: "Partner's dietary preference? Send - for none.", optional: true, when: external},
		{key: "partner_field_of_study", prompt: "Partner's field of study? Send - to skip.", optional: true, when: external},
		{key: "cooking_location", prompt: "Whose kitchen do you cook in?", options: []option{
			{registration.LocationCreator, "My kitchen"},
			{registration.LocationPartner, "Partner's kitchen"},
		}},
		{key: "course_preference", prompt: "Which course would you like to cook?", options: courseOptions},
	}
)

func external(d map[string]string) bool { return d["partner_kind"] == "external" }

// nextStep returns the first unanswered step, or nil when the form is complete.
func nextStep(mode models.Mode, d map[string]string) *step {
	steps := soloSteps
	if mode == models.ModeTeam {
		steps = teamSteps
	}
	for i := range steps {
		s := &steps[i]
		if s.when != nil && !s.when(d) {
			continue
		}
		if _, ok := d[s.key]; !ok {
			return s
		}
	}
	return nil
}

// parseAnswer maps chat text onto a step value.
func parseAnswer(s *step, txt string) (string, bool) {
	txt = strings.TrimSpace(txt)
	if s.optional && (txt == "-" || txt == "") {
		return "", true
	}
	if len(s.options) == 0 {
		return txt, txt != ""
	}
	for _, o := range s.options {
		if strings.EqualFold(txt, o.value) || strings.EqualFold(txt, o.label) {
			return o.value, true
		}
	}
	if isYesNo(s.options) {
		if util.NormalizeBool(txt) {
			return "yes", true
		}
		switch util.Lower(txt) {
		case "no", "n", "nein", "false", "0", "off":
			return "no", true
		}
	}
	return "", false
}

func isYesNo(opts []option) bool {
	return len(opts) == 2 && opts[0].value == "yes" && opts[1].value == "no"
}

func buildForm(snap flow.Snapshot, profile *models.Profile) registration.Form {
	d := snap.Data
	course := d["course_preference"]
	if course == "any" {
		course = ""
	}
	f := registration.Form{
		Mode:           snap.Mode,
		EventID:        snap.EventID,
		FeeCents:       snap.FeeCents,
		Profile:        profile,
		IdempotencyKey: snap.IdempotencyKey,
	}
	switch snap.Mode {
	case models.ModeSolo:
		f.Solo = &registration.SoloForm{
			CoursePreference:   course,
			KitchenAvailable:   d["kitchen_available"] == "yes",
			MainCoursePossible: d["kitchen_available"] == "yes" && d["main_course_possible"] == "yes",
			DietaryPreference:  d["dietary_preference"],
		}
	case models.ModeTeam:
		t := &registration.TeamForm{
			CookingLocation:  d["cooking_location"],
			CoursePreference: course,
		}
		if external(d) {
			t.PartnerExternal = &registration.PartnerExternal{
				Name:         d["partner_name"],
				Email:        d["partner_email"],
				Diet:         d["partner_diet"],
				FieldOfStudy: d["partner_field_of_study"],
			}
		} else {
			t.PartnerExisting = &registration.PartnerExisting{Email: d["partner_email"]}
		}
		f.Team = t
	}
	return f
}

func formatCents(c int64) string {
	return fmt.Sprintf("%d.%02d €", c/100, c%100)
}

func formOpen(v *session.View) bool {
	st := v.Flow.State()
	return st == flow.StateFormSolo || st == flow.StateFormTeam
}

// ---------- Dialog ----------

func (a *App) startRegistration(ctx context.Context, v *session.View, eventID string) error {
	if eventID == "" {
		return a.SendText(ctx, v.ChatID, "Usage: /register <event id>")
	}
	ev, err := v.API.Event(ctx, eventID)
	if err != nil {
		return a.fail(ctx, v, err)
	}
	if ev.RegistrationDeadline != nil && time.Now().After(*ev.RegistrationDeadline) {
		return a.SendText(ctx, v.ChatID, "Registration for "+ev.Title+" is closed.")
	}

	text := fmt.Sprintf("🍽 %s\nFee: %s\n\nHow do you want to take part?", ev.Title, formatCents(ev.FeeCents))
	if ev.FeeCents <= 0 {
		text = fmt.Sprintf("🍽 %s\nNo fee.\n\nHow do you want to take part?", ev.Title)
	}
	msg := tgbotapi.NewMessage(v.ChatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🙋 Solo", "f:open:solo:"+ev.ID),
			tgbotapi.NewInlineKeyboardButtonData("👥 As a team", "f:open:team:"+ev.ID),
		),
	)
	return a.send(ctx, msg)
}

func (a *App) handleFormCallback(ctx context.Context, v *session.View, data string) error {
	switch {
	case strings.HasPrefix(data, "open:"):
		mode, eventID, _ := strings.Cut(strings.TrimPrefix(data, "open:"), ":")
		return a.openForm(ctx, v, models.Mode(mode), eventID)
	case strings.HasPrefix(data, "a:"):
		if !formOpen(v) {
			return a.SendText(ctx, v.ChatID, "No registration in progress. Use /register <event id>.")
		}
		return a.answer(ctx, v, strings.TrimPrefix(data, "a:"))
	}

	switch data {
	case "switch":
		target := models.ModeTeam
		if v.Flow.Mode() == models.ModeTeam {
			target = models.ModeSolo
		}
		if err := v.Flow.SwitchMode(target); err != nil {
			return a.SendText(ctx, v.ChatID, "You cannot switch right now.")
		}
		return a.ask(ctx, v)
	case "submit":
		return a.submitForm(ctx, v)
	case "close":
		v.Flow.Close()
		return a.SendText(ctx, v.ChatID, "Registration closed.")
	}
	return nil
}

func (a *App) openForm(ctx context.Context, v *session.View, mode models.Mode, eventID string) error {
	ev, err := v.API.Event(ctx, eventID)
	if err != nil {
		return a.fail(ctx, v, err)
	}
	if err := v.Flow.Open(ev, mode); err != nil {
		return a.SendText(ctx, v.ChatID, "Unknown registration mode.")
	}
	return a.ask(ctx, v)
}

func (a *App) handleFormText(ctx context.Context, v *session.View, txt string) error {
	return a.answer(ctx, v, txt)
}

func (a *App) answer(ctx context.Context, v *session.View, txt string) error {
	snap := v.Flow.Snapshot()
	s := nextStep(snap.Mode, snap.Data)
	if s == nil {
		return a.showSummary(ctx, v)
	}
	val, ok := parseAnswer(s, txt)
	if !ok {
		return a.SendText(ctx, v.ChatID, "Please pick one of the buttons.")
	}
	v.Flow.Answer(s.key, val)
	return a.ask(ctx, v)
}

// ask sends the next question or, once everything is answered, the summary.
func (a *App) ask(ctx context.Context, v *session.View) error {
	snap := v.Flow.Snapshot()
	s := nextStep(snap.Mode, snap.Data)
	if s == nil {
		return a.showSummary(ctx, v)
	}
	msg := tgbotapi.NewMessage(v.ChatID, s.prompt)
	rows := [][]tgbotapi.InlineKeyboardButton{}
	if len(s.options) > 0 {
		row := []tgbotapi.InlineKeyboardButton{}
		for _, o := range s.options {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(o.label, "f:a:"+o.value))
		}
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("↔️ Switch solo/team", "f:switch"),
		tgbotapi.NewInlineKeyboardButtonData("✖️ Close", "f:close"),
	))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	return a.send(ctx, msg)
}

func (a *App) showSummary(ctx context.Context, v *session.View) error {
	snap := v.Flow.Snapshot()
	var b strings.Builder
	fmt.Fprintf(&b, "📝 %s (%s)\n", snap.EventTitle, snap.Mode)
	if snap.FeeCents > 0 {
		fmt.Fprintf(&b, "Fee: %s\n", formatCents(snap.FeeCents))
	}
	steps := soloSteps
	if snap.Mode == models.ModeTeam {
		steps = teamSteps
	}
	for _, s := range steps {
		val, ok := snap.Data[s.key]
		if !ok {
			continue
		}
		if val == "" {
			val = "-"
		}
		for _, o := range s.options {
			if o.value == val {
				val = o.label
			}
		}
		fmt.Fprintf(&b, "%s: %s\n", strings.ReplaceAll(s.key, "_", " "), val)
	}

	msg := tgbotapi.NewMessage(v.ChatID, b.String())
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Register", "f:submit"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("↔️ Switch solo/team", "f:switch"),
			tgbotapi.NewInlineKeyboardButtonData("✖️ Close", "f:close"),
		),
	)
	return a.send(ctx, msg)
}

func (a *App) submitForm(ctx context.Context, v *session.View) error {
	if nextStep(v.Flow.Mode(), v.Flow.Snapshot().Data) != nil {
		return a.ask(ctx, v)
	}
	if err := v.Flow.To(flow.StateSubmitting); err != nil {
		// double tap on "Register" lands here
		return a.SendText(ctx, v.ChatID, "Your registration is already being processed.")
	}

	var profile *models.Profile
	if p, err := v.Profile(ctx); err == nil {
		profile = &p
	} else if apperrors.IsAuth(err) {
		return a.fail(ctx, v, err)
	}

	svc, err := a.services(v)
	if err != nil {
		a.backToForm(v)
		return err
	}
	snap := v.Flow.Snapshot()
	if err := a.SendText(ctx, v.ChatID, "⏳ Registering…"); err != nil {
		log.Printf("chat %d: %v", v.ChatID, err)
	}

	res, err := svc.orchestrator.Submit(ctx, buildForm(snap, profile))
	if res.RegistrationID == "" {
		if err == nil {
			err = apperrors.New(apperrors.CodeServer, "The server did not confirm the registration.")
		}
		if apperrors.IsAuth(err) {
			return a.fail(ctx, v, err)
		}
		a.backToForm(v)
		if sendErr := a.fail(ctx, v, err); sendErr != nil {
			return sendErr
		}
		return a.showSummary(ctx, v)
	}

	if err := v.Flow.To(flow.StateDone); err != nil {
		log.Printf("chat %d: %v", v.ChatID, err)
	}
	defer v.Flow.Close()
	if sendErr := a.SendText(ctx, v.ChatID, "🎉 You are registered for "+snap.EventTitle+"."); sendErr != nil {
		return sendErr
	}
	return a.renderPayment(ctx, v, res.RegistrationID, res.Payment, err)
}

func (a *App) backToForm(v *session.View) {
	if err := v.Flow.BackToForm(); err != nil {
		log.Printf("chat %d: %v", v.ChatID, err)
	}
}
