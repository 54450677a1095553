package tgbot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"dinnerhop-bot/internal/apperrors"
	"dinnerhop-bot/internal/cancellation"
	"dinnerhop-bot/internal/config"
	"dinnerhop-bot/internal/invitation"
	"dinnerhop-bot/internal/journal"
	"dinnerhop-bot/internal/payments"
	"dinnerhop-bot/internal/registration"
	"dinnerhop-bot/internal/session"
)

// Sender is the part of *tgbotapi.BotAPI the app talks to.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type App struct {
	cfg      config.Config
	api      *tgbotapi.BotAPI
	bot      Sender
	limiter  *rate.Limiter
	sessions *session.Store
	journal  journal.Recorder
	choices  *choices

	// registration id -> chat waiting for a payment return
	mu       sync.Mutex
	payChats map[string]pendingReturn
}

type pendingReturn struct {
	chatID int64
	at     time.Time
}

// returnWindow is how long a checkout may take before its chat is forgotten.
const returnWindow = 24 * time.Hour

func New(cfg config.Config, sessions *session.Store, rec journal.Recorder) (*App, error) {
	b, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, err
	}
	b.Debug = false
	a := NewWithSender(cfg, b, sessions, rec)
	a.api = b
	return a, nil
}

// NewWithSender builds an app that does not poll; used by tests.
func NewWithSender(cfg config.Config, bot Sender, sessions *session.Store, rec journal.Recorder) *App {
	if rec == nil {
		rec = journal.Noop{}
	}
	rps := cfg.TelegramRPS
	if rps <= 0 {
		rps = 20
	}
	return &App{
		cfg:      cfg,
		bot:      bot,
		limiter:  rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		sessions: sessions,
		journal:  rec,
		choices:  newChoices(),
		payChats: map[string]pendingReturn{},
	}
}

// Run polls updates until ctx is done. Every update is handled in its own
// goroutine so a dialog waiting for a provider choice does not block the
// callback that answers it.
func (a *App) Run(ctx context.Context) error {
	if a.api == nil {
		return fmt.Errorf("tgbot: no polling client")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := a.api.GetUpdatesChan(u)
	defer a.api.StopReceivingUpdates()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			wg.Add(1)
			go func(upd tgbotapi.Update) {
				defer wg.Done()
				a.HandleUpdate(ctx, upd)
			}(upd)
		}
	}
}

func (a *App) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	switch {
	case upd.Message != nil:
		if err := a.handleMessage(ctx, upd.Message); err != nil {
			log.Printf("handle msg: %v", err)
		}
	case upd.CallbackQuery != nil:
		if err := a.handleCallback(ctx, upd.CallbackQuery); err != nil {
			log.Printf("handle cb: %v", err)
		}
	}
}

func (a *App) send(ctx context.Context, c tgbotapi.Chattable) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := a.bot.Send(c)
	return err
}

func (a *App) SendText(ctx context.Context, chatID int64, text string) error {
	return a.send(ctx, tgbotapi.NewMessage(chatID, text))
}

// services wires the per-view use cases.
type services struct {
	orchestrator *registration.Orchestrator
	coordinator  *payments.Coordinator
	cancellation *cancellation.Coordinator
	invitations  *invitation.Lifecycle
}

func (a *App) services(v *session.View) (services, error) {
	creator, err := payments.NewCreator(a.cfg, v.API)
	if err != nil {
		return services{}, err
	}
	coord := payments.NewCoordinator(creator, v.Resolver, chatChooser{app: a, view: v})
	return services{
		orchestrator: registration.New(v.API, v.Resolver, coord, refresher{app: a, view: v}, a.journal),
		coordinator:  coord,
		cancellation: cancellation.New(v.API, a.journal),
		invitations:  invitation.New(v.API, coord, a.journal),
	}, nil
}

// ---------- Message handling ----------

func (a *App) handleMessage(ctx context.Context, m *tgbotapi.Message) error {
	chatID := m.Chat.ID
	txt := strings.TrimSpace(m.Text)
	cmd, arg := splitCommand(txt)

	switch cmd {
	case "/start", "/help":
		return a.SendText(ctx, chatID, helpText(a.cfg.LoginURL))
	case "/login":
		return a.login(ctx, chatID, arg)
	case "/logout":
		a.sessions.Drop(chatID)
		return a.SendText(ctx, chatID, "Logged out.")
	}

	v, ok := a.sessions.Get(chatID)
	if !ok {
		return a.askLogin(ctx, chatID)
	}

	switch cmd {
	case "/register":
		return a.startRegistration(ctx, v, arg)
	case "/my":
		return a.showRegistrations(ctx, v)
	case "/active":
		return a.showActive(ctx, v)
	case "/invites":
		return a.showInvitations(ctx, v)
	case "/close":
		v.Flow.Close()
		return a.SendText(ctx, chatID, "Registration closed.")
	}

	if formOpen(v) {
		return a.handleFormText(ctx, v, txt)
	}
	return a.SendText(ctx, chatID, helpText(a.cfg.LoginURL))
}

func splitCommand(txt string) (string, string) {
	if !strings.HasPrefix(txt, "/") {
		return "", txt
	}
	cmd, arg, _ := strings.Cut(txt, " ")
	// "/my@dinnerhop_bot" in groups
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd), strings.TrimSpace(arg)
}

func helpText(loginURL string) string {
	var b strings.Builder
	b.WriteString("🍽 Dinner hopping\n\n")
	if loginURL != "" {
		b.WriteString("1. Get a session token at " + loginURL + "\n")
	}
	b.WriteString("/login <token> - connect this chat\n")
	b.WriteString("/register <event id> - register for an event\n")
	b.WriteString("/my - your registrations\n")
	b.WriteString("/active - registrations for upcoming events\n")
	b.WriteString("/invites - team invitations\n")
	b.WriteString("/close - close the registration dialog\n")
	b.WriteString("/logout - disconnect this chat")
	return b.String()
}

func (a *App) askLogin(ctx context.Context, chatID int64) error {
	text := "Please log in first: /login <token>"
	if a.cfg.LoginURL != "" {
		text += "\nGet a token at " + a.cfg.LoginURL
	}
	return a.SendText(ctx, chatID, text)
}

func (a *App) login(ctx context.Context, chatID int64, token string) error {
	if token == "" {
		return a.askLogin(ctx, chatID)
	}
	v := a.sessions.Login(chatID, token)
	p, err := v.Profile(ctx)
	if err != nil {
		return a.fail(ctx, v, err)
	}
	return a.SendText(ctx, chatID, "✅ Logged in as "+p.Email+". Try /my or /register <event id>.")
}

// fail renders err in the chat. Auth errors end the session.
func (a *App) fail(ctx context.Context, v *session.View, err error) error {
	if apperrors.IsAuth(err) {
		v.Flow.Close()
		a.sessions.Drop(v.ChatID)
		return a.askLogin(ctx, v.ChatID)
	}
	log.Printf("chat %d: %v", v.ChatID, err)
	return a.SendText(ctx, v.ChatID, "⚠️ "+apperrors.UserMessage(err))
}

// ---------- Callback handling ----------

func (a *App) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	// ack
	_, _ = a.bot.Request(tgbotapi.NewCallback(q.ID, ""))
	if q.Message == nil {
		return nil
	}
	chatID := q.Message.Chat.ID
	data := q.Data

	// provider choices are answered even while the session is busy
	if strings.HasPrefix(data, "pc:") {
		return a.handleChoiceCallback(ctx, chatID, strings.TrimPrefix(data, "pc:"))
	}

	v, ok := a.sessions.Get(chatID)
	if !ok {
		return a.askLogin(ctx, chatID)
	}

	switch {
	case strings.HasPrefix(data, "f:"):
		return a.handleFormCallback(ctx, v, strings.TrimPrefix(data, "f:"))
	case strings.HasPrefix(data, "p:"):
		return a.payRegistration(ctx, v, strings.TrimPrefix(data, "p:"))
	case strings.HasPrefix(data, "c:"):
		return a.handleCancelCallback(ctx, v, strings.TrimPrefix(data, "c:"))
	case strings.HasPrefix(data, "i:"):
		return a.handleInvitationCallback(ctx, v, strings.TrimPrefix(data, "i:"))
	}
	return nil
}

// ---------- Payment returns ----------

// trackPayment remembers which chat to tell about a stub checkout. Platform
// checkouts never come back through /payments/return and are not tracked.
func (a *App) trackPayment(registrationID string, chatID int64) {
	if a.cfg.PaymentBackend != "stub" {
		return
	}
	now := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, p := range a.payChats {
		if now.Sub(p.at) > returnWindow {
			delete(a.payChats, id)
		}
	}
	a.payChats[registrationID] = pendingReturn{chatID: chatID, at: now}
}

// PaymentReturned tells the chat that started a payment how it ended.
// It reports false when no chat is waiting for registrationID.
func (a *App) PaymentReturned(ctx context.Context, registrationID, status string) bool {
	a.mu.Lock()
	p, ok := a.payChats[registrationID]
	if ok {
		delete(a.payChats, registrationID)
	}
	a.mu.Unlock()
	if !ok || time.Since(p.at) > returnWindow {
		return false
	}
	chatID := p.chatID

	journal.Log(ctx, a.journal, journal.Entry{
		ChatID:         chatID,
		Kind:           journal.KindPaymentReturned,
		RegistrationID: registrationID,
		Outcome:        status,
	})

	text := "✅ Payment received. Your registration is confirmed."
	if status != "paid" {
		text = "❌ Payment was not completed. You can retry from /my."
	}
	if err := a.SendText(ctx, chatID, text); err != nil {
		log.Printf("notify chat %d: %v", chatID, err)
	}
	if v, ok := a.sessions.Get(chatID); ok {
		go refresher{app: a, view: v}.RefreshRegistrations(context.WithoutCancel(ctx))
	}
	return true
}
