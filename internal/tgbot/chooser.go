package tgbot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"dinnerhop-bot/internal/flow"
	"dinnerhop-bot/internal/payments"
	"dinnerhop-bot/internal/session"
)

const dismissChoice = "_"

// choices routes provider-choice callbacks to the dialog waiting for them.
type choices struct {
	mu      sync.Mutex
	waiting map[string]chan string
}

func newChoices() *choices {
	return &choices{waiting: map[string]chan string{}}
}

func choiceKey(chatID int64, registrationID string) string {
	return fmt.Sprintf("%d:%s", chatID, registrationID)
}

func (c *choices) wait(key string) (<-chan string, func()) {
	ch := make(chan string, 1)
	c.mu.Lock()
	c.waiting[key] = ch
	c.mu.Unlock()
	return ch, func() {
		c.mu.Lock()
		if c.waiting[key] == ch {
			delete(c.waiting, key)
		}
		c.mu.Unlock()
	}
}

// deliver hands provider to the waiter, if any. Only the first answer counts.
func (c *choices) deliver(key, provider string) bool {
	c.mu.Lock()
	ch, ok := c.waiting[key]
	if ok {
		delete(c.waiting, key)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	ch <- provider
	return true
}

// chatChooser asks one chat to pick a provider with an inline keyboard.
type chatChooser struct {
	app  *App
	view *session.View
}

func (c chatChooser) ChooseProvider(ctx context.Context, registrationID string, providers []string, def string) (string, error) {
	ch, done := c.app.choices.wait(choiceKey(c.view.ChatID, registrationID))
	defer done()

	// only a dialog that is submitting moves on; retries from /my have none
	if err := c.view.Flow.To(flow.StateProviderChoice); err != nil {
		log.Printf("chat %d provider choice outside dialog: %v", c.view.ChatID, err)
	}

	msg := tgbotapi.NewMessage(c.view.ChatID, "💳 How would you like to pay?")
	msg.ReplyMarkup = providerKeyboard(registrationID, providers, def)
	if err := c.app.send(ctx, msg); err != nil {
		return "", err
	}

	timer := time.NewTimer(c.app.cfg.ChoiceTimeout)
	defer timer.Stop()
	select {
	case p := <-ch:
		if p == dismissChoice || p == "" {
			return "", payments.ErrChoiceDismissed
		}
		return p, nil
	case <-timer.C:
		return "", payments.ErrChoiceDismissed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func providerKeyboard(registrationID string, providers []string, def string) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for _, p := range providers {
		label := providerLabel(p)
		if p == def {
			label += " ⭐"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, "pc:"+registrationID+":"+p),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Skip (use "+providerLabel(def)+")", "pc:"+registrationID+":"+dismissChoice),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func providerLabel(p string) string {
	switch p {
	case "paypal":
		return "PayPal"
	case "stripe":
		return "Card (Stripe)"
	case "wero":
		return "Wero"
	case "instructions":
		return "Bank transfer"
	}
	if p == "" {
		return p
	}
	return strings.ToUpper(p[:1]) + p[1:]
}

func (a *App) handleChoiceCallback(ctx context.Context, chatID int64, data string) error {
	i := strings.LastIndex(data, ":")
	if i < 0 {
		return nil
	}
	regID, provider := data[:i], data[i+1:]
	if !a.choices.deliver(choiceKey(chatID, regID), provider) {
		return a.SendText(ctx, chatID, "This payment choice has expired. Use /my to pay.")
	}
	return nil
}
