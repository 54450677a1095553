// Package stub is a local payment creator for development. It hands out
// links to the bot's own checkout page instead of asking the platform.
package stub

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"dinnerhop-bot/internal/backend"
	"dinnerhop-bot/internal/util"
)

type Provider struct {
	secret  string
	baseURL string
}

func New(secret, baseURL string) *Provider {
	return &Provider{secret: secret, baseURL: strings.TrimRight(baseURL, "/")}
}

func (p *Provider) Name() string { return "stub" }

// CreatePayment ignores endpoint; nothing is settled anywhere.
func (p *Provider) CreatePayment(ctx context.Context, endpoint string, req backend.PaymentRequest) (backend.PaymentResponse, error) {
	invoice := uuid.NewString()

	if util.Lower(req.Provider) == "instructions" {
		text, _ := json.Marshal("Transfer the fee to the organizer and mention reference " + invoice + ".")
		return backend.PaymentResponse{
			Status:     "pending",
			PaymentID:  invoice,
			NextAction: &backend.NextAction{Type: "instructions", Instructions: text},
		}, nil
	}

	q := url.Values{}
	q.Set("invoice", invoice)
	q.Set("reg", req.RegistrationID)
	q.Set("provider", req.Provider)
	q.Set("sig", util.HMACSHA256Hex(p.secret, CheckoutMessage(invoice, req.RegistrationID)))

	return backend.PaymentResponse{
		Status:     "pending",
		PaymentID:  invoice,
		NextAction: &backend.NextAction{Type: "redirect", URL: p.baseURL + "/pay/stub?" + q.Encode()},
	}, nil
}

// CheckoutMessage is the signed part of a stub checkout link.
func CheckoutMessage(invoice, registrationID string) string {
	return invoice + ":" + registrationID
}

// ReturnMessage is the signed part of a payment return link.
func ReturnMessage(registrationID, status string) string {
	return registrationID + ":" + status
}
