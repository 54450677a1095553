package payments

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/stripe/stripe-go/v83"

	"dinnerhop-bot/internal/backend"
	"dinnerhop-bot/internal/util"
)

// action is what the user has to do after a payment was created.
type action struct {
	outcome      Outcome
	url          string
	instructions string
}

// resolveAction reads next_action first and then the top-level fallbacks.
// ok is false when the response carries nothing usable.
func resolveAction(resp backend.PaymentResponse) (action, bool) {
	if util.Lower(resp.Status) == "no_payment_required" {
		return action{outcome: OutcomeNoPaymentRequired}, true
	}

	if na := resp.NextAction; na != nil {
		switch util.Lower(na.Type) {
		case "redirect":
			if u := firstNonEmpty(na.URL, na.Approval()); u != "" {
				return action{outcome: OutcomeRedirected, url: u}, true
			}
		case "paypal_order":
			if u := na.Approval(); u != "" {
				return action{outcome: OutcomeRedirected, url: u}, true
			}
		case "instructions":
			if text := renderInstructions(na.Instructions); text != "" {
				return action{outcome: OutcomeInstructions, instructions: text}, true
			}
			if text := renderInstructions(resp.Instructions); text != "" {
				return action{outcome: OutcomeInstructions, instructions: text}, true
			}
		case "redirect_to_url", "display_bank_transfer_instructions":
			if a, ok := stripeAction(na.Raw); ok {
				return a, true
			}
		}
	}

	if u := strings.TrimSpace(resp.PaymentLink); u != "" {
		return action{outcome: OutcomeRedirected, url: u}, true
	}
	if text := renderInstructions(resp.Instructions); text != "" {
		return action{outcome: OutcomeInstructions, instructions: text}, true
	}
	return action{}, false
}

// stripeAction decodes a next_action forwarded unchanged from a Stripe
// PaymentIntent.
func stripeAction(raw json.RawMessage) (action, bool) {
	if len(raw) == 0 {
		return action{}, false
	}
	var na stripe.PaymentIntentNextAction
	if err := json.Unmarshal(raw, &na); err != nil {
		return action{}, false
	}
	switch string(na.Type) {
	case "redirect_to_url":
		if na.RedirectToURL != nil && na.RedirectToURL.URL != "" {
			return action{outcome: OutcomeRedirected, url: na.RedirectToURL.URL}, true
		}
	case "display_bank_transfer_instructions":
		bt := na.DisplayBankTransferInstructions
		if bt == nil {
			return action{}, false
		}
		var lines []string
		if bt.Reference != "" {
			lines = append(lines, "Reference: "+bt.Reference)
		}
		if bt.HostedInstructionsURL != "" {
			lines = append(lines, "Details: "+bt.HostedInstructionsURL)
		}
		if len(lines) == 0 {
			return action{}, false
		}
		return action{outcome: OutcomeInstructions, instructions: "Please pay by bank transfer.\n" + strings.Join(lines, "\n")}, true
	}
	return action{}, false
}

// renderInstructions turns a string or a flat object into chat text.
func renderInstructions(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return trimmed
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var lines []string
	for _, k := range keys {
		v := obj[k]
		var text string
		switch vv := v.(type) {
		case nil:
			continue
		case string:
			text = vv
		case float64:
			text = strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", vv), "0"), ".")
		case bool:
			text = fmt.Sprint(vv)
		default:
			b, _ := json.Marshal(vv)
			text = string(b)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		lines = append(lines, humanize(k)+": "+text)
	}
	return strings.Join(lines, "\n")
}

func humanize(key string) string {
	key = strings.ReplaceAll(strings.TrimSpace(key), "_", " ")
	if key == "" {
		return key
	}
	return strings.ToUpper(key[:1]) + key[1:]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
