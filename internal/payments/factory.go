package payments

import (
	"context"
	"fmt"

	"dinnerhop-bot/internal/backend"
	"dinnerhop-bot/internal/config"
	"dinnerhop-bot/internal/payments/stub"
)

// NewCreator picks the payment creator for cfg.PaymentBackend.
func NewCreator(cfg config.Config, api *backend.Client) (Creator, error) {
	switch cfg.PaymentBackend {
	case "api":
		if api == nil {
			return nil, fmt.Errorf("api payment backend needs a backend client")
		}
		return apiCreator{api: api}, nil
	case "stub":
		return stub.New(cfg.PaymentReturnSecret, cfg.PublicURL("")), nil
	default:
		return nil, fmt.Errorf("unknown payment backend: %s", cfg.PaymentBackend)
	}
}

type apiCreator struct {
	api *backend.Client
}

func (apiCreator) Name() string { return "api" }

func (c apiCreator) CreatePayment(ctx context.Context, endpoint string, req backend.PaymentRequest) (backend.PaymentResponse, error) {
	return c.api.CreatePayment(ctx, endpoint, req)
}
