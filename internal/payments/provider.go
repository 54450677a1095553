package payments

import (
	"context"
	"errors"

	"dinnerhop-bot/internal/backend"
	"dinnerhop-bot/internal/models"
)

// Creator starts a payment for a registration with one provider.
type Creator interface {
	Name() string

	// CreatePayment posts to endpoint, or to the canonical creation route
	// when endpoint is empty.
	CreatePayment(ctx context.Context, endpoint string, req backend.PaymentRequest) (backend.PaymentResponse, error)
}

// ProviderSource lists the providers the platform accepts.
type ProviderSource interface {
	Providers(ctx context.Context) (models.ProviderCatalog, error)
}

// CatalogResolver is satisfied by *Resolver.
type CatalogResolver interface {
	Resolve(ctx context.Context) models.ProviderCatalog
}

// Chooser asks the user to pick one of providers. def is preselected.
// Implementations return ErrChoiceDismissed when the user closes the
// choice without picking.
type Chooser interface {
	ChooseProvider(ctx context.Context, registrationID string, providers []string, def string) (string, error)
}

var ErrChoiceDismissed = errors.New("provider choice dismissed")
