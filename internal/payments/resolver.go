package payments

import (
	"context"
	"errors"
	"log"
	"sync"

	"golang.org/x/sync/singleflight"

	"dinnerhop-bot/internal/models"
)

var errEmptyCatalog = errors.New("empty provider catalog")

// Resolver fetches the provider catalog once per session view. Failures
// fall back to a configured catalog and are retried on the next call.
type Resolver struct {
	src      ProviderSource
	fallback models.ProviderCatalog

	group singleflight.Group

	mu     sync.Mutex
	cached *models.ProviderCatalog
}

func NewResolver(src ProviderSource, fallback []string) *Resolver {
	fb := models.ProviderCatalog{Providers: fallback}.Normalize()
	if len(fb.Providers) == 0 {
		fb = models.ProviderCatalog{Providers: []string{"instructions"}, Default: "instructions"}
	}
	return &Resolver{src: src, fallback: fb}
}

// Resolve never fails. Concurrent callers share one fetch.
func (r *Resolver) Resolve(ctx context.Context) models.ProviderCatalog {
	r.mu.Lock()
	if r.cached != nil {
		c := r.cached.Clone()
		r.mu.Unlock()
		return c
	}
	r.mu.Unlock()

	// the shared fetch must not die with the first caller's context
	fetchCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan("providers", func() (any, error) {
		cat, err := r.src.Providers(fetchCtx)
		if err != nil {
			return nil, err
		}
		cat = cat.Normalize()
		if len(cat.Providers) == 0 {
			return nil, errEmptyCatalog
		}
		r.mu.Lock()
		r.cached = &cat
		r.mu.Unlock()
		return cat, nil
	})

	select {
	case <-ctx.Done():
		return r.fallback.Clone()
	case res := <-ch:
		if res.Err != nil {
			log.Printf("payments: provider list unavailable, using fallback %v: %v", r.fallback.Providers, res.Err)
			return r.fallback.Clone()
		}
		return res.Val.(models.ProviderCatalog).Clone()
	}
}
