package payments

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dinnerhop-bot/internal/models"
)

type fakeSource struct {
	calls atomic.Int32
	gate  chan struct{}
	cat   models.ProviderCatalog
	err   error
}

func (f *fakeSource) Providers(ctx context.Context) (models.ProviderCatalog, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	return f.cat, f.err
}

func TestResolverFallbackOnFailureIsNotMemoized(t *testing.T) {
	src := &fakeSource{err: errors.New("boom")}
	r := NewResolver(src, []string{"instructions"})

	cat := r.Resolve(context.Background())
	require.Equal(t, []string{"instructions"}, cat.Providers)
	require.Equal(t, "instructions", cat.Default)

	src.err = nil
	src.cat = models.ProviderCatalog{Providers: []string{"PayPal", "stripe"}, Default: "wero"}
	cat = r.Resolve(context.Background())
	require.Equal(t, []string{"paypal", "stripe"}, cat.Providers)
	require.Equal(t, "paypal", cat.Default)
	require.EqualValues(t, 2, src.calls.Load())
}

func TestResolverMemoizesSuccess(t *testing.T) {
	src := &fakeSource{cat: models.ProviderCatalog{Providers: []string{"stripe"}}}
	r := NewResolver(src, nil)

	first := r.Resolve(context.Background())
	first.Providers[0] = "mutated"

	second := r.Resolve(context.Background())
	require.Equal(t, []string{"stripe"}, second.Providers)
	require.EqualValues(t, 1, src.calls.Load())
}

func TestResolverSharesInFlightFetch(t *testing.T) {
	src := &fakeSource{gate: make(chan struct{}), cat: models.ProviderCatalog{Providers: []string{"paypal", "stripe"}, Default: "stripe"}}
	r := NewResolver(src, nil)

	var wg sync.WaitGroup
	results := make([]models.ProviderCatalog, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Resolve(context.Background())
		}(i)
	}
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)
	close(src.gate)
	wg.Wait()

	for _, cat := range results {
		require.Equal(t, "stripe", cat.Default)
	}
	require.EqualValues(t, 1, src.calls.Load())
}

func TestResolverCancelledWaitGetsFallback(t *testing.T) {
	src := &fakeSource{gate: make(chan struct{}), cat: models.ProviderCatalog{Providers: []string{"stripe"}}}
	r := NewResolver(src, []string{"Instructions"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cat := r.Resolve(ctx)
	require.Equal(t, []string{"instructions"}, cat.Providers)

	close(src.gate)
	require.Eventually(t, func() bool {
		return r.Resolve(context.Background()).Default == "stripe"
	}, time.Second, 5*time.Millisecond)
}

func TestResolverEmptyCatalogUsesFallback(t *testing.T) {
	src := &fakeSource{cat: models.ProviderCatalog{}}
	r := NewResolver(src, []string{"instructions"})
	require.Equal(t, "instructions", r.Resolve(context.Background()).Default)
}
