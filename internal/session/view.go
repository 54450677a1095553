// Package session holds what one chat knows while it is logged in: its
// backend client, provider catalog, acting profile and dialog state. A new
// login starts a new view with nothing cached.
package session

import (
	"context"
	"sync"
	"time"

	"dinnerhop-bot/internal/backend"
	"dinnerhop-bot/internal/confirm"
	"dinnerhop-bot/internal/flow"
	"dinnerhop-bot/internal/models"
	"dinnerhop-bot/internal/payments"
)

type View struct {
	ChatID   int64
	API      *backend.Client
	Resolver *payments.Resolver
	Flow     *flow.Machine

	mu       sync.Mutex
	profile  *models.Profile
	confirms map[string]*confirm.Control
}

func NewView(chatID int64, api *backend.Client, fallbackProviders []string) *View {
	return &View{
		ChatID:   chatID,
		API:      api,
		Resolver: payments.NewResolver(api, fallbackProviders),
		Flow:     flow.New(),
		confirms: map[string]*confirm.Control{},
	}
}

// Profile returns the acting profile, loading it on first use. Failures
// are not cached.
func (v *View) Profile(ctx context.Context) (models.Profile, error) {
	v.mu.Lock()
	if v.profile != nil {
		p := *v.profile
		v.mu.Unlock()
		return p, nil
	}
	v.mu.Unlock()

	p, err := v.API.Profile(ctx)
	if err != nil {
		return models.Profile{}, err
	}
	v.mu.Lock()
	v.profile = &p
	v.mu.Unlock()
	return p, nil
}

// Confirm returns the confirmation control for key, creating it idle.
func (v *View) Confirm(key string) *confirm.Control {
	v.mu.Lock()
	defer v.mu.Unlock()
	c, ok := v.confirms[key]
	if !ok {
		c = confirm.New()
		v.confirms[key] = c
	}
	return c
}

// Store maps chats to their current view.
type Store struct {
	baseURL  string
	timeout  time.Duration
	fallback []string

	mu    sync.Mutex
	views map[int64]*View
}

func NewStore(baseURL string, timeout time.Duration, fallbackProviders []string) *Store {
	return &Store{
		baseURL:  baseURL,
		timeout:  timeout,
		fallback: append([]string(nil), fallbackProviders...),
		views:    map[int64]*View{},
	}
}

// Login replaces the chat's view with a fresh one for token.
func (s *Store) Login(chatID int64, token string) *View {
	v := NewView(chatID, backend.New(s.baseURL, token, s.timeout), s.fallback)
	s.mu.Lock()
	s.views[chatID] = v
	s.mu.Unlock()
	return v
}

func (s *Store) Get(chatID int64) (*View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.views[chatID]
	return v, ok
}

// Drop forgets the chat's view, e.g. after the session expired.
func (s *Store) Drop(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.views, chatID)
}
