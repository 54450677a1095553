// Package confirm is the two-step confirmation guard used in front of
// irreversible actions such as cancellation and declining an invitation.
package confirm

import (
	"context"
	"errors"
	"sync"
)

type State string

const (
	StateIdle       State = "idle"
	StateConfirming State = "confirming"
	StateInFlight   State = "in_flight"
	StateDone       State = "done"
)

var (
	ErrNotConfirming = errors.New("confirmation was not requested")
	ErrBusy          = errors.New("action already in progress")
	ErrDone          = errors.New("action already completed")
)

// Control moves idle -> confirming -> in_flight -> done. A failed action
// returns to idle with the error kept for display. done is final.
type Control struct {
	mu      sync.Mutex
	state   State
	lastErr error
}

func New() *Control {
	return &Control{state: StateIdle}
}

func (c *Control) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Control) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Request is the first click. It is a no-op while confirming.
func (c *Control) Request() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateDone:
		return ErrDone
	case StateInFlight:
		return ErrBusy
	}
	c.state = StateConfirming
	c.lastErr = nil
	return nil
}

// Abort backs out of a pending confirmation.
func (c *Control) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateConfirming {
		c.state = StateIdle
	}
}

// Confirm is the second click. action runs at most once at a time and
// never after it has succeeded.
func (c *Control) Confirm(ctx context.Context, action func(context.Context) error) error {
	c.mu.Lock()
	switch c.state {
	case StateDone:
		c.mu.Unlock()
		return ErrDone
	case StateInFlight:
		c.mu.Unlock()
		return ErrBusy
	case StateIdle:
		c.mu.Unlock()
		return ErrNotConfirming
	}
	c.state = StateInFlight
	c.mu.Unlock()

	err := action(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateIdle
		c.lastErr = err
		return err
	}
	c.state = StateDone
	c.lastErr = nil
	return nil
}
