// Package journal is the write-only audit trail of lifecycle events. It is
// never read back to derive registration state.
package journal

import (
	"context"
	"log"
	"sync"
	"time"
)

type Kind string

const (
	KindRegistered         Kind = "registered"
	KindPaymentStarted     Kind = "payment_started"
	KindPaymentReturned    Kind = "payment_returned"
	KindCancelled          Kind = "cancelled"
	KindInvitationAccepted Kind = "invitation_accepted"
	KindInvitationDeclined Kind = "invitation_declined"
)

type Entry struct {
	At             time.Time
	ChatID         int64
	Kind           Kind
	RegistrationID string
	EventID        string
	Provider       string
	Outcome        string
	Detail         string
}

type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

type Noop struct{}

func (Noop) Record(context.Context, Entry) error { return nil }

// recordTimeout bounds one write to a sink.
const recordTimeout = 30 * time.Second

// Log hands e to r in the background and only logs failures. Callers never
// wait for the sink; e.At orders entries that land out of order.
func Log(ctx context.Context, r Recorder, e Entry) {
	if r == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, recordTimeout)
		defer cancel()
		if err := r.Record(ctx, e); err != nil {
			log.Printf("journal: %s %s: %v", e.Kind, e.RegistrationID, err)
		}
	}()
}

// Memory keeps entries in process memory.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *Memory) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}
