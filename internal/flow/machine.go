// Package flow is the state machine behind the registration dialog of one
// chat. The dialog collects a form step by step, submits it and, when the
// platform offers several payment providers, waits for a choice.
package flow

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"dinnerhop-bot/internal/models"
)

type State string

const (
	StateClosed         State = "closed"
	StateFormSolo       State = "form_solo"
	StateFormTeam       State = "form_team"
	StateSubmitting     State = "submitting"
	StateProviderChoice State = "provider_choice"
	StateDone           State = "done"
)

// transitions lists the allowed targets per state. Closing is always
// allowed and handled by Close.
var transitions = map[State][]State{
	StateClosed:         {StateFormSolo, StateFormTeam},
	StateFormSolo:       {StateFormTeam, StateSubmitting},
	StateFormTeam:       {StateFormSolo, StateSubmitting},
	StateSubmitting:     {StateProviderChoice, StateDone, StateFormSolo, StateFormTeam},
	StateProviderChoice: {StateDone},
	StateDone:           {},
}

func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type TransitionError struct {
	From, To State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("flow: %s -> %s not allowed", e.From, e.To)
}

// Machine is safe for concurrent use. Data holds the answers collected so
// far; it survives failed submissions so the user can retry.
type Machine struct {
	mu sync.Mutex

	state    State
	mode     models.Mode
	eventID  string
	title    string
	feeCents int64
	step     int
	data     map[string]string
	key      string
}

func New() *Machine {
	return &Machine{state: StateClosed, data: map[string]string{}}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Open starts a new dialog for an event. An open dialog is replaced.
func (m *Machine) Open(ev models.Event, mode models.Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	target := formState(mode)
	if target == "" {
		return fmt.Errorf("flow: unknown mode %q", mode)
	}
	m.reset()
	m.state = target
	m.mode = mode
	m.eventID = ev.ID
	m.title = ev.Title
	m.feeCents = ev.FeeCents
	m.key = uuid.NewString()
	return nil
}

// SwitchMode flips between the solo and team form, keeping shared answers.
func (m *Machine) SwitchMode(mode models.Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.to(formState(mode)); err != nil {
		return err
	}
	m.mode = mode
	m.step = 0
	return nil
}

func (m *Machine) To(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.to(next)
}

func (m *Machine) to(next State) error {
	if !CanTransition(m.state, next) {
		return &TransitionError{From: m.state, To: next}
	}
	m.state = next
	return nil
}

// BackToForm returns from a failed submission to the form it came from.
func (m *Machine) BackToForm() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateSubmitting {
		return &TransitionError{From: m.state, To: formState(m.mode)}
	}
	m.state = formState(m.mode)
	return nil
}

// Close ends the dialog from any state and drops the collected answers.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
}

func (m *Machine) reset() {
	m.state = StateClosed
	m.mode = ""
	m.eventID, m.title, m.key = "", "", ""
	m.feeCents = 0
	m.step = 0
	m.data = map[string]string{}
}

// Mode reports which form is or was last active.
func (m *Machine) Mode() models.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

func formState(mode models.Mode) State {
	switch mode {
	case models.ModeSolo:
		return StateFormSolo
	case models.ModeTeam:
		return StateFormTeam
	default:
		return ""
	}
}

// Snapshot is a consistent copy of the dialog.
type Snapshot struct {
	State          State
	Mode           models.Mode
	EventID        string
	EventTitle     string
	FeeCents       int64
	Step           int
	Data           map[string]string
	IdempotencyKey string
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	data := make(map[string]string, len(m.data))
	for k, v := range m.data {
		data[k] = v
	}
	return Snapshot{
		State:          m.state,
		Mode:           m.mode,
		EventID:        m.eventID,
		EventTitle:     m.title,
		FeeCents:       m.feeCents,
		Step:           m.step,
		Data:           data,
		IdempotencyKey: m.key,
	}
}

// Answer stores the value for the current step and moves to the next one.
func (m *Machine) Answer(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.step++
}
