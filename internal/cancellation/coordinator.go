// Package cancellation decides which cancel route applies to a registration
// and calls it.
package cancellation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"dinnerhop-bot/internal/journal"
	"dinnerhop-bot/internal/models"
	"dinnerhop-bot/internal/status"
	"dinnerhop-bot/internal/util"
)

type Kind string

const (
	KindNone        Kind = "none"
	KindSolo        Kind = "solo"
	KindTeamCreator Kind = "team_creator"
	KindTeamMember  Kind = "team_member"
)

// Plan is the cancel route for one registration. KindNone means no cancel
// control is offered.
type Plan struct {
	Kind           Kind
	RegistrationID string
	TeamID         string
	EventID        string
}

// Prompt is the confirmation question for the plan.
func (p Plan) Prompt() string {
	switch p.Kind {
	case KindSolo:
		return "Cancel your registration? This cannot be undone."
	case KindTeamCreator:
		return "Cancel the whole team? Every member's registration is cancelled and they are notified."
	case KindTeamMember:
		return "Leave the team? Only your own participation is cancelled; the team creator is notified."
	default:
		return ""
	}
}

type API interface {
	Team(ctx context.Context, teamID string) (models.Team, error)
	CancelRegistration(ctx context.Context, registrationID string) error
	CancelTeam(ctx context.Context, teamID string) error
	CancelTeamMember(ctx context.Context, teamID, registrationID string) error
}

var ErrNothingToCancel = errors.New("nothing to cancel")

type Coordinator struct {
	api     API
	journal journal.Recorder
}

func New(api API, rec journal.Recorder) *Coordinator {
	if rec == nil {
		rec = journal.Noop{}
	}
	return &Coordinator{api: api, journal: rec}
}

// Plan resolves the caller's role. When the role cannot be established the
// plan is KindNone and the error says why.
func (c *Coordinator) Plan(ctx context.Context, reg models.Registration, userEmail string) (Plan, error) {
	plan := Plan{Kind: KindNone, RegistrationID: reg.ID, TeamID: reg.TeamID, EventID: reg.EventID}
	if status.Terminal(reg) {
		return plan, nil
	}
	if reg.Mode != models.ModeTeam {
		plan.Kind = KindSolo
		return plan, nil
	}

	if strings.TrimSpace(reg.TeamID) == "" {
		return plan, fmt.Errorf("registration %s: team id missing", reg.ID)
	}
	if strings.TrimSpace(userEmail) == "" {
		return plan, fmt.Errorf("registration %s: acting user unknown", reg.ID)
	}
	team, err := c.api.Team(ctx, reg.TeamID)
	if err != nil {
		return plan, fmt.Errorf("team %s: %w", reg.TeamID, err)
	}
	if util.SameEmail(team.CreatedByEmail, userEmail) {
		plan.Kind = KindTeamCreator
	} else {
		plan.Kind = KindTeamMember
	}
	return plan, nil
}

func (c *Coordinator) Cancel(ctx context.Context, plan Plan) error {
	var err error
	switch plan.Kind {
	case KindSolo:
		err = c.api.CancelRegistration(ctx, plan.RegistrationID)
	case KindTeamCreator:
		err = c.api.CancelTeam(ctx, plan.TeamID)
	case KindTeamMember:
		err = c.api.CancelTeamMember(ctx, plan.TeamID, plan.RegistrationID)
	default:
		return ErrNothingToCancel
	}
	if err != nil {
		log.Printf("cancellation: %s %s: %v", plan.Kind, plan.RegistrationID, err)
		return err
	}
	journal.Log(ctx, c.journal, journal.Entry{
		Kind:           journal.KindCancelled,
		RegistrationID: plan.RegistrationID,
		EventID:        plan.EventID,
		Detail:         string(plan.Kind),
	})
	return nil
}
