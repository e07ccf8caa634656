package match

import (
	"context"
	"fmt"

	participantModel "github.com/quizparty-games/quizparty/internal/database/participant/model"
	punishmentModel "github.com/quizparty-games/quizparty/internal/database/punishment/model"
	"github.com/quizparty-games/quizparty/internal/logging"
	"github.com/quizparty-games/quizparty/internal/quizparty/resource"
)

type chanceStage uint8

const (
	chanceStageDrawPlayer chanceStage = iota + 1
	chanceStageDecision
	chanceStageReward
	chanceStageApply
)

const (
	OutcomeTypePoints  = "points"
	OutcomeTypePenalty = "penalty"
)

// ChanceOutcome is what the wheel landed on. Not persisted; it only lives
// until Apply hands it to the ledger or the punishment table.
type ChanceOutcome struct {
	Type        string `json:"type"`
	Points      int    `json:"points,omitempty"`
	Label       string `json:"label,omitempty"`
	Description string `json:"description,omitempty"`
	Questions   int    `json:"questions,omitempty"`
}

type chanceState struct {
	stage     chanceStage
	drawnID   string
	drawnName string
	outcome   *ChanceOutcome
}

type DrawnPlayerView struct {
	ParticipantID string `json:"participantId,omitempty"`
	Name          string `json:"name,omitempty"`
	Skipped       bool   `json:"skipped,omitempty"`
}

// DrawPlayer picks the chance candidate uniformly among the room's players.
// The draw is announced but nothing is applied until the player decides.
func (s *Session) DrawPlayer(ctx context.Context, caller Caller) (*DrawnPlayerView, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := requireHost(caller); err != nil {
		return nil, err
	}
	if s.state != StateKindChance || s.chance == nil || s.chance.stage != chanceStageDrawPlayer {
		return nil, Errorf(CodeInvalidState, "no player draw pending")
	}

	all, err := s.Config.Participants.FetchByRoom(s.Config.RoomID)
	if err != nil {
		return nil, fmt.Errorf("fetch participants: %w", err)
	}

	var players []participantModel.Participant
	for _, p := range all {
		if p.Role == participantModel.RolePlayer {
			players = append(players, p)
		}
	}

	if len(players) == 0 {
		// Nobody to draw; abandon the sub-flow and let the advance finish.
		if err := s.resume(ctx); err != nil {
			return nil, err
		}
		return &DrawnPlayerView{Skipped: true}, nil
	}

	drawn := players[s.Config.Rand.Uint32n(uint32(len(players)))]
	s.chance.drawnID = drawn.ID
	s.chance.drawnName = drawn.Name
	s.chance.stage = chanceStageDecision

	view := DrawnPlayerView{ParticipantID: drawn.ID, Name: drawn.Name}
	s.announce(resource.EventChancePlayerDrawn, view)
	logging.FromContext(ctx).Named("match.Session").
		Infof("Chance drew %s in room %s", drawn.Name, s.Config.RoomID)

	return &view, nil
}

// Decide is the drawn player's accept-or-pass call. Passing ends the
// sub-flow with no state change and the suspended advance completes.
func (s *Session) Decide(ctx context.Context, caller Caller, accept bool) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.state != StateKindChance || s.chance == nil || s.chance.stage != chanceStageDecision {
		return Errorf(CodeInvalidState, "no chance decision pending")
	}
	if caller.ParticipantID != s.chance.drawnID {
		return Errorf(CodePermissionDenied, "only the drawn player can decide")
	}

	s.broadcast(resource.EventChanceDecided, map[string]interface{}{
		"participantId": caller.ParticipantID,
		"accepted":      accept,
	})

	if !accept {
		return s.resume(ctx)
	}

	s.chance.stage = chanceStageReward
	return nil
}

// DrawReward spins the wheel: a coin flip between the weighted point table
// and a uniform penalty draw.
func (s *Session) DrawReward(ctx context.Context, caller Caller) (*ChanceOutcome, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := requireHost(caller); err != nil {
		return nil, err
	}
	if s.state != StateKindChance || s.chance == nil || s.chance.stage != chanceStageReward {
		return nil, Errorf(CodeInvalidState, "no reward draw pending")
	}

	var outcome ChanceOutcome
	if s.Config.Rand.Uint32n(2) == 0 {
		slot := resource.WheelSlots[s.Config.Rand.Uint32n(uint32(len(resource.WheelSlots)))]
		outcome = ChanceOutcome{Type: OutcomeTypePoints, Points: slot.Points, Label: slot.Label}
	} else {
		penalty := resource.Penalties[s.Config.Rand.Uint32n(uint32(len(resource.Penalties)))]
		outcome = ChanceOutcome{
			Type:        OutcomeTypePenalty,
			Description: penalty.Description,
			Questions:   penalty.Questions,
		}
	}

	s.chance.outcome = &outcome
	s.chance.stage = chanceStageApply

	s.announce(resource.EventChanceRewardDrawn, map[string]interface{}{
		"participantId": s.chance.drawnID,
		"outcome":       outcome,
	})
	logging.FromContext(ctx).Named("match.Session").
		Infof("Chance reward %s drawn in room %s", outcome.Type, s.Config.RoomID)

	return &outcome, nil
}

// Apply credits the point outcome to the ledger or creates the punishment,
// then lets the suspended advance complete.
func (s *Session) Apply(ctx context.Context, caller Caller) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := requireHost(caller); err != nil {
		return err
	}
	if s.state != StateKindChance || s.chance == nil || s.chance.stage != chanceStageApply {
		return Errorf(CodeInvalidState, "no chance outcome to apply")
	}

	outcome := *s.chance.outcome
	drawnID := s.chance.drawnID

	switch outcome.Type {
	case OutcomeTypePoints:
		if _, err := s.Config.Participants.AddScore(drawnID, outcome.Points); err != nil {
			return fmt.Errorf("add score: %w", err)
		}

		ranking, err := s.ranking()
		if err != nil {
			return err
		}
		s.broadcast(resource.EventScoresUpdate, map[string]interface{}{"players": ranking})
	case OutcomeTypePenalty:
		punishment := punishmentModel.ActivePunishment{
			RoomID:        s.Config.RoomID,
			ParticipantID: drawnID,
			Description:   outcome.Description,
			Remaining:     outcome.Questions,
		}
		if err := s.Config.Punishments.Store(punishment); err != nil {
			return fmt.Errorf("store punishment: %w", err)
		}
	}

	s.broadcast(resource.EventChanceApplied, map[string]interface{}{
		"participantId": drawnID,
		"outcome":       outcome,
	})
	logging.FromContext(ctx).Named("match.Session").
		Infof("Chance outcome applied to %s in room %s", s.chance.drawnName, s.Config.RoomID)

	return s.resume(ctx)
}

// resume ends the chance sub-flow and completes the advance it suspended.
func (s *Session) resume(ctx context.Context) error {
	s.chance = nil
	s.transition(StateKindQuestion)

	if !s.pendingAdvance {
		return nil
	}
	s.pendingAdvance = false

	_, err := s.progress(ctx)
	return err
}

// announce broadcasts now, or after the configured suspense window. A stale
// announcement — the room moved on first — is dropped, not delivered late.
func (s *Session) announce(event string, payload interface{}) {
	if s.Config.RevealDelay <= 0 {
		s.broadcast(event, payload)
		return
	}

	s.scheduleLocked(s.Config.RevealDelay, func() {
		s.broadcast(event, payload)
	})
}
