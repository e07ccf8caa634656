package match

import (
	"context"
	"fmt"
	"time"

	buzzDb "github.com/quizparty-games/quizparty/internal/database/buzz/database"
	buzzModel "github.com/quizparty-games/quizparty/internal/database/buzz/model"
	categoryModel "github.com/quizparty-games/quizparty/internal/database/category/model"
	"github.com/quizparty-games/quizparty/internal/logging"
	"github.com/quizparty-games/quizparty/internal/quizparty/resource"
)

type BuzzView struct {
	ParticipantID string    `json:"participantId"`
	Name          string    `json:"name"`
	BuzzedAt      time.Time `json:"buzzedAt"`
}

// Buzz claims the floor for the current question. The conditional insert in
// the buzz store is the race arbiter: whichever concurrent call commits
// first wins, every other one gets a conflict and no broadcast.
func (s *Session) Buzz(ctx context.Context, caller Caller) (*BuzzView, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := requirePlayer(caller); err != nil {
		return nil, err
	}
	if s.state != StateKindQuestion {
		return nil, Errorf(CodeInvalidState, "game is not on a question")
	}

	room, err := s.room()
	if err != nil {
		return nil, err
	}

	question, category, err := s.currentQuestion(room)
	if err != nil {
		return nil, err
	}
	if category.Mode != categoryModel.ModeBuzzer {
		return nil, Errorf(CodeInvalidState, "category is not buzzer mode")
	}

	buzz := buzzModel.Buzz{
		RoomID:        room.ID,
		QuestionID:    question.ID,
		ParticipantID: caller.ParticipantID,
		BuzzedAt:      time.Now(),
	}
	if err := s.Config.Buzzes.Store(buzz); err != nil {
		if err == buzzDb.ErrConflict {
			return nil, Errorf(CodeConflict, "someone already buzzed")
		}
		return nil, fmt.Errorf("store buzz: %w", err)
	}

	p, err := s.Config.Participants.Fetch(caller.ParticipantID)
	if err != nil {
		return nil, fmt.Errorf("fetch participant: %w", err)
	}

	view := BuzzView{ParticipantID: p.ID, Name: p.Name, BuzzedAt: buzz.BuzzedAt}
	s.broadcast(resource.EventPlayerBuzzed, view)
	logging.FromContext(ctx).Named("match.Session").Infof("%s buzzed in room %s", p.Name, s.Config.RoomID)

	return &view, nil
}

// Unlock reopens the buzzer for the current question after a wrong answer.
// Unlocking an already-open buzzer is a no-op.
func (s *Session) Unlock(ctx context.Context, caller Caller) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := requireHost(caller); err != nil {
		return err
	}
	if s.state != StateKindQuestion {
		return Errorf(CodeInvalidState, "game is not on a question")
	}

	return s.unlock(ctx)
}

func (s *Session) unlock(ctx context.Context) error {
	room, err := s.room()
	if err != nil {
		return err
	}

	question, _, err := s.currentQuestion(room)
	if err != nil {
		return err
	}

	if err := s.Config.Buzzes.Delete(room.ID, question.ID); err != nil {
		return fmt.Errorf("delete buzz: %w", err)
	}

	// Drops any auto-unlock still pending for the previous judgement.
	s.generation++

	s.broadcast(resource.EventBuzzerUnlocked, map[string]interface{}{})
	logging.FromContext(ctx).Named("match.Session").Infof("Buzzer unlocked in room %s", s.Config.RoomID)

	return nil
}
