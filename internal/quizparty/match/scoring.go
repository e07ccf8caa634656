package match

import (
	"context"
	"fmt"
	"time"

	answerDb "github.com/quizparty-games/quizparty/internal/database/answer/database"
	answerModel "github.com/quizparty-games/quizparty/internal/database/answer/model"
	categoryModel "github.com/quizparty-games/quizparty/internal/database/category/model"
	"github.com/quizparty-games/quizparty/internal/logging"
	"github.com/quizparty-games/quizparty/internal/quizparty/resource"
)

type JudgementView struct {
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
	Correct       bool   `json:"correct"`
	Points        int    `json:"points"`
	Score         int    `json:"score"`
}

type AnswerView struct {
	ParticipantID string    `json:"participantId"`
	Name          string    `json:"name"`
	Text          string    `json:"text"`
	Judged        bool      `json:"judged"`
	Correct       *bool     `json:"correct,omitempty"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// JudgeBuzzer scores the buzzer winner's spoken answer. A correct verdict
// awards exactly one point and marks the question judged, so a retried
// verdict cannot award twice. A wrong verdict schedules the auto-unlock
// countdown.
func (s *Session) JudgeBuzzer(ctx context.Context, caller Caller, participantID string, correct bool) (*JudgementView, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := requireHost(caller); err != nil {
		return nil, err
	}
	if s.state != StateKindQuestion {
		return nil, Errorf(CodeInvalidState, "game is not on a question")
	}

	room, err := s.room()
	if err != nil {
		return nil, err
	}

	question, _, err := s.currentQuestion(room)
	if err != nil {
		return nil, err
	}

	p, err := s.Config.Participants.Fetch(participantID)
	if err != nil || p.RoomID != room.ID {
		return nil, Errorf(CodeNotFound, "player not in this room")
	}

	points := 0
	if correct {
		if question.Judged {
			return nil, Errorf(CodeConflict, "question already judged")
		}

		points = 1
		p, err = s.Config.Participants.AddScore(participantID, points)
		if err != nil {
			return nil, fmt.Errorf("add score: %w", err)
		}

		if err := s.Config.Questions.MarkJudged(question.ID); err != nil {
			return nil, fmt.Errorf("mark judged: %w", err)
		}
	}

	ranking, err := s.ranking()
	if err != nil {
		return nil, err
	}
	s.broadcast(resource.EventScoresUpdate, map[string]interface{}{"players": ranking})

	view := JudgementView{
		ParticipantID: p.ID,
		Name:          p.Name,
		Correct:       correct,
		Points:        points,
		Score:         p.Score,
	}
	s.broadcast(resource.EventAnswerJudged, view)
	logging.FromContext(ctx).Named("match.Session").
		Infof("Answer judged correct=%v for %s in room %s", correct, p.Name, s.Config.RoomID)

	if !correct && s.Config.UnlockCountdown > 0 {
		s.scheduleLocked(s.Config.UnlockCountdown, func() {
			if err := s.unlock(ctx); err != nil {
				logging.FromContext(ctx).Named("match.Session").Errorf("auto unlock: %v", err)
			}
		})
	}

	return &view, nil
}

// SubmitAnswer records one player's free-text answer; resubmission conflicts.
func (s *Session) SubmitAnswer(ctx context.Context, caller Caller, text string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := requirePlayer(caller); err != nil {
		return err
	}
	if s.state != StateKindQuestion {
		return Errorf(CodeInvalidState, "game is not on a question")
	}

	room, err := s.room()
	if err != nil {
		return err
	}

	question, category, err := s.currentQuestion(room)
	if err != nil {
		return err
	}
	if category.Mode != categoryModel.ModeFreeText {
		return Errorf(CodeInvalidState, "category is not free-text mode")
	}

	answer := answerModel.TextAnswer{
		RoomID:        room.ID,
		QuestionID:    question.ID,
		ParticipantID: caller.ParticipantID,
		Text:          text,
		SubmittedAt:   time.Now(),
	}
	if err := s.Config.Answers.Store(answer); err != nil {
		if err == answerDb.ErrConflict {
			return Errorf(CodeConflict, "answer already submitted")
		}
		return fmt.Errorf("store answer: %w", err)
	}

	s.broadcast(resource.EventAnswerSubmitted, map[string]interface{}{
		"participantId": caller.ParticipantID,
	})

	return nil
}

// FetchAnswers lists the current question's submissions for the host view.
func (s *Session) FetchAnswers(ctx context.Context, caller Caller) ([]AnswerView, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := requireHost(caller); err != nil {
		return nil, err
	}
	if s.state != StateKindQuestion {
		return nil, Errorf(CodeInvalidState, "game is not on a question")
	}

	room, err := s.room()
	if err != nil {
		return nil, err
	}

	question, _, err := s.currentQuestion(room)
	if err != nil {
		return nil, err
	}

	answers, err := s.Config.Answers.FetchByQuestion(room.ID, question.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch answers: %w", err)
	}

	views := make([]AnswerView, 0, len(answers))
	for _, a := range answers {
		name := ""
		if p, err := s.Config.Participants.Fetch(a.ParticipantID); err == nil {
			name = p.Name
		}
		views = append(views, AnswerView{
			ParticipantID: a.ParticipantID,
			Name:          name,
			Text:          a.Text,
			Judged:        a.Judged,
			Correct:       a.Correct,
			SubmittedAt:   a.SubmittedAt,
		})
	}

	return views, nil
}

// JudgeTextAnswers bulk-judges every submission for the current question:
// members of correctIDs score one point each, everyone else none. The whole
// batch is at-most-once; a second invocation conflicts.
func (s *Session) JudgeTextAnswers(ctx context.Context, caller Caller, correctIDs []string) ([]JudgementView, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := requireHost(caller); err != nil {
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
	if category.Mode != categoryModel.ModeFreeText {
		return nil, Errorf(CodeInvalidState, "category is not free-text mode")
	}
	if question.Judged {
		return nil, Errorf(CodeConflict, "question already judged")
	}

	correct := make(map[string]bool, len(correctIDs))
	for _, id := range correctIDs {
		correct[id] = true
	}

	judged, err := s.Config.Answers.Judge(room.ID, question.ID, correct, 1)
	if err != nil {
		if err == answerDb.ErrConflict {
			return nil, Errorf(CodeConflict, "answers already judged")
		}
		return nil, fmt.Errorf("judge answers: %w", err)
	}

	views := make([]JudgementView, 0, len(judged))
	for _, a := range judged {
		p, err := s.Config.Participants.Fetch(a.ParticipantID)
		if err != nil {
			return nil, fmt.Errorf("fetch participant: %w", err)
		}

		if a.Correct != nil && *a.Correct {
			p, err = s.Config.Participants.AddScore(a.ParticipantID, *a.Points)
			if err != nil {
				return nil, fmt.Errorf("add score: %w", err)
			}
		}

		views = append(views, JudgementView{
			ParticipantID: p.ID,
			Name:          p.Name,
			Correct:       a.Correct != nil && *a.Correct,
			Points:        pointsOf(a),
			Score:         p.Score,
		})
	}

	if err := s.Config.Questions.MarkJudged(question.ID); err != nil {
		return nil, fmt.Errorf("mark judged: %w", err)
	}

	ranking, err := s.ranking()
	if err != nil {
		return nil, err
	}
	s.broadcast(resource.EventScoresUpdate, map[string]interface{}{"players": ranking})
	s.broadcast(resource.EventAnswersJudged, map[string]interface{}{"results": views})
	logging.FromContext(ctx).Named("match.Session").
		Infof("Judged %d text answers in room %s", len(views), s.Config.RoomID)

	return views, nil
}

func pointsOf(a answerModel.TextAnswer) int {
	if a.Points == nil {
		return 0
	}
	return *a.Points
}
