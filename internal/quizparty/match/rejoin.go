package match

import (
	"context"
	"fmt"

	buzzDb "github.com/quizparty-games/quizparty/internal/database/buzz/database"
	questionDb "github.com/quizparty-games/quizparty/internal/database/question/database"
	roomModel "github.com/quizparty-games/quizparty/internal/database/room/model"
)

// Snapshot is a full point-in-time view of the room for a reconnecting
// participant.
type Snapshot struct {
	RoomID   string           `json:"roomId"`
	Code     string           `json:"code"`
	Status   roomModel.Status `json:"status"`
	Category *CategoryView    `json:"category,omitempty"`
	Question *QuestionView    `json:"question,omitempty"`
	Players  []RosterEntry    `json:"players"`

	BuzzerLocked bool         `json:"buzzerLocked"`
	BuzzerWinner *RosterEntry `json:"buzzerWinner,omitempty"`
}

// Snapshot projects the room's current state without mutating it. Safe to
// call any number of times.
func (s *Session) Snapshot(ctx context.Context) (*Snapshot, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	room, err := s.room()
	if err != nil {
		return nil, err
	}

	players, err := s.Config.Participants.Ranking(room.ID)
	if err != nil {
		return nil, fmt.Errorf("ranking: %w", err)
	}

	snapshot := &Snapshot{
		RoomID:  room.ID,
		Code:    room.Code,
		Status:  room.Status,
		Players: make([]RosterEntry, 0, len(players)),
	}
	for _, p := range players {
		snapshot.Players = append(snapshot.Players, rosterEntry(p))
	}

	if room.Status != roomModel.StatusPlaying || room.CurrCategoryIdx >= len(room.CategoryIDs) {
		return snapshot, nil
	}

	category, err := s.Config.Categories.Fetch(room.CategoryIDs[room.CurrCategoryIdx])
	if err != nil {
		return nil, fmt.Errorf("fetch category: %w", err)
	}
	cv := categoryView(category)
	snapshot.Category = &cv

	question, err := s.Config.Questions.FetchByOrder(room.ID, category.ID, room.CurrQuestionIdx)
	if err != nil {
		if err == questionDb.ErrNotFound {
			// Category intro is still up; no question instantiated yet.
			return snapshot, nil
		}
		return nil, fmt.Errorf("fetch question: %w", err)
	}
	qv := questionView(question)
	snapshot.Question = &qv

	buzz, err := s.Config.Buzzes.Fetch(room.ID, question.ID)
	if err != nil {
		if err == buzzDb.ErrNotFound {
			return snapshot, nil
		}
		return nil, fmt.Errorf("fetch buzz: %w", err)
	}

	snapshot.BuzzerLocked = true
	if p, err := s.Config.Participants.Fetch(buzz.ParticipantID); err == nil {
		entry := rosterEntry(p)
		snapshot.BuzzerWinner = &entry
	}

	return snapshot, nil
}
