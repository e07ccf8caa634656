package model

import "time"

// TextAnswer is one player's submission for a free-text question. At most one
// exists per (room, question, participant).
type TextAnswer struct {
	RoomID        string `json:"roomId"`
	QuestionID    string `json:"questionId"`
	ParticipantID string `json:"participantId"`
	Text          string `json:"text"`

	Judged  bool  `json:"judged"`
	Correct *bool `json:"correct,omitempty"`
	Points  *int  `json:"points,omitempty"`

	SubmittedAt time.Time `json:"submittedAt"`
}
