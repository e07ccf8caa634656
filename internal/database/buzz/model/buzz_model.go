package model

import "time"

// Buzz records the exclusive floor winner for a (room, question) pair.
type Buzz struct {
	RoomID        string    `json:"roomId"`
	QuestionID    string    `json:"questionId"`
	ParticipantID string    `json:"participantId"`
	BuzzedAt      time.Time `json:"buzzedAt"`
}
