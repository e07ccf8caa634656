package model

// ActivePunishment is a chance-wheel penalty that sticks to a player for a
// number of questions. Remaining decrements once per progression step.
type ActivePunishment struct {
	RoomID        string `json:"roomId"`
	ParticipantID string `json:"participantId"`
	Description   string `json:"description"`
	Remaining     int    `json:"remaining"`
}
