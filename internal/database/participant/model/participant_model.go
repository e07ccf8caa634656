package model

import "time"

type Role = string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

type Participant struct {
	ID     string `json:"id"`
	RoomID string `json:"roomId"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
	Score  int    `json:"score"`

	// Empty while disconnected. The record itself survives disconnects so
	// that a rejoin token can resolve back to it.
	ConnID string `json:"connId"`

	JoinedAt time.Time `json:"joinedAt"`
}

func (p *Participant) Connected() bool {
	return p.ConnID != ""
}
