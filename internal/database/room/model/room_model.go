package model

import "time"

type Status = string

const (
	StatusLobby    Status = "lobby"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

type Room struct {
	ID       string `json:"id"`
	Code     string `json:"code"`
	HostID   string `json:"hostId"`
	HostName string `json:"hostName"`
	Status   Status `json:"status"`

	// Ordered category ids bound at setup time.
	CategoryIDs []string `json:"categoryIds"`

	CurrCategoryIdx int `json:"currCategoryIdx"`
	CurrQuestionIdx int `json:"currQuestionIdx"`

	CreatedAt time.Time `json:"createdAt"`
}
