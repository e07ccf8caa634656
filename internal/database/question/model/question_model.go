package model

// Question is a per-room copy of a category template. Copying on first
// category start keeps one room's judging state isolated from every other
// room playing the same category.
type Question struct {
	ID         string `json:"id"`
	RoomID     string `json:"roomId"`
	CategoryID string `json:"categoryId"`
	Text       string `json:"text"`
	ImageURL   string `json:"imageUrl,omitempty"`

	// 0-based, contiguous within (room, category).
	Order int `json:"order"`

	// Set once a correct buzzer answer or a bulk text judgement landed on
	// this question; guards against double awards.
	Judged bool `json:"judged"`
}
