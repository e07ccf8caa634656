package model

type Mode = string

const (
	ModeBuzzer   Mode = "buzzer"
	ModeFreeText Mode = "free-text"
)

// Category is immutable template data; rooms bind an ordered subset of it.
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
	Mode        Mode   `json:"mode"`
}

// Template is a question blueprint copied into a room when the category is
// first played there.
type Template struct {
	ID         string `json:"id"`
	CategoryID string `json:"categoryId"`
	Text       string `json:"text"`
	ImageURL   string `json:"imageUrl,omitempty"`
}
