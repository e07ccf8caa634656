package match

import (
	"context"
	"fmt"
	"sync"
	"time"

	answerDb "github.com/quizparty-games/quizparty/internal/database/answer/database"
	buzzDb "github.com/quizparty-games/quizparty/internal/database/buzz/database"
	categoryDb "github.com/quizparty-games/quizparty/internal/database/category/database"
	categoryModel "github.com/quizparty-games/quizparty/internal/database/category/model"
	participantDb "github.com/quizparty-games/quizparty/internal/database/participant/database"
	participantModel "github.com/quizparty-games/quizparty/internal/database/participant/model"
	punishmentDb "github.com/quizparty-games/quizparty/internal/database/punishment/database"
	questionDb "github.com/quizparty-games/quizparty/internal/database/question/database"
	questionModel "github.com/quizparty-games/quizparty/internal/database/question/model"
	roomDb "github.com/quizparty-games/quizparty/internal/database/room/database"
	roomModel "github.com/quizparty-games/quizparty/internal/database/room/model"
	"github.com/quizparty-games/quizparty/internal/logging"
	"github.com/quizparty-games/quizparty/internal/quizparty/resource"
)

const (
	StateKindLobby uint8 = iota + 1
	StateKindIntro
	StateKindQuestion
	StateKindChance
	StateKindFinished
)

// Notifier delivers a room broadcast; the transport layer implements it.
type Notifier interface {
	Broadcast(roomID string, event string, payload interface{})
}

// Caller is the resolved identity behind a transport event.
type Caller struct {
	ParticipantID string
	Role          participantModel.Role
}

type Config struct {
	RoomID string

	ChanceProbability float64
	RevealDelay       time.Duration
	UnlockCountdown   time.Duration

	Rand     Rand
	Notifier Notifier

	Rooms        *roomDb.DB
	Participants *participantDb.DB
	Categories   *categoryDb.DB
	Questions    *questionDb.DB
	Answers      *answerDb.DB
	Buzzes       *buzzDb.DB
	Punishments  *punishmentDb.DB
}

// Session owns one room's progression. Every transition runs under the
// session mutex, so two interleaved read-modify-write sequences on the same
// room cannot both land; broadcasts go out only after the authoritative
// write committed, still under the mutex, which keeps their order aligned
// with the order state actually changed.
type Session struct {
	Config Config

	mtx   sync.Mutex
	state uint8

	// Bumped on every authoritative transition; pending delayed broadcasts
	// capture the value at schedule time and drop themselves if it moved.
	generation uint64

	chance         *chanceState
	pendingAdvance bool
}

func NewSession(config Config) *Session {
	if config.Rand == nil {
		config.Rand = FastRand{}
	}

	return &Session{Config: config, state: StateKindLobby}
}

// NewFromStored rebuilds a session for a room that survived a restart.
func NewFromStored(config Config, status roomModel.Status) *Session {
	s := NewSession(config)
	switch status {
	case roomModel.StatusPlaying:
		s.state = StateKindQuestion
	case roomModel.StatusFinished:
		s.state = StateKindFinished
	}

	return s
}

type CategoryView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
	Mode        string `json:"mode"`
}

type QuestionView struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	ImageURL string `json:"imageUrl,omitempty"`
	Order    int    `json:"order"`
}

type RosterEntry struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Connected bool   `json:"connected"`
}

type AdvanceResult struct {
	Finished       bool `json:"finished"`
	CategoryChange bool `json:"categoryChange"`
	Chance         bool `json:"chance"`
}

func categoryView(c categoryModel.Category) CategoryView {
	return CategoryView{ID: c.ID, Name: c.Name, Icon: c.Icon, Description: c.Description, Mode: c.Mode}
}

func questionView(q questionModel.Question) QuestionView {
	return QuestionView{ID: q.ID, Text: q.Text, ImageURL: q.ImageURL, Order: q.Order}
}

func rosterEntry(p participantModel.Participant) RosterEntry {
	return RosterEntry{ID: p.ID, Name: p.Name, Score: p.Score, Connected: p.Connected()}
}

// ConfigureCategories rewrites the room's bound category list and wipes any
// previously instantiated questions. Lobby-only.
func (s *Session) ConfigureCategories(ctx context.Context, caller Caller, categoryIDs []string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := requireHost(caller); err != nil {
		return err
	}
	if s.state != StateKindLobby {
		return Errorf(CodeInvalidState, "categories can only be configured in the lobby")
	}
	if len(categoryIDs) == 0 {
		return Errorf(CodeInvalidState, "at least one category required")
	}

	for _, id := range categoryIDs {
		if _, err := s.Config.Categories.Fetch(id); err != nil {
			if err == categoryDb.ErrNotFound {
				return Errorf(CodeNotFound, "category %s not found", id)
			}
			return fmt.Errorf("fetch category: %w", err)
		}
	}

	room, err := s.room()
	if err != nil {
		return err
	}

	room.CategoryIDs = categoryIDs
	room.CurrCategoryIdx = 0
	room.CurrQuestionIdx = 0
	if err := s.Config.Rooms.Update(room); err != nil {
		return fmt.Errorf("update room: %w", err)
	}

	if err := s.Config.Questions.DeleteByRoom(room.ID); err != nil {
		return fmt.Errorf("delete room questions: %w", err)
	}

	logging.FromContext(ctx).Named("match.Session").
		Infof("Room %s configured with %d categories", room.Code, len(categoryIDs))

	return nil
}

// StartGame moves the room out of the lobby and announces the first bound
// category to everyone.
func (s *Session) StartGame(ctx context.Context, caller Caller) (*CategoryView, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := requireHost(caller); err != nil {
		return nil, err
	}
	if s.state != StateKindLobby {
		return nil, Errorf(CodeInvalidState, "game already started")
	}

	room, err := s.room()
	if err != nil {
		return nil, err
	}
	if len(room.CategoryIDs) == 0 {
		return nil, Errorf(CodeInvalidState, "no categories selected")
	}

	room.Status = roomModel.StatusPlaying
	if err := s.Config.Rooms.Update(room); err != nil {
		return nil, fmt.Errorf("update room: %w", err)
	}

	category, err := s.Config.Categories.Fetch(room.CategoryIDs[0])
	if err != nil {
		return nil, fmt.Errorf("fetch category: %w", err)
	}

	s.transition(StateKindIntro)

	view := categoryView(category)
	s.broadcast(resource.EventCategoryIntro, map[string]interface{}{"category": view})
	logging.FromContext(ctx).Named("match.Session").Infof("Game started in room %s", room.Code)

	return &view, nil
}

// StartCategory confirms the intro screen and emits the category's first
// question, instantiating the room's copy of the templates on first use.
func (s *Session) StartCategory(ctx context.Context, caller Caller) (*QuestionView, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := requireHost(caller); err != nil {
		return nil, err
	}
	if s.state != StateKindIntro {
		return nil, Errorf(CodeInvalidState, "no category intro pending")
	}

	room, err := s.room()
	if err != nil {
		return nil, err
	}

	category, err := s.Config.Categories.Fetch(room.CategoryIDs[room.CurrCategoryIdx])
	if err != nil {
		return nil, fmt.Errorf("fetch category: %w", err)
	}

	templates, err := s.Config.Categories.FetchTemplates(category.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch templates: %w", err)
	}
	if len(templates) == 0 {
		return nil, Errorf(CodeInvalidState, "category %s has no questions", category.Name)
	}

	questions, err := s.Config.Questions.CopyTemplates(room.ID, category.ID, templates)
	if err != nil {
		return nil, fmt.Errorf("copy templates: %w", err)
	}

	question := questions[room.CurrQuestionIdx]
	s.transition(StateKindQuestion)

	view := questionView(question)
	s.broadcast(resource.EventCategoryStarted, map[string]interface{}{
		"question": view,
		"category": categoryView(category),
	})
	logging.FromContext(ctx).Named("match.Session").
		Infof("Category %s started in room %s", category.Name, room.Code)

	return &view, nil
}

// Advance moves to the next question, next category or the final standings —
// or suspends into the chance sub-flow first.
func (s *Session) Advance(ctx context.Context, caller Caller) (*AdvanceResult, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := requireHost(caller); err != nil {
		return nil, err
	}
	if s.state == StateKindFinished {
		return nil, Errorf(CodeInvalidState, "game already finished")
	}
	if s.state != StateKindQuestion {
		return nil, Errorf(CodeInvalidState, "no active question to advance from")
	}

	if err := s.tickPunishments(); err != nil {
		return nil, err
	}

	if s.rollChance() {
		s.chance = &chanceState{stage: chanceStageDrawPlayer}
		s.pendingAdvance = true
		s.transition(StateKindChance)
		s.broadcast(resource.EventChanceTriggered, map[string]interface{}{})
		logging.FromContext(ctx).Named("match.Session").Infof("Chance event triggered in room %s", s.Config.RoomID)

		return &AdvanceResult{Chance: true}, nil
	}

	return s.progress(ctx)
}

// progress performs the actual counter movement. Callers hold the mutex.
func (s *Session) progress(ctx context.Context) (*AdvanceResult, error) {
	logger := logging.FromContext(ctx).Named("match.Session")

	room, err := s.room()
	if err != nil {
		return nil, err
	}

	categoryID := room.CategoryIDs[room.CurrCategoryIdx]
	count, err := s.Config.Questions.CountByRoomCategory(room.ID, categoryID)
	if err != nil {
		return nil, fmt.Errorf("count questions: %w", err)
	}

	room.CurrQuestionIdx++

	if room.CurrQuestionIdx < count {
		if err := s.Config.Rooms.Update(room); err != nil {
			return nil, fmt.Errorf("update room: %w", err)
		}
		s.transition(StateKindQuestion)

		question, err := s.Config.Questions.FetchByOrder(room.ID, categoryID, room.CurrQuestionIdx)
		if err != nil {
			return nil, fmt.Errorf("fetch question: %w", err)
		}
		category, err := s.Config.Categories.Fetch(categoryID)
		if err != nil {
			return nil, fmt.Errorf("fetch category: %w", err)
		}

		s.broadcast(resource.EventQuestionNext, map[string]interface{}{
			"question": questionView(question),
			"category": categoryView(category),
		})

		return &AdvanceResult{}, nil
	}

	room.CurrCategoryIdx++
	room.CurrQuestionIdx = 0

	if room.CurrCategoryIdx < len(room.CategoryIDs) {
		if err := s.Config.Rooms.Update(room); err != nil {
			return nil, fmt.Errorf("update room: %w", err)
		}
		s.transition(StateKindIntro)

		category, err := s.Config.Categories.Fetch(room.CategoryIDs[room.CurrCategoryIdx])
		if err != nil {
			return nil, fmt.Errorf("fetch category: %w", err)
		}

		s.broadcast(resource.EventCategoryIntro, map[string]interface{}{"category": categoryView(category)})
		logger.Infof("Room %s moved to category %s", room.Code, category.Name)

		return &AdvanceResult{CategoryChange: true}, nil
	}

	room.Status = roomModel.StatusFinished
	if err := s.Config.Rooms.Update(room); err != nil {
		return nil, fmt.Errorf("update room: %w", err)
	}
	s.transition(StateKindFinished)

	ranking, err := s.ranking()
	if err != nil {
		return nil, err
	}

	s.broadcast(resource.EventGameFinished, map[string]interface{}{"players": ranking})
	logger.Infof("Game finished in room %s", room.Code)

	return &AdvanceResult{Finished: true}, nil
}

func (s *Session) tickPunishments() error {
	expired, err := s.Config.Punishments.DecrementByRoom(s.Config.RoomID)
	if err != nil {
		return fmt.Errorf("decrement punishments: %w", err)
	}

	for _, p := range expired {
		s.broadcast(resource.EventPunishmentExpired, map[string]interface{}{
			"participantId": p.ParticipantID,
			"description":   p.Description,
		})
	}

	return nil
}

func (s *Session) rollChance() bool {
	p := s.Config.ChanceProbability
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}

	return s.Config.Rand.Uint32n(10000) < uint32(p*10000)
}

// Roster returns the room's players: join order while the lobby is open,
// score order once the game is running.
func (s *Session) Roster() ([]RosterEntry, error) {
	if s.State() != StateKindLobby {
		return s.ranking()
	}

	players, err := s.Config.Participants.FetchByRoom(s.Config.RoomID)
	if err != nil {
		return nil, fmt.Errorf("fetch participants: %w", err)
	}

	var roster []RosterEntry
	for _, p := range players {
		if p.Role == participantModel.RolePlayer {
			roster = append(roster, rosterEntry(p))
		}
	}

	return roster, nil
}

func (s *Session) State() uint8 {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.state
}

func (s *Session) ranking() ([]RosterEntry, error) {
	players, err := s.Config.Participants.Ranking(s.Config.RoomID)
	if err != nil {
		return nil, fmt.Errorf("ranking: %w", err)
	}

	ranking := make([]RosterEntry, 0, len(players))
	for _, p := range players {
		ranking = append(ranking, rosterEntry(p))
	}

	return ranking, nil
}

func (s *Session) room() (roomModel.Room, error) {
	room, err := s.Config.Rooms.Fetch(s.Config.RoomID)
	if err != nil {
		if err == roomDb.ErrNotFound {
			return room, Errorf(CodeNotFound, "room not found")
		}
		return room, fmt.Errorf("fetch room: %w", err)
	}

	return room, nil
}

// currentQuestion resolves the question the room is sitting on right now.
func (s *Session) currentQuestion(room roomModel.Room) (questionModel.Question, categoryModel.Category, error) {
	var question questionModel.Question

	category, err := s.Config.Categories.Fetch(room.CategoryIDs[room.CurrCategoryIdx])
	if err != nil {
		return question, category, fmt.Errorf("fetch category: %w", err)
	}

	question, err = s.Config.Questions.FetchByOrder(room.ID, category.ID, room.CurrQuestionIdx)
	if err != nil {
		if err == questionDb.ErrNotFound {
			return question, category, Errorf(CodeNotFound, "no current question")
		}
		return question, category, fmt.Errorf("fetch question: %w", err)
	}

	return question, category, nil
}

// transition invalidates any delayed broadcast scheduled before it.
func (s *Session) transition(kind uint8) {
	s.state = kind
	s.generation++
}

func (s *Session) broadcast(event string, payload interface{}) {
	s.Config.Notifier.Broadcast(s.Config.RoomID, event, payload)
}

// scheduleLocked runs fn after d unless the session has transitioned in the
// meantime. Callers hold the mutex; fn runs under it again.
func (s *Session) scheduleLocked(d time.Duration, fn func()) {
	gen := s.generation
	time.AfterFunc(d, func() {
		s.mtx.Lock()
		defer s.mtx.Unlock()
		if s.generation != gen {
			return
		}
		fn()
	})
}

func requireHost(caller Caller) error {
	if caller.Role != participantModel.RoleHost {
		return Errorf(CodePermissionDenied, "only the host can do that")
	}
	return nil
}

func requirePlayer(caller Caller) error {
	if caller.Role != participantModel.RolePlayer {
		return Errorf(CodePermissionDenied, "only players can do that")
	}
	return nil
}
