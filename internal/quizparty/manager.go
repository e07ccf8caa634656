package quizparty

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	answerDb "github.com/quizparty-games/quizparty/internal/database/answer/database"
	buzzDb "github.com/quizparty-games/quizparty/internal/database/buzz/database"
	categoryDb "github.com/quizparty-games/quizparty/internal/database/category/database"
	participantDb "github.com/quizparty-games/quizparty/internal/database/participant/database"
	participantModel "github.com/quizparty-games/quizparty/internal/database/participant/model"
	punishmentDb "github.com/quizparty-games/quizparty/internal/database/punishment/database"
	questionDb "github.com/quizparty-games/quizparty/internal/database/question/database"
	roomDb "github.com/quizparty-games/quizparty/internal/database/room/database"
	roomModel "github.com/quizparty-games/quizparty/internal/database/room/model"
	"github.com/quizparty-games/quizparty/internal/logging"
	"github.com/quizparty-games/quizparty/internal/quizparty/match"
	"github.com/quizparty-games/quizparty/internal/quizparty/resource"
	"github.com/quizparty-games/quizparty/internal/quizparty/token"
	"github.com/valyala/fastrand"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLen      = 6
)

// Conn is one live transport connection. Send must be safe for concurrent
// use; the websocket layer serializes writes behind a mutex.
type Conn interface {
	ID() string
	Send(event string, payload interface{}) error
}

// binding ties a connection to the participant it authenticated as.
type binding struct {
	roomID        string
	participantID string
	role          participantModel.Role
}

// Manager is the room registry and connection directory. It owns one
// match.Session per live room, resolves inbound events to a caller identity
// and fans broadcasts out to every connection bound to the room.
type Manager struct {
	config *Config

	rooms        *roomDb.DB
	participants *participantDb.DB
	categories   *categoryDb.DB
	questions    *questionDb.DB
	answers      *answerDb.DB
	buzzes       *buzzDb.DB
	punishments  *punishmentDb.DB
	tokens       *token.Store

	mtx      sync.RWMutex
	sessions map[string]*match.Session
	conns    map[string]Conn
	bindings map[string]binding
}

func NewManager(
	config *Config,
	rooms *roomDb.DB,
	participants *participantDb.DB,
	categories *categoryDb.DB,
	questions *questionDb.DB,
	answers *answerDb.DB,
	buzzes *buzzDb.DB,
	punishments *punishmentDb.DB,
	tokens *token.Store,
) *Manager {
	return &Manager{
		config:       config,
		rooms:        rooms,
		participants: participants,
		categories:   categories,
		questions:    questions,
		answers:      answers,
		buzzes:       buzzes,
		punishments:  punishments,
		tokens:       tokens,
		sessions:     make(map[string]*match.Session),
		conns:        make(map[string]Conn),
		bindings:     make(map[string]binding),
	}
}

// Restore rebuilds sessions for every room that was still active when the
// process last stopped.
func (m *Manager) Restore(ctx context.Context) error {
	active, err := m.rooms.FetchActive()
	if err != nil {
		return fmt.Errorf("fetch active rooms: %w", err)
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()

	for _, room := range active {
		m.sessions[room.ID] = match.NewFromStored(m.sessionConfig(room.ID), room.Status)
	}

	logging.FromContext(ctx).Named("quizparty.Manager").Infof("Restored %d active rooms", len(active))

	return nil
}

// Broadcast implements match.Notifier: the event goes to every connection
// currently bound to the room, host included.
func (m *Manager) Broadcast(roomID string, event string, payload interface{}) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	for connID, b := range m.bindings {
		if b.roomID != roomID {
			continue
		}
		conn, ok := m.conns[connID]
		if !ok {
			continue
		}
		if err := conn.Send(event, payload); err != nil {
			logging.DefaultLogger().Named("quizparty.Manager").
				Warnf("Broadcast %s to conn %s: %v", event, connID, err)
		}
	}
}

type createRoomRequest struct {
	HostName string `json:"hostName"`
}

type joinRoomRequest struct {
	RoomCode   string `json:"roomCode"`
	PlayerName string `json:"playerName"`
}

type rejoinRequest struct {
	Token string `json:"token"`
}

type configureCategoriesRequest struct {
	CategoryIDs []string `json:"categoryIds"`
}

type judgeBuzzerRequest struct {
	ParticipantID string `json:"participantId"`
	Correct       bool   `json:"correct"`
}

type judgeTextRequest struct {
	CorrectParticipantIDs []string `json:"correctParticipantIds"`
}

type submitAnswerRequest struct {
	Text string `json:"text"`
}

type chanceDecideRequest struct {
	Accept bool `json:"accept"`
}

type roomCreatedResponse struct {
	RoomID        string `json:"roomId"`
	RoomCode      string `json:"roomCode"`
	ParticipantID string `json:"participantId"`
	Token         string `json:"token"`
}

type roomJoinedResponse struct {
	RoomID        string              `json:"roomId"`
	RoomCode      string              `json:"roomCode"`
	ParticipantID string              `json:"participantId"`
	Token         string              `json:"token"`
	Players       []match.RosterEntry `json:"players"`
}

// HandleEvent dispatches one inbound transport event. The returned payload,
// if any, rides back on the ack; errors are mapped to codes by the caller.
func (m *Manager) HandleEvent(ctx context.Context, conn Conn, event string, data json.RawMessage) (interface{}, error) {
	switch event {
	case resource.EventCreateRoom:
		var req createRoomRequest
		if err := unmarshal(data, &req); err != nil {
			return nil, err
		}
		return m.CreateRoom(ctx, conn, req.HostName)
	case resource.EventJoinRoom:
		var req joinRoomRequest
		if err := unmarshal(data, &req); err != nil {
			return nil, err
		}
		return m.JoinRoom(ctx, conn, req.RoomCode, req.PlayerName)
	case resource.EventRejoin:
		var req rejoinRequest
		if err := unmarshal(data, &req); err != nil {
			return nil, err
		}
		return m.Rejoin(ctx, conn, req.Token)
	}

	caller, session, err := m.resolve(conn.ID())
	if err != nil {
		return nil, err
	}

	switch event {
	case resource.EventConfigureCategories:
		var req configureCategoriesRequest
		if err := unmarshal(data, &req); err != nil {
			return nil, err
		}
		return nil, session.ConfigureCategories(ctx, caller, req.CategoryIDs)
	case resource.EventStartGame:
		return session.StartGame(ctx, caller)
	case resource.EventStartCategory:
		return session.StartCategory(ctx, caller)
	case resource.EventBuzz:
		return session.Buzz(ctx, caller)
	case resource.EventUnlockBuzzer:
		return nil, session.Unlock(ctx, caller)
	case resource.EventSubmitTextAnswer:
		var req submitAnswerRequest
		if err := unmarshal(data, &req); err != nil {
			return nil, err
		}
		return nil, session.SubmitAnswer(ctx, caller, req.Text)
	case resource.EventFetchTextAnswers:
		return session.FetchAnswers(ctx, caller)
	case resource.EventJudgeBuzzerAnswer:
		var req judgeBuzzerRequest
		if err := unmarshal(data, &req); err != nil {
			return nil, err
		}
		return session.JudgeBuzzer(ctx, caller, req.ParticipantID, req.Correct)
	case resource.EventJudgeTextAnswers:
		var req judgeTextRequest
		if err := unmarshal(data, &req); err != nil {
			return nil, err
		}
		return session.JudgeTextAnswers(ctx, caller, req.CorrectParticipantIDs)
	case resource.EventNextQuestion:
		return session.Advance(ctx, caller)
	case resource.EventChanceDrawPlayer:
		return session.DrawPlayer(ctx, caller)
	case resource.EventChanceDecide:
		var req chanceDecideRequest
		if err := unmarshal(data, &req); err != nil {
			return nil, err
		}
		return nil, session.Decide(ctx, caller, req.Accept)
	case resource.EventChanceDrawReward:
		return session.DrawReward(ctx, caller)
	case resource.EventChanceApply:
		return nil, session.Apply(ctx, caller)
	}

	return nil, match.Errorf(match.CodeNotFound, "unknown event %s", event)
}

// CreateRoom provisions a room with a fresh join code, registers the caller
// as its host and hands back the rejoin token.
func (m *Manager) CreateRoom(ctx context.Context, conn Conn, hostName string) (*roomCreatedResponse, error) {
	if hostName == "" {
		return nil, match.Errorf(match.CodeInvalidState, "host name required")
	}

	hostID := uuid.New().String()
	room := roomModel.Room{
		ID:        uuid.New().String(),
		HostID:    hostID,
		HostName:  hostName,
		Status:    roomModel.StatusLobby,
		CreatedAt: time.Now(),
	}

	// The code store rejects a duplicate while the older room is still
	// active, so colliding generations just retry.
	for {
		room.Code = generateCode()
		if err := m.rooms.Store(room); err != nil {
			if err == roomDb.ErrConflict {
				continue
			}
			return nil, fmt.Errorf("store room: %w", err)
		}
		break
	}

	host := participantModel.Participant{
		ID:       hostID,
		RoomID:   room.ID,
		Name:     hostName,
		Role:     participantModel.RoleHost,
		ConnID:   conn.ID(),
		JoinedAt: time.Now(),
	}
	if err := m.participants.Store(host); err != nil {
		return nil, fmt.Errorf("store host: %w", err)
	}

	tok, err := m.tokens.Issue(hostID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	m.mtx.Lock()
	m.conns[conn.ID()] = conn
	m.bindings[conn.ID()] = binding{roomID: room.ID, participantID: hostID, role: participantModel.RoleHost}
	m.sessions[room.ID] = match.NewSession(m.sessionConfig(room.ID))
	m.mtx.Unlock()

	logging.FromContext(ctx).Named("quizparty.Manager").
		Infof("Room %s created by %s", room.Code, hostName)

	return &roomCreatedResponse{
		RoomID:        room.ID,
		RoomCode:      room.Code,
		ParticipantID: hostID,
		Token:         tok,
	}, nil
}

// JoinRoom adds a player to a lobby-state room and announces the new roster.
func (m *Manager) JoinRoom(ctx context.Context, conn Conn, code, playerName string) (*roomJoinedResponse, error) {
	if playerName == "" {
		return nil, match.Errorf(match.CodeInvalidState, "player name required")
	}

	room, err := m.rooms.FetchByCode(code)
	if err != nil {
		if err == roomDb.ErrNotFound {
			return nil, match.Errorf(match.CodeNotFound, "room not found")
		}
		return nil, fmt.Errorf("fetch room: %w", err)
	}
	if room.Status != roomModel.StatusLobby {
		return nil, match.Errorf(match.CodeInvalidState, "game already running")
	}

	playerID := uuid.New().String()
	player := participantModel.Participant{
		ID:       playerID,
		RoomID:   room.ID,
		Name:     playerName,
		Role:     participantModel.RolePlayer,
		ConnID:   conn.ID(),
		JoinedAt: time.Now(),
	}
	if err := m.participants.Store(player); err != nil {
		return nil, fmt.Errorf("store player: %w", err)
	}

	tok, err := m.tokens.Issue(playerID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	session := m.session(room)

	m.mtx.Lock()
	m.conns[conn.ID()] = conn
	m.bindings[conn.ID()] = binding{roomID: room.ID, participantID: playerID, role: participantModel.RolePlayer}
	m.mtx.Unlock()

	roster, err := session.Roster()
	if err != nil {
		return nil, err
	}
	m.Broadcast(room.ID, resource.EventPlayersUpdate, map[string]interface{}{"players": roster})

	logging.FromContext(ctx).Named("quizparty.Manager").
		Infof("%s joined room %s", playerName, room.Code)

	return &roomJoinedResponse{
		RoomID:        room.ID,
		RoomCode:      room.Code,
		ParticipantID: playerID,
		Token:         tok,
		Players:       roster,
	}, nil
}

// Rejoin authenticates a returning participant by token, rebinds their new
// connection and replays the room's current state. Replayable any number of
// times; nothing about the game moves.
func (m *Manager) Rejoin(ctx context.Context, conn Conn, tok string) (*match.Snapshot, error) {
	participantID, err := m.tokens.Resolve(tok)
	if err != nil {
		if err == token.ErrNotFound {
			return nil, match.Errorf(match.CodeNotFound, "invalid session token")
		}
		return nil, fmt.Errorf("resolve token: %w", err)
	}

	p, err := m.participants.Fetch(participantID)
	if err != nil {
		if err == participantDb.ErrNotFound {
			return nil, match.Errorf(match.CodeNotFound, "invalid session token")
		}
		return nil, fmt.Errorf("fetch participant: %w", err)
	}

	room, err := m.rooms.Fetch(p.RoomID)
	if err != nil {
		if err == roomDb.ErrNotFound {
			return nil, match.Errorf(match.CodeNotFound, "room not found")
		}
		return nil, fmt.Errorf("fetch room: %w", err)
	}

	if err := m.participants.SetConn(p.ID, conn.ID()); err != nil {
		return nil, fmt.Errorf("set connection: %w", err)
	}

	session := m.session(room)

	m.mtx.Lock()
	m.conns[conn.ID()] = conn
	m.bindings[conn.ID()] = binding{roomID: room.ID, participantID: p.ID, role: p.Role}
	m.mtx.Unlock()

	snapshot, err := session.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	roster, err := session.Roster()
	if err != nil {
		return nil, err
	}
	m.Broadcast(room.ID, resource.EventPlayersUpdate, map[string]interface{}{"players": roster})

	logging.FromContext(ctx).Named("quizparty.Manager").
		Infof("%s rejoined room %s", p.Name, room.Code)

	return snapshot, nil
}

// Disconnect drops the connection's binding and marks the participant
// disconnected. Their identity, score and any pending punishment stay put;
// only the token brings them back.
func (m *Manager) Disconnect(ctx context.Context, connID string) {
	m.mtx.Lock()
	b, bound := m.bindings[connID]
	delete(m.bindings, connID)
	delete(m.conns, connID)
	m.mtx.Unlock()

	if !bound {
		return
	}

	if err := m.participants.SetConn(b.participantID, ""); err != nil {
		logging.FromContext(ctx).Named("quizparty.Manager").
			Errorf("mark disconnected %s: %v", b.participantID, err)
		return
	}

	m.mtx.RLock()
	session := m.sessions[b.roomID]
	m.mtx.RUnlock()
	if session == nil {
		return
	}

	roster, err := session.Roster()
	if err != nil {
		logging.FromContext(ctx).Named("quizparty.Manager").Errorf("roster: %v", err)
		return
	}
	m.Broadcast(b.roomID, resource.EventPlayersUpdate, map[string]interface{}{"players": roster})
}

// AssignCategories applies a category selection on the host's behalf. Serves
// the HTTP configuration surface, which authenticates differently.
func (m *Manager) AssignCategories(ctx context.Context, roomID string, categoryIDs []string) error {
	room, err := m.rooms.Fetch(roomID)
	if err != nil {
		if err == roomDb.ErrNotFound {
			return match.Errorf(match.CodeNotFound, "room not found")
		}
		return fmt.Errorf("fetch room: %w", err)
	}

	caller := match.Caller{ParticipantID: room.HostID, Role: participantModel.RoleHost}
	return m.session(room).ConfigureCategories(ctx, caller, categoryIDs)
}

// Roster exposes a room's player list for the HTTP query surface.
func (m *Manager) Roster(roomID string) ([]match.RosterEntry, error) {
	room, err := m.rooms.Fetch(roomID)
	if err != nil {
		if err == roomDb.ErrNotFound {
			return nil, match.Errorf(match.CodeNotFound, "room not found")
		}
		return nil, fmt.Errorf("fetch room: %w", err)
	}

	return m.session(room).Roster()
}

// session returns the room's live session, lazily rebuilding one for rooms
// restored from disk before Restore ran or created by an earlier process.
func (m *Manager) session(room roomModel.Room) *match.Session {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if s, ok := m.sessions[room.ID]; ok {
		return s
	}

	s := match.NewFromStored(m.sessionConfig(room.ID), room.Status)
	m.sessions[room.ID] = s

	return s
}

// resolve maps a connection to its caller identity and session. Held locks
// are released before the session is entered, so session work never nests
// inside the manager's write lock.
func (m *Manager) resolve(connID string) (match.Caller, *match.Session, error) {
	m.mtx.RLock()
	b, bound := m.bindings[connID]
	session := m.sessions[b.roomID]
	m.mtx.RUnlock()

	if !bound {
		return match.Caller{}, nil, match.Errorf(match.CodePermissionDenied, "not in a room")
	}
	if session == nil {
		return match.Caller{}, nil, match.Errorf(match.CodeNotFound, "room not found")
	}

	return match.Caller{ParticipantID: b.participantID, Role: b.role}, session, nil
}

func (m *Manager) sessionConfig(roomID string) match.Config {
	return match.Config{
		RoomID:            roomID,
		ChanceProbability: m.config.ChanceProbability,
		RevealDelay:       m.config.ChanceRevealDelay,
		UnlockCountdown:   m.config.UnlockCountdown,
		Notifier:          m,
		Rooms:             m.rooms,
		Participants:      m.participants,
		Categories:        m.categories,
		Questions:         m.questions,
		Answers:           m.answers,
		Buzzes:            m.buzzes,
		Punishments:       m.punishments,
	}
}

func generateCode() string {
	buf := make([]byte, codeLen)
	for i := range buf {
		buf[i] = codeAlphabet[fastrand.Uint32n(uint32(len(codeAlphabet)))]
	}

	return string(buf)
}

func unmarshal(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return match.Errorf(match.CodeInvalidState, "malformed payload: %v", err)
	}
	return nil
}
