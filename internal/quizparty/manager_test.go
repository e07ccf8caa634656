package quizparty

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	storage "github.com/quizparty-games/quizparty/internal/database"
	answerDb "github.com/quizparty-games/quizparty/internal/database/answer/database"
	buzzDb "github.com/quizparty-games/quizparty/internal/database/buzz/database"
	categoryDb "github.com/quizparty-games/quizparty/internal/database/category/database"
	categoryModel "github.com/quizparty-games/quizparty/internal/database/category/model"
	participantDb "github.com/quizparty-games/quizparty/internal/database/participant/database"
	punishmentDb "github.com/quizparty-games/quizparty/internal/database/punishment/database"
	questionDb "github.com/quizparty-games/quizparty/internal/database/question/database"
	roomDb "github.com/quizparty-games/quizparty/internal/database/room/database"
	"github.com/quizparty-games/quizparty/internal/quizparty/match"
	"github.com/quizparty-games/quizparty/internal/quizparty/resource"
	"github.com/quizparty-games/quizparty/internal/quizparty/token"
)

type sent struct {
	event   string
	payload interface{}
}

type fakeConn struct {
	id string

	mtx  sync.Mutex
	sent []sent
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(event string, payload interface{}) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.sent = append(c.sent, sent{event: event, payload: payload})
	return nil
}

func (c *fakeConn) count(event string) int {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	count := 0
	for _, s := range c.sent {
		if s.event == event {
			count++
		}
	}
	return count
}

func testManager(t *testing.T) (*Manager, *participantDb.DB) {
	t.Helper()

	ctx := context.Background()
	db, err := storage.NewFromEnv(ctx, &storage.Config{FilePath: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(ctx) })

	categories := categoryDb.New(db, nil)
	for _, c := range []categoryModel.Category{
		{ID: "c-buzz", Name: "Buzzers", Mode: categoryModel.ModeBuzzer},
	} {
		if err := categories.Store(c); err != nil {
			t.Fatalf("store category: %v", err)
		}
		if err := categories.StoreTemplate(categoryModel.Template{ID: c.ID + "-0", CategoryID: c.ID, Text: "question"}); err != nil {
			t.Fatalf("store template: %v", err)
		}
	}

	participants := participantDb.New(db)
	manager := NewManager(
		&Config{},
		roomDb.New(db),
		participants,
		categories,
		questionDb.New(db),
		answerDb.New(db),
		buzzDb.New(db),
		punishmentDb.New(db),
		token.New(db, nil),
	)

	return manager, participants
}

func TestCreateRoom(t *testing.T) {
	t.Parallel()

	manager, _ := testManager(t)
	ctx := context.Background()
	host := &fakeConn{id: "host-conn"}

	created, err := manager.CreateRoom(ctx, host, "Hannah")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	if len(created.RoomCode) != codeLen {
		t.Errorf("expected %d-char code got %q", codeLen, created.RoomCode)
	}
	if len(created.Token) != 64 {
		t.Errorf("expected 64-char token got %d", len(created.Token))
	}
	if created.ParticipantID == "" || created.RoomID == "" {
		t.Errorf("missing identifiers in %+v", created)
	}
}

func TestCreateRoomRequiresName(t *testing.T) {
	t.Parallel()

	manager, _ := testManager(t)
	ctx := context.Background()

	_, err := manager.CreateRoom(ctx, &fakeConn{id: "c1"}, "")
	if match.CodeOf(err) != match.CodeInvalidState {
		t.Fatalf("expected invalid_state got %v", err)
	}
}

func TestJoinRoom(t *testing.T) {
	t.Parallel()

	manager, _ := testManager(t)
	ctx := context.Background()
	host := &fakeConn{id: "host-conn"}

	created, err := manager.CreateRoom(ctx, host, "Hannah")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	joined, err := manager.JoinRoom(ctx, &fakeConn{id: "alex-conn"}, created.RoomCode, "Alex")
	if err != nil {
		t.Fatalf("join room: %v", err)
	}
	if len(joined.Players) != 1 || joined.Players[0].Name != "Alex" {
		t.Fatalf("expected Alex in roster got %+v", joined.Players)
	}

	// The host's screen hears about the new player.
	if host.count(resource.EventPlayersUpdate) != 1 {
		t.Errorf("expected 1 players-update at host got %d", host.count(resource.EventPlayersUpdate))
	}
}

func TestJoinRoomUnknownCode(t *testing.T) {
	t.Parallel()

	manager, _ := testManager(t)
	ctx := context.Background()

	_, err := manager.JoinRoom(ctx, &fakeConn{id: "c1"}, "NOPE42", "Alex")
	if match.CodeOf(err) != match.CodeNotFound {
		t.Fatalf("expected not_found got %v", err)
	}
}

func TestJoinRoomAfterStart(t *testing.T) {
	t.Parallel()

	manager, _ := testManager(t)
	ctx := context.Background()
	host := &fakeConn{id: "host-conn"}

	created, err := manager.CreateRoom(ctx, host, "Hannah")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := manager.JoinRoom(ctx, &fakeConn{id: "alex-conn"}, created.RoomCode, "Alex"); err != nil {
		t.Fatalf("join room: %v", err)
	}

	payload, _ := json.Marshal(configureCategoriesRequest{CategoryIDs: []string{"c-buzz"}})
	if _, err := manager.HandleEvent(ctx, host, resource.EventConfigureCategories, payload); err != nil {
		t.Fatalf("configure categories: %v", err)
	}
	if _, err := manager.HandleEvent(ctx, host, resource.EventStartGame, nil); err != nil {
		t.Fatalf("start game: %v", err)
	}

	_, err = manager.JoinRoom(ctx, &fakeConn{id: "late-conn"}, created.RoomCode, "Latecomer")
	if match.CodeOf(err) != match.CodeInvalidState {
		t.Fatalf("expected invalid_state got %v", err)
	}
}

func TestRejoin(t *testing.T) {
	t.Parallel()

	manager, participants := testManager(t)
	ctx := context.Background()
	host := &fakeConn{id: "host-conn"}

	created, err := manager.CreateRoom(ctx, host, "Hannah")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	joined, err := manager.JoinRoom(ctx, &fakeConn{id: "alex-conn"}, created.RoomCode, "Alex")
	if err != nil {
		t.Fatalf("join room: %v", err)
	}

	manager.Disconnect(ctx, "alex-conn")

	p, err := participants.Fetch(joined.ParticipantID)
	if err != nil {
		t.Fatalf("fetch participant: %v", err)
	}
	if p.Connected() {
		t.Fatal("expected participant marked disconnected")
	}

	snapshot, err := manager.Rejoin(ctx, &fakeConn{id: "alex-conn-2"}, joined.Token)
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if snapshot.RoomID != created.RoomID {
		t.Errorf("expected room %s got %s", created.RoomID, snapshot.RoomID)
	}
	if len(snapshot.Players) != 1 || !snapshot.Players[0].Connected {
		t.Errorf("expected Alex back online got %+v", snapshot.Players)
	}

	p, err = participants.Fetch(joined.ParticipantID)
	if err != nil {
		t.Fatalf("fetch participant: %v", err)
	}
	if p.ConnID != "alex-conn-2" {
		t.Errorf("expected rebound connection got %q", p.ConnID)
	}
}

func TestRejoinBadToken(t *testing.T) {
	t.Parallel()

	manager, _ := testManager(t)
	ctx := context.Background()

	_, err := manager.Rejoin(ctx, &fakeConn{id: "c1"}, "deadbeef")
	if match.CodeOf(err) != match.CodeNotFound {
		t.Fatalf("expected not_found got %v", err)
	}
}

func TestDisconnectUnbound(t *testing.T) {
	t.Parallel()

	manager, _ := testManager(t)

	// A connection that never joined anything disconnects silently.
	manager.Disconnect(context.Background(), "ghost-conn")
}

func TestHandleEventUnbound(t *testing.T) {
	t.Parallel()

	manager, _ := testManager(t)
	ctx := context.Background()

	_, err := manager.HandleEvent(ctx, &fakeConn{id: "c1"}, resource.EventBuzz, nil)
	if match.CodeOf(err) != match.CodePermissionDenied {
		t.Fatalf("expected permission_denied got %v", err)
	}
}

func TestHandleEventUnknown(t *testing.T) {
	t.Parallel()

	manager, _ := testManager(t)
	ctx := context.Background()
	host := &fakeConn{id: "host-conn"}

	if _, err := manager.CreateRoom(ctx, host, "Hannah"); err != nil {
		t.Fatalf("create room: %v", err)
	}

	_, err := manager.HandleEvent(ctx, host, "no-such-event", nil)
	if match.CodeOf(err) != match.CodeNotFound {
		t.Fatalf("expected not_found got %v", err)
	}
}

func TestGenerateCode(t *testing.T) {
	t.Parallel()

	seen := make(map[byte]bool)
	for i := 0; i < 100; i++ {
		code := generateCode()
		if len(code) != codeLen {
			t.Fatalf("expected %d chars got %q", codeLen, code)
		}
		for j := 0; j < len(code); j++ {
			seen[code[j]] = true
			found := false
			for k := 0; k < len(codeAlphabet); k++ {
				if code[j] == codeAlphabet[k] {
					found = true
					break
				}
			}
			if !found {
				t.Fatalf("character %q outside alphabet", code[j])
			}
		}
	}
	if len(seen) < 10 {
		t.Errorf("expected varied codes, saw %d distinct characters", len(seen))
	}
}
