package match

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	storage "github.com/quizparty-games/quizparty/internal/database"
	answerDb "github.com/quizparty-games/quizparty/internal/database/answer/database"
	buzzDb "github.com/quizparty-games/quizparty/internal/database/buzz/database"
	categoryDb "github.com/quizparty-games/quizparty/internal/database/category/database"
	categoryModel "github.com/quizparty-games/quizparty/internal/database/category/model"
	participantDb "github.com/quizparty-games/quizparty/internal/database/participant/database"
	participantModel "github.com/quizparty-games/quizparty/internal/database/participant/model"
	punishmentDb "github.com/quizparty-games/quizparty/internal/database/punishment/database"
	questionDb "github.com/quizparty-games/quizparty/internal/database/question/database"
	roomDb "github.com/quizparty-games/quizparty/internal/database/room/database"
	roomModel "github.com/quizparty-games/quizparty/internal/database/room/model"
	"github.com/quizparty-games/quizparty/internal/quizparty/resource"
)

type notice struct {
	roomID  string
	event   string
	payload interface{}
}

type fakeNotifier struct {
	mtx     sync.Mutex
	notices []notice
}

func (n *fakeNotifier) Broadcast(roomID string, event string, payload interface{}) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.notices = append(n.notices, notice{roomID: roomID, event: event, payload: payload})
}

func (n *fakeNotifier) count(event string) int {
	n.mtx.Lock()
	defer n.mtx.Unlock()

	count := 0
	for _, notice := range n.notices {
		if notice.event == event {
			count++
		}
	}
	return count
}

func (n *fakeNotifier) last(event string) (notice, bool) {
	n.mtx.Lock()
	defer n.mtx.Unlock()

	for i := len(n.notices) - 1; i >= 0; i-- {
		if n.notices[i].event == event {
			return n.notices[i], true
		}
	}
	return notice{}, false
}

// stubRand replays a fixed script of draws.
type stubRand struct {
	values []uint32
	idx    int
}

func (r *stubRand) Uint32n(n uint32) uint32 {
	if r.idx >= len(r.values) {
		return 0
	}
	v := r.values[r.idx] % n
	r.idx++
	return v
}

type fixture struct {
	session  *Session
	notifier *fakeNotifier

	participants *participantDb.DB
	punishments  *punishmentDb.DB

	host Caller
	alex Caller
	sam  Caller
}

func newFixture(t *testing.T, chanceProbability float64, rand Rand) *fixture {
	t.Helper()

	ctx := context.Background()
	db, err := storage.NewFromEnv(ctx, &storage.Config{FilePath: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(ctx) })

	rooms := roomDb.New(db)
	participants := participantDb.New(db)
	categories := categoryDb.New(db, nil)
	punishments := punishmentDb.New(db)

	room := roomModel.Room{
		ID:        "r1",
		Code:      "ABC123",
		HostID:    "host",
		HostName:  "Hannah",
		Status:    roomModel.StatusLobby,
		CreatedAt: time.Now(),
	}
	if err := rooms.Store(room); err != nil {
		t.Fatalf("store room: %v", err)
	}

	base := time.Now()
	members := []participantModel.Participant{
		{ID: "host", RoomID: "r1", Name: "Hannah", Role: participantModel.RoleHost, JoinedAt: base},
		{ID: "alex", RoomID: "r1", Name: "Alex", Role: participantModel.RolePlayer, ConnID: "c1", JoinedAt: base.Add(time.Second)},
		{ID: "sam", RoomID: "r1", Name: "Sam", Role: participantModel.RolePlayer, ConnID: "c2", JoinedAt: base.Add(2 * time.Second)},
	}
	for _, p := range members {
		if err := participants.Store(p); err != nil {
			t.Fatalf("store participant: %v", err)
		}
	}

	decks := []struct {
		category  categoryModel.Category
		questions int
	}{
		{categoryModel.Category{ID: "c-buzz", Name: "Buzzers", Mode: categoryModel.ModeBuzzer}, 2},
		{categoryModel.Category{ID: "c-text", Name: "Estimates", Mode: categoryModel.ModeFreeText}, 2},
	}
	for _, deck := range decks {
		if err := categories.Store(deck.category); err != nil {
			t.Fatalf("store category: %v", err)
		}
		for i := 0; i < deck.questions; i++ {
			template := categoryModel.Template{
				ID:         deck.category.ID + "-" + string(rune('0'+i)),
				CategoryID: deck.category.ID,
				Text:       "question",
			}
			if err := categories.StoreTemplate(template); err != nil {
				t.Fatalf("store template: %v", err)
			}
		}
	}

	notifier := &fakeNotifier{}
	session := NewSession(Config{
		RoomID:            "r1",
		ChanceProbability: chanceProbability,
		Rand:              rand,
		Notifier:          notifier,
		Rooms:             rooms,
		Participants:      participants,
		Categories:        categories,
		Questions:         questionDb.New(db),
		Answers:           answerDb.New(db),
		Buzzes:            buzzDb.New(db),
		Punishments:       punishments,
	})

	return &fixture{
		session:      session,
		notifier:     notifier,
		participants: participants,
		punishments:  punishments,
		host:         Caller{ParticipantID: "host", Role: participantModel.RoleHost},
		alex:         Caller{ParticipantID: "alex", Role: participantModel.RolePlayer},
		sam:          Caller{ParticipantID: "sam", Role: participantModel.RolePlayer},
	}
}

func (f *fixture) mustConfigure(t *testing.T, ids ...string) {
	t.Helper()
	if err := f.session.ConfigureCategories(context.Background(), f.host, ids); err != nil {
		t.Fatalf("configure categories: %v", err)
	}
}

func (f *fixture) mustStart(t *testing.T) {
	t.Helper()
	if _, err := f.session.StartGame(context.Background(), f.host); err != nil {
		t.Fatalf("start game: %v", err)
	}
	if _, err := f.session.StartCategory(context.Background(), f.host); err != nil {
		t.Fatalf("start category: %v", err)
	}
}

func TestStartGameRequiresCategories(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0, nil)
	ctx := context.Background()

	if _, err := f.session.StartGame(ctx, f.host); CodeOf(err) != CodeInvalidState {
		t.Fatalf("expected invalid_state got %v", err)
	}
}

func TestStartGameHostOnly(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0, nil)
	ctx := context.Background()
	f.mustConfigure(t, "c-buzz")

	if _, err := f.session.StartGame(ctx, f.alex); CodeOf(err) != CodePermissionDenied {
		t.Fatalf("expected permission_denied got %v", err)
	}
}

func TestConfigureLockedAfterStart(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0, nil)
	ctx := context.Background()
	f.mustConfigure(t, "c-buzz")
	f.mustStart(t)

	err := f.session.ConfigureCategories(ctx, f.host, []string{"c-text"})
	if CodeOf(err) != CodeInvalidState {
		t.Fatalf("expected invalid_state got %v", err)
	}
}

func TestBuzzerRound(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0, nil)
	ctx := context.Background()
	f.mustConfigure(t, "c-buzz")
	f.mustStart(t)

	view, err := f.session.Buzz(ctx, f.alex)
	if err != nil {
		t.Fatalf("buzz: %v", err)
	}
	if view.ParticipantID != "alex" {
		t.Errorf("expected alex got %s", view.ParticipantID)
	}

	// The floor is taken.
	if _, err := f.session.Buzz(ctx, f.sam); CodeOf(err) != CodeConflict {
		t.Fatalf("expected conflict got %v", err)
	}

	judgement, err := f.session.JudgeBuzzer(ctx, f.host, "alex", true)
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if judgement.Points != 1 || judgement.Score != 1 {
		t.Errorf("expected one point scored got %+v", judgement)
	}

	// A retried correct verdict cannot award twice.
	if _, err := f.session.JudgeBuzzer(ctx, f.host, "alex", true); CodeOf(err) != CodeConflict {
		t.Fatalf("expected conflict got %v", err)
	}

	if got := f.notifier.count(resource.EventPlayerBuzzed); got != 1 {
		t.Errorf("expected 1 player-buzzed broadcast got %d", got)
	}
}

func TestJudgeHostOnly(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0, nil)
	ctx := context.Background()
	f.mustConfigure(t, "c-buzz")
	f.mustStart(t)

	if _, err := f.session.JudgeBuzzer(ctx, f.alex, "alex", true); CodeOf(err) != CodePermissionDenied {
		t.Fatalf("expected permission_denied got %v", err)
	}
}

func TestUnlockReopensBuzzer(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0, nil)
	ctx := context.Background()
	f.mustConfigure(t, "c-buzz")
	f.mustStart(t)

	if _, err := f.session.Buzz(ctx, f.alex); err != nil {
		t.Fatalf("buzz: %v", err)
	}
	if _, err := f.session.JudgeBuzzer(ctx, f.host, "alex", false); err != nil {
		t.Fatalf("judge: %v", err)
	}
	if err := f.session.Unlock(ctx, f.host); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	if _, err := f.session.Buzz(ctx, f.sam); err != nil {
		t.Fatalf("buzz after unlock: %v", err)
	}

	// Unlocking an open buzzer stays a no-op... after someone else buzzed it
	// clears them again, so only run it when open. Here it is locked by sam,
	// reopen once more and check idempotency.
	if err := f.session.Unlock(ctx, f.host); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := f.session.Unlock(ctx, f.host); err != nil {
		t.Fatalf("second unlock: %v", err)
	}
}

func TestBuzzWrongMode(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0, nil)
	ctx := context.Background()
	f.mustConfigure(t, "c-text")
	f.mustStart(t)

	if _, err := f.session.Buzz(ctx, f.alex); CodeOf(err) != CodeInvalidState {
		t.Fatalf("expected invalid_state got %v", err)
	}
}

func TestFreeTextRound(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0, nil)
	ctx := context.Background()
	f.mustConfigure(t, "c-text")
	f.mustStart(t)

	if err := f.session.SubmitAnswer(ctx, f.alex, "42"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := f.session.SubmitAnswer(ctx, f.sam, "41"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := f.session.SubmitAnswer(ctx, f.alex, "43"); CodeOf(err) != CodeConflict {
		t.Fatalf("expected conflict got %v", err)
	}

	answers, err := f.session.FetchAnswers(ctx, f.host)
	if err != nil {
		t.Fatalf("fetch answers: %v", err)
	}
	if len(answers) != 2 {
		t.Fatalf("expected 2 answers got %d", len(answers))
	}

	views, err := f.session.JudgeTextAnswers(ctx, f.host, []string{"alex"})
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	for _, v := range views {
		wantScore := 0
		if v.ParticipantID == "alex" {
			wantScore = 1
		}
		if v.Score != wantScore {
			t.Errorf("%s: expected score %d got %d", v.ParticipantID, wantScore, v.Score)
		}
	}

	if _, err := f.session.JudgeTextAnswers(ctx, f.host, []string{"alex"}); CodeOf(err) != CodeConflict {
		t.Fatalf("expected conflict got %v", err)
	}
}

func TestAdvanceThroughGame(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0, nil)
	ctx := context.Background()
	f.mustConfigure(t, "c-buzz", "c-text")
	f.mustStart(t)

	if _, err := f.session.Buzz(ctx, f.alex); err != nil {
		t.Fatalf("buzz: %v", err)
	}
	if _, err := f.session.JudgeBuzzer(ctx, f.host, "alex", true); err != nil {
		t.Fatalf("judge: %v", err)
	}

	// Question 2 of the buzzer category.
	result, err := f.session.Advance(ctx, f.host)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if result.Finished || result.CategoryChange || result.Chance {
		t.Fatalf("expected plain next question got %+v", result)
	}

	// A fresh question means a fresh buzzer race.
	if _, err := f.session.Buzz(ctx, f.sam); err != nil {
		t.Fatalf("buzz on next question: %v", err)
	}
	if _, err := f.session.JudgeBuzzer(ctx, f.host, "sam", true); err != nil {
		t.Fatalf("judge: %v", err)
	}

	// Category boundary.
	result, err = f.session.Advance(ctx, f.host)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if !result.CategoryChange {
		t.Fatalf("expected category change got %+v", result)
	}
	if f.session.State() != StateKindIntro {
		t.Fatalf("expected intro state got %d", f.session.State())
	}

	if _, err := f.session.StartCategory(ctx, f.host); err != nil {
		t.Fatalf("start category: %v", err)
	}

	if err := f.session.SubmitAnswer(ctx, f.alex, "42"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.session.JudgeTextAnswers(ctx, f.host, []string{"alex"}); err != nil {
		t.Fatalf("judge: %v", err)
	}

	if _, err := f.session.Advance(ctx, f.host); err != nil {
		t.Fatalf("advance: %v", err)
	}

	// Last question of the last category ends the game.
	result, err = f.session.Advance(ctx, f.host)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if !result.Finished {
		t.Fatalf("expected finished got %+v", result)
	}
	if f.session.State() != StateKindFinished {
		t.Fatalf("expected finished state got %d", f.session.State())
	}

	final, ok := f.notifier.last(resource.EventGameFinished)
	if !ok {
		t.Fatal("expected game-finished broadcast")
	}
	players := final.payload.(map[string]interface{})["players"].([]RosterEntry)
	if len(players) != 2 {
		t.Fatalf("expected 2 ranked players got %d", len(players))
	}
	if players[0].ID != "alex" || players[0].Score != 2 {
		t.Errorf("expected alex leading with 2 got %+v", players[0])
	}
	if players[1].ID != "sam" || players[1].Score != 1 {
		t.Errorf("expected sam second with 1 got %+v", players[1])
	}

	if _, err := f.session.Advance(ctx, f.host); CodeOf(err) != CodeInvalidState {
		t.Fatalf("expected invalid_state after finish got %v", err)
	}
}

func TestAdvanceHostOnly(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0, nil)
	ctx := context.Background()
	f.mustConfigure(t, "c-buzz")
	f.mustStart(t)

	if _, err := f.session.Advance(ctx, f.alex); CodeOf(err) != CodePermissionDenied {
		t.Fatalf("expected permission_denied got %v", err)
	}
}

func TestChanceAccepted(t *testing.T) {
	t.Parallel()

	// Draws: alex, the points side of the coin, the jackpot slot.
	f := newFixture(t, 1, &stubRand{values: []uint32{0, 0, 9}})
	ctx := context.Background()
	f.mustConfigure(t, "c-buzz")
	f.mustStart(t)

	result, err := f.session.Advance(ctx, f.host)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if !result.Chance {
		t.Fatalf("expected chance got %+v", result)
	}
	if f.session.State() != StateKindChance {
		t.Fatalf("expected chance state got %d", f.session.State())
	}

	// The question flow is suspended while the wheel spins.
	if _, err := f.session.Buzz(ctx, f.alex); CodeOf(err) != CodeInvalidState {
		t.Fatalf("expected invalid_state got %v", err)
	}

	drawn, err := f.session.DrawPlayer(ctx, f.host)
	if err != nil {
		t.Fatalf("draw player: %v", err)
	}
	if drawn.ParticipantID != "alex" {
		t.Fatalf("expected alex drawn got %s", drawn.ParticipantID)
	}

	// Only the drawn player decides.
	if err := f.session.Decide(ctx, f.sam, true); CodeOf(err) != CodePermissionDenied {
		t.Fatalf("expected permission_denied got %v", err)
	}
	if err := f.session.Decide(ctx, f.alex, true); err != nil {
		t.Fatalf("decide: %v", err)
	}

	outcome, err := f.session.DrawReward(ctx, f.host)
	if err != nil {
		t.Fatalf("draw reward: %v", err)
	}
	if outcome.Type != OutcomeTypePoints || outcome.Points != 5 {
		t.Fatalf("expected jackpot got %+v", outcome)
	}

	if err := f.session.Apply(ctx, f.host); err != nil {
		t.Fatalf("apply: %v", err)
	}

	p, err := f.participants.Fetch("alex")
	if err != nil {
		t.Fatalf("fetch participant: %v", err)
	}
	if p.Score != 5 {
		t.Errorf("expected score 5 got %d", p.Score)
	}

	// The suspended advance completed into the next question.
	if f.session.State() != StateKindQuestion {
		t.Errorf("expected question state got %d", f.session.State())
	}
	if got := f.notifier.count(resource.EventQuestionNext); got != 1 {
		t.Errorf("expected 1 next-question broadcast got %d", got)
	}
}

func TestChanceDeclined(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1, &stubRand{values: []uint32{1}})
	ctx := context.Background()
	f.mustConfigure(t, "c-buzz")
	f.mustStart(t)

	if _, err := f.session.Advance(ctx, f.host); err != nil {
		t.Fatalf("advance: %v", err)
	}
	drawn, err := f.session.DrawPlayer(ctx, f.host)
	if err != nil {
		t.Fatalf("draw player: %v", err)
	}
	if drawn.ParticipantID != "sam" {
		t.Fatalf("expected sam drawn got %s", drawn.ParticipantID)
	}

	if err := f.session.Decide(ctx, f.sam, false); err != nil {
		t.Fatalf("decide: %v", err)
	}

	// Passing ends the sub-flow and the advance completes unchanged.
	if f.session.State() != StateKindQuestion {
		t.Fatalf("expected question state got %d", f.session.State())
	}

	p, err := f.participants.Fetch("sam")
	if err != nil {
		t.Fatalf("fetch participant: %v", err)
	}
	if p.Score != 0 {
		t.Errorf("expected no score change got %d", p.Score)
	}

	if _, err := f.session.DrawPlayer(ctx, f.host); CodeOf(err) != CodeInvalidState {
		t.Fatalf("expected invalid_state got %v", err)
	}
}

func TestChancePenalty(t *testing.T) {
	t.Parallel()

	// Draws: alex, the penalty side of the coin, the first penalty.
	f := newFixture(t, 1, &stubRand{values: []uint32{0, 1, 0}})
	ctx := context.Background()
	f.mustConfigure(t, "c-buzz")
	f.mustStart(t)

	if _, err := f.session.Advance(ctx, f.host); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if _, err := f.session.DrawPlayer(ctx, f.host); err != nil {
		t.Fatalf("draw player: %v", err)
	}
	if err := f.session.Decide(ctx, f.alex, true); err != nil {
		t.Fatalf("decide: %v", err)
	}

	outcome, err := f.session.DrawReward(ctx, f.host)
	if err != nil {
		t.Fatalf("draw reward: %v", err)
	}
	if outcome.Type != OutcomeTypePenalty {
		t.Fatalf("expected penalty got %+v", outcome)
	}

	if err := f.session.Apply(ctx, f.host); err != nil {
		t.Fatalf("apply: %v", err)
	}

	active, err := f.punishments.FetchByRoom("r1")
	if err != nil {
		t.Fatalf("fetch punishments: %v", err)
	}
	if len(active) != 1 || active[0].ParticipantID != "alex" {
		t.Fatalf("expected alex punished got %+v", active)
	}
	if active[0].Remaining != outcome.Questions {
		t.Errorf("expected %d questions remaining got %d", outcome.Questions, active[0].Remaining)
	}
}

func TestSnapshot(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0, nil)
	ctx := context.Background()
	f.mustConfigure(t, "c-buzz")
	f.mustStart(t)

	if _, err := f.session.Buzz(ctx, f.alex); err != nil {
		t.Fatalf("buzz: %v", err)
	}

	snapshot, err := f.session.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	if snapshot.Status != roomModel.StatusPlaying {
		t.Errorf("expected playing got %s", snapshot.Status)
	}
	if snapshot.Category == nil || snapshot.Category.ID != "c-buzz" {
		t.Errorf("expected buzzer category got %+v", snapshot.Category)
	}
	if snapshot.Question == nil || snapshot.Question.Order != 0 {
		t.Errorf("expected first question got %+v", snapshot.Question)
	}
	if len(snapshot.Players) != 2 {
		t.Errorf("expected 2 players got %d", len(snapshot.Players))
	}
	if !snapshot.BuzzerLocked || snapshot.BuzzerWinner == nil || snapshot.BuzzerWinner.ID != "alex" {
		t.Errorf("expected alex holding the buzzer got %+v", snapshot.BuzzerWinner)
	}

	// Projection only: a second snapshot is identical.
	again, err := f.session.Snapshot(ctx)
	if err != nil {
		t.Fatalf("second snapshot: %v", err)
	}
	if again.Question.ID != snapshot.Question.ID {
		t.Error("expected snapshot to not move the game")
	}
}

func TestSnapshotInLobby(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0, nil)
	ctx := context.Background()

	snapshot, err := f.session.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snapshot.Status != roomModel.StatusLobby {
		t.Errorf("expected lobby got %s", snapshot.Status)
	}
	if snapshot.Category != nil || snapshot.Question != nil {
		t.Errorf("expected no category or question, got %+v %+v", snapshot.Category, snapshot.Question)
	}
}
