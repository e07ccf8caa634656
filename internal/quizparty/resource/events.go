package resource

// Request events, one per core operation.
const (
	EventCreateRoom          = "create-room"
	EventJoinRoom            = "join-room"
	EventRejoin              = "rejoin"
	EventConfigureCategories = "configure-categories"
	EventStartGame           = "start-game"
	EventStartCategory       = "start-category"
	EventBuzz                = "buzz"
	EventUnlockBuzzer        = "unlock-buzzer"
	EventSubmitTextAnswer    = "submit-text-answer"
	EventFetchTextAnswers    = "fetch-text-answers"
	EventJudgeBuzzerAnswer   = "judge-buzzer-answer"
	EventJudgeTextAnswers    = "judge-text-answers"
	EventNextQuestion        = "next-question"
	EventChanceDrawPlayer    = "chance-draw-player"
	EventChanceDecide        = "chance-decide"
	EventChanceDrawReward    = "chance-draw-reward"
	EventChanceApply         = "chance-apply"
)

// Broadcast events.
const (
	EventPlayersUpdate     = "players-update"
	EventCategoryIntro     = "category-intro"
	EventCategoryStarted   = "category-started"
	EventQuestionNext      = "next-question"
	EventPlayerBuzzed      = "player-buzzed"
	EventBuzzerUnlocked    = "buzzer-unlocked"
	EventScoresUpdate      = "scores-update"
	EventAnswerJudged      = "answer-judged"
	EventAnswerSubmitted   = "answer-submitted"
	EventAnswersJudged     = "answers-judged"
	EventGameFinished      = "game-finished"
	EventChanceTriggered   = "chance-triggered"
	EventChancePlayerDrawn = "chance-player-drawn"
	EventChanceDecided     = "chance-decided"
	EventChanceRewardDrawn = "chance-reward-drawn"
	EventChanceApplied     = "chance-applied"
	EventPunishmentExpired = "punishment-expired"
)
