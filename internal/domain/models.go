package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Mode selects how a play session draws its questions.
type Mode string

const (
	ModeSolo     Mode = "solo"
	ModeContest  Mode = "contest"
	ModeFinalist Mode = "finalist"
)

// UserProfile is the player record. Level and HonoraryTitle are projections of XP.
type UserProfile struct {
	ID                string          `json:"id"`
	Username          string          `json:"username"`
	XP                int64           `json:"xp"`
	Level             int             `json:"level"`
	HonoraryTitle     string          `json:"honorary_title"`
	LastLevelNotified int             `json:"last_level_notified"`
	BalanceHTG        decimal.Decimal `json:"balance_htg"`
	IsAdmin           bool            `json:"is_admin"`
	// XPSessionID is the last session whose experience was applied to this profile.
	XPSessionID string `json:"-"`
}

// Wallet aggregates a user's ledger. TotalBalance is the authoritative spendable balance.
type Wallet struct {
	UserID         string          `json:"user_id"`
	TotalBalance   decimal.Decimal `json:"total_balance"`
	TotalDeposited decimal.Decimal `json:"total_deposited"`
	TotalWithdrawn decimal.Decimal `json:"total_withdrawn"`
	TotalWon       decimal.Decimal `json:"total_won"`
}

type TransactionType string

const (
	TransactionDeposit    TransactionType = "deposit"
	TransactionWithdrawal TransactionType = "withdrawal"
	TransactionEntryFee   TransactionType = "entry_fee"
	TransactionPrize      TransactionType = "prize"
	TransactionRefund     TransactionType = "refund"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

// Transaction is a ledger entry. Completed entries are never mutated.
type Transaction struct {
	ID            string            `json:"id"`
	UserID        string            `json:"user_id"`
	Amount        decimal.Decimal   `json:"amount"`
	Type          TransactionType   `json:"type"`
	Status        TransactionStatus `json:"status"`
	ReferenceID   string            `json:"reference_id,omitempty"`
	PaymentMethod string            `json:"payment_method,omitempty"`
	Description   string            `json:"description,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// DifficultyExpert is the difficulty used for finalist rounds.
const DifficultyExpert = 4

// Question is a multiple choice question; CorrectIndex points into Options.
type Question struct {
	ID           string   `json:"id"`
	Category     string   `json:"category"`
	Difficulty   int      `json:"difficulty"`
	Text         string   `json:"question_text"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	ForContest   bool     `json:"is_for_contest"`
	ForSolo      bool     `json:"is_for_solo"`
}

// GameSession is the durable record of one play-through.
type GameSession struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	ContestID   string     `json:"contest_id,omitempty"`
	QuestionIDs []string   `json:"questions_ids"`
	IsCompleted bool       `json:"is_completed"`
	Score       int        `json:"score"`
	TotalTimeMs int64      `json:"total_time_ms"`
	IsFinalist  bool       `json:"is_finalist"`
	XPSettled   bool       `json:"xp_settled"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsContest reports whether the session counts towards a contest.
func (s GameSession) IsContest() bool {
	return s.ContestID != ""
}

type ParticipantStatus string

const (
	ParticipantJoined       ParticipantStatus = "joined"
	ParticipantCompleted    ParticipantStatus = "completed"
	ParticipantDisqualified ParticipantStatus = "disqualified"
)

// ContestParticipant is unique per (ContestID, UserID).
type ContestParticipant struct {
	ID          string            `json:"id"`
	ContestID   string            `json:"contest_id"`
	UserID      string            `json:"user_id"`
	Status      ParticipantStatus `json:"status"`
	Score       int               `json:"score"`
	JoinedAt    time.Time         `json:"joined_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

type ContestStatus string

const (
	ContestPending   ContestStatus = "pending"
	ContestScheduled ContestStatus = "scheduled"
	ContestActive    ContestStatus = "active"
	ContestFinished  ContestStatus = "finished"
)

// PrizeRanks is the number of ranks with a configurable prize share.
const PrizeRanks = 10

// Contest is an admin-curated, paid competition.
type Contest struct {
	ID                  string          `json:"id"`
	Title               string          `json:"title"`
	QuestionIDs         []string        `json:"questions_ids"`
	QuestionCount       int             `json:"question_count"`
	EntryFee            decimal.Decimal `json:"entry_fee"`
	MinParticipants     int             `json:"min_participants"`
	MaxParticipants     int             `json:"max_participants"`
	CurrentParticipants int             `json:"current_participants"`
	Status              ContestStatus   `json:"status"`
	GrandPrize          decimal.Decimal `json:"grand_prize"`
	AdminMarginPercent  decimal.Decimal `json:"admin_margin_percent"`
	// PrizePercents holds the share of the pool for ranks 1..10, in percent.
	PrizePercents []decimal.Decimal `json:"prize_percents"`
	HasFinalRound bool              `json:"has_final_round"`
	ScheduledAt   *time.Time        `json:"scheduled_at,omitempty"`
	EndsAt        *time.Time        `json:"ends_at,omitempty"`
}

// Ended reports whether the contest no longer accepts entries at now.
func (c Contest) Ended(now time.Time) bool {
	return c.EndsAt != nil && !c.EndsAt.After(now)
}

// SyncAnswer is one entry of a finished session's answer log.
type SyncAnswer struct {
	QuestionID  string `json:"questionId" validate:"required"`
	IsCorrect   bool   `json:"isCorrect"`
	TimeSpentMs int64  `json:"timeSpent" validate:"gte=0"`
}

// SyncPayload is a finished session waiting to be settled.
type SyncPayload struct {
	SessionID   string       `json:"sessionId" validate:"required"`
	UserID      string       `json:"userId" validate:"required"`
	Score       int          `json:"score" validate:"gte=0"`
	TotalTimeMs int64        `json:"total_time_ms" validate:"gte=0"`
	Answers     []SyncAnswer `json:"answers" validate:"dive"`
}

// QuestionIDs lists the answered question ids in log order.
func (p SyncPayload) QuestionIDs() []string {
	ids := make([]string, 0, len(p.Answers))
	for _, a := range p.Answers {
		ids = append(ids, a.QuestionID)
	}
	return ids
}

// ProgressRecord logs one answered question for a user.
type ProgressRecord struct {
	UserID     string    `json:"user_id"`
	QuestionID string    `json:"question_id"`
	SessionID  string    `json:"session_id"`
	IsCorrect  bool      `json:"is_correct"`
	CreatedAt  time.Time `json:"created_at"`
}

// LevelTitle is a row of the level configuration table.
type LevelTitle struct {
	Level int    `json:"level"`
	Title string `json:"title"`
}

// XPUpdate is the profile patch written by settlement.
type XPUpdate struct {
	SessionID string
	// PreviousXP is the experience the update was computed from.
	PreviousXP int64
	XP         int64
	Level      int
	Title      string
}

// QuestionFilter narrows a question id listing.
type QuestionFilter struct {
	ForSolo    bool
	Difficulty int
	ExcludeIDs []string
	Limit      int
}
