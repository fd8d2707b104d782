package postgres

import (
	"time"

	"contest-engine/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type profileModel struct {
	bun.BaseModel `bun:"table:profiles,alias:p"`

	ID                string          `bun:"id,pk"`
	Username          string          `bun:"username"`
	XP                int64           `bun:"xp"`
	Level             int             `bun:"level"`
	HonoraryTitle     string          `bun:"honorary_title"`
	LastLevelNotified int             `bun:"last_level_notified"`
	BalanceHTG        decimal.Decimal `bun:"balance_htg,type:numeric"`
	IsAdmin           bool            `bun:"is_admin"`
	XPSessionID       string          `bun:"xp_session_id,nullzero"`
}

func (m profileModel) toDomain() domain.UserProfile {
	return domain.UserProfile{
		ID:                m.ID,
		Username:          m.Username,
		XP:                m.XP,
		Level:             m.Level,
		HonoraryTitle:     m.HonoraryTitle,
		LastLevelNotified: m.LastLevelNotified,
		BalanceHTG:        m.BalanceHTG,
		IsAdmin:           m.IsAdmin,
		XPSessionID:       m.XPSessionID,
	}
}

func profileFromDomain(p domain.UserProfile) profileModel {
	return profileModel{
		ID:                p.ID,
		Username:          p.Username,
		XP:                p.XP,
		Level:             p.Level,
		HonoraryTitle:     p.HonoraryTitle,
		LastLevelNotified: p.LastLevelNotified,
		BalanceHTG:        p.BalanceHTG,
		IsAdmin:           p.IsAdmin,
		XPSessionID:       p.XPSessionID,
	}
}

type walletModel struct {
	bun.BaseModel `bun:"table:wallets,alias:w"`

	UserID         string          `bun:"user_id,pk"`
	TotalBalance   decimal.Decimal `bun:"total_balance,type:numeric"`
	TotalDeposited decimal.Decimal `bun:"total_deposited,type:numeric"`
	TotalWithdrawn decimal.Decimal `bun:"total_withdrawn,type:numeric"`
	TotalWon       decimal.Decimal `bun:"total_won,type:numeric"`
}

func (m walletModel) toDomain() domain.Wallet {
	return domain.Wallet{
		UserID:         m.UserID,
		TotalBalance:   m.TotalBalance,
		TotalDeposited: m.TotalDeposited,
		TotalWithdrawn: m.TotalWithdrawn,
		TotalWon:       m.TotalWon,
	}
}

type transactionModel struct {
	bun.BaseModel `bun:"table:transactions,alias:t"`

	ID            string          `bun:"id,pk"`
	UserID        string          `bun:"user_id"`
	Amount        decimal.Decimal `bun:"amount,type:numeric"`
	Type          string          `bun:"type"`
	Status        string          `bun:"status"`
	ReferenceID   string          `bun:"reference_id,nullzero"`
	PaymentMethod string          `bun:"payment_method,nullzero"`
	Description   string          `bun:"description,nullzero"`
	CreatedAt     time.Time       `bun:"created_at"`
}

func (m transactionModel) toDomain() domain.Transaction {
	return domain.Transaction{
		ID:            m.ID,
		UserID:        m.UserID,
		Amount:        m.Amount,
		Type:          domain.TransactionType(m.Type),
		Status:        domain.TransactionStatus(m.Status),
		ReferenceID:   m.ReferenceID,
		PaymentMethod: m.PaymentMethod,
		Description:   m.Description,
		CreatedAt:     m.CreatedAt,
	}
}

type sessionModel struct {
	bun.BaseModel `bun:"table:game_sessions,alias:gs"`

	ID          string     `bun:"id,pk"`
	UserID      string     `bun:"user_id"`
	ContestID   string     `bun:"contest_id,nullzero"`
	QuestionIDs []string   `bun:"questions_ids,type:jsonb"`
	IsCompleted bool       `bun:"is_completed"`
	Score       int        `bun:"score"`
	TotalTimeMs int64      `bun:"total_time_ms"`
	IsFinalist  bool       `bun:"is_finalist"`
	XPSettled   bool       `bun:"xp_settled"`
	CreatedAt   time.Time  `bun:"created_at"`
	CompletedAt *time.Time `bun:"completed_at"`
}

func (m sessionModel) toDomain() domain.GameSession {
	return domain.GameSession{
		ID:          m.ID,
		UserID:      m.UserID,
		ContestID:   m.ContestID,
		QuestionIDs: m.QuestionIDs,
		IsCompleted: m.IsCompleted,
		Score:       m.Score,
		TotalTimeMs: m.TotalTimeMs,
		IsFinalist:  m.IsFinalist,
		XPSettled:   m.XPSettled,
		CreatedAt:   m.CreatedAt,
		CompletedAt: m.CompletedAt,
	}
}

type progressModel struct {
	bun.BaseModel `bun:"table:user_solo_progress,alias:usp"`

	ID         int64     `bun:"id,pk,autoincrement"`
	UserID     string    `bun:"user_id"`
	QuestionID string    `bun:"question_id"`
	SessionID  string    `bun:"session_id"`
	IsCorrect  bool      `bun:"is_correct"`
	CreatedAt  time.Time `bun:"created_at"`
}

type contestModel struct {
	bun.BaseModel `bun:"table:contests,alias:c"`

	ID                  string            `bun:"id,pk"`
	Title               string            `bun:"title"`
	QuestionIDs         []string          `bun:"questions_ids,type:jsonb"`
	QuestionCount       int               `bun:"question_count"`
	EntryFee            decimal.Decimal   `bun:"entry_fee,type:numeric"`
	MinParticipants     int               `bun:"min_participants"`
	MaxParticipants     int               `bun:"max_participants"`
	CurrentParticipants int               `bun:"current_participants"`
	Status              string            `bun:"status"`
	GrandPrize          decimal.Decimal   `bun:"grand_prize,type:numeric"`
	AdminMarginPercent  decimal.Decimal   `bun:"admin_margin_percent,type:numeric"`
	PrizePercents       []decimal.Decimal `bun:"prize_percents,type:jsonb"`
	HasFinalRound       bool              `bun:"has_final_round"`
	ScheduledAt         *time.Time        `bun:"scheduled_at"`
	EndsAt              *time.Time        `bun:"ends_at"`
}

func (m contestModel) toDomain() domain.Contest {
	return domain.Contest{
		ID:                  m.ID,
		Title:               m.Title,
		QuestionIDs:         m.QuestionIDs,
		QuestionCount:       m.QuestionCount,
		EntryFee:            m.EntryFee,
		MinParticipants:     m.MinParticipants,
		MaxParticipants:     m.MaxParticipants,
		CurrentParticipants: m.CurrentParticipants,
		Status:              domain.ContestStatus(m.Status),
		GrandPrize:          m.GrandPrize,
		AdminMarginPercent:  m.AdminMarginPercent,
		PrizePercents:       m.PrizePercents,
		HasFinalRound:       m.HasFinalRound,
		ScheduledAt:         m.ScheduledAt,
		EndsAt:              m.EndsAt,
	}
}

func contestFromDomain(c domain.Contest) contestModel {
	// jsonb columns are NOT NULL
	if c.QuestionIDs == nil {
		c.QuestionIDs = []string{}
	}
	if c.PrizePercents == nil {
		c.PrizePercents = []decimal.Decimal{}
	}
	return contestModel{
		ID:                  c.ID,
		Title:               c.Title,
		QuestionIDs:         c.QuestionIDs,
		QuestionCount:       c.QuestionCount,
		EntryFee:            c.EntryFee,
		MinParticipants:     c.MinParticipants,
		MaxParticipants:     c.MaxParticipants,
		CurrentParticipants: c.CurrentParticipants,
		Status:              string(c.Status),
		GrandPrize:          c.GrandPrize,
		AdminMarginPercent:  c.AdminMarginPercent,
		PrizePercents:       c.PrizePercents,
		HasFinalRound:       c.HasFinalRound,
		ScheduledAt:         c.ScheduledAt,
		EndsAt:              c.EndsAt,
	}
}

type participantModel struct {
	bun.BaseModel `bun:"table:contest_participants,alias:cp"`

	ID          string     `bun:"id,pk"`
	ContestID   string     `bun:"contest_id"`
	UserID      string     `bun:"user_id"`
	Status      string     `bun:"status"`
	Score       int        `bun:"score"`
	JoinedAt    time.Time  `bun:"joined_at"`
	CompletedAt *time.Time `bun:"completed_at"`
}

func (m participantModel) toDomain() domain.ContestParticipant {
	return domain.ContestParticipant{
		ID:          m.ID,
		ContestID:   m.ContestID,
		UserID:      m.UserID,
		Status:      domain.ParticipantStatus(m.Status),
		Score:       m.Score,
		JoinedAt:    m.JoinedAt,
		CompletedAt: m.CompletedAt,
	}
}

type levelModel struct {
	bun.BaseModel `bun:"table:levels_config,alias:lc"`

	Level int    `bun:"level,pk"`
	Title string `bun:"title"`
}
