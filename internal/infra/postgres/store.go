package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"contest-engine/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

const uniqueViolation = "23505"

// Store is the Postgres record store behind every app repository.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// Open connects bun to dsn with the pg driver.
func Open(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func notFound(err error, sentinel error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolation
}

func (s *Store) GetProfile(ctx context.Context, userID string) (domain.UserProfile, error) {
	var m profileModel
	if err := s.db.NewSelect().Model(&m).Where("id = ?", userID).Scan(ctx); err != nil {
		return domain.UserProfile{}, notFound(err, domain.ErrProfileNotFound)
	}
	return m.toDomain(), nil
}

func (s *Store) UpsertProfile(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	m := profileFromDomain(profile)
	_, err := s.db.NewInsert().Model(&m).
		On("CONFLICT (id) DO UPDATE").
		Set("username = EXCLUDED.username").
		Set("xp = EXCLUDED.xp").
		Set("level = EXCLUDED.level").
		Set("honorary_title = EXCLUDED.honorary_title").
		Set("last_level_notified = EXCLUDED.last_level_notified").
		Set("balance_htg = EXCLUDED.balance_htg").
		Set("is_admin = EXCLUDED.is_admin").
		Set("xp_session_id = EXCLUDED.xp_session_id").
		Exec(ctx)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("upsert profile: %w", err)
	}
	return profile, nil
}

// ApplyXP only touches the row when update.SessionID differs from the stored
// watermark and xp still equals update.PreviousXP, so a replayed session
// cannot add its experience twice and a concurrent award is never overwritten.
func (s *Store) ApplyXP(ctx context.Context, userID string, update domain.XPUpdate) (bool, error) {
	res, err := s.db.NewUpdate().Model((*profileModel)(nil)).
		Set("xp = ?", update.XP).
		Set("level = ?", update.Level).
		Set("honorary_title = ?", update.Title).
		Set("xp_session_id = ?", update.SessionID).
		Where("id = ?", userID).
		Where("xp_session_id IS DISTINCT FROM ?", update.SessionID).
		Where("xp = ?", update.PreviousXP).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("apply xp: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		profile, err := s.GetProfile(ctx, userID)
		if err != nil {
			return false, err
		}
		if profile.XPSessionID != update.SessionID {
			return false, domain.ErrXPConflict
		}
		return false, nil
	}
	return true, nil
}

func (s *Store) SetBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	return s.updateProfile(ctx, userID, "balance_htg = ?", balance)
}

func (s *Store) SetLastLevelNotified(ctx context.Context, userID string, level int) error {
	return s.updateProfile(ctx, userID, "last_level_notified = ?", level)
}

func (s *Store) updateProfile(ctx context.Context, userID, set string, value any) error {
	res, err := s.db.NewUpdate().Model((*profileModel)(nil)).
		Set(set, value).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrProfileNotFound
	}
	return nil
}

func (s *Store) GetWallet(ctx context.Context, userID string) (domain.Wallet, error) {
	var m walletModel
	if err := s.db.NewSelect().Model(&m).Where("user_id = ?", userID).Scan(ctx); err != nil {
		return domain.Wallet{}, notFound(err, domain.ErrWalletNotFound)
	}
	return m.toDomain(), nil
}

func (s *Store) UpsertWallet(ctx context.Context, wallet domain.Wallet) (domain.Wallet, error) {
	m := walletModel{
		UserID:         wallet.UserID,
		TotalBalance:   wallet.TotalBalance,
		TotalDeposited: wallet.TotalDeposited,
		TotalWithdrawn: wallet.TotalWithdrawn,
		TotalWon:       wallet.TotalWon,
	}
	_, err := s.db.NewInsert().Model(&m).
		On("CONFLICT (user_id) DO UPDATE").
		Set("total_balance = EXCLUDED.total_balance").
		Set("total_deposited = EXCLUDED.total_deposited").
		Set("total_withdrawn = EXCLUDED.total_withdrawn").
		Set("total_won = EXCLUDED.total_won").
		Exec(ctx)
	if err != nil {
		return domain.Wallet{}, fmt.Errorf("upsert wallet: %w", err)
	}
	return wallet, nil
}

func (s *Store) InsertTransaction(ctx context.Context, tx domain.Transaction) error {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	m := transactionModel{
		ID:            tx.ID,
		UserID:        tx.UserID,
		Amount:        tx.Amount,
		Type:          string(tx.Type),
		Status:        string(tx.Status),
		ReferenceID:   tx.ReferenceID,
		PaymentMethod: tx.PaymentMethod,
		Description:   tx.Description,
		CreatedAt:     tx.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	var rows []transactionModel
	q := s.db.NewSelect().Model(&rows).Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.Transaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) CorrectQuestionIDs(ctx context.Context, userID string, among []string, excludeSessionID string) (map[string]struct{}, error) {
	seen := make(map[string]struct{})
	if among != nil && len(among) == 0 {
		return seen, nil
	}
	var ids []string
	q := s.db.NewSelect().Model((*progressModel)(nil)).
		Distinct().
		Column("question_id").
		Where("user_id = ?", userID).
		Where("is_correct")
	if excludeSessionID != "" {
		q = q.Where("session_id <> ?", excludeSessionID)
	}
	if among != nil {
		q = q.Where("question_id IN (?)", bun.In(among))
	}
	if err := q.Scan(ctx, &ids); err != nil {
		return nil, fmt.Errorf("correct questions: %w", err)
	}
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return seen, nil
}

func (s *Store) InsertProgress(ctx context.Context, records []domain.ProgressRecord) error {
	if len(records) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]progressModel, 0, len(records))
	for _, r := range records {
		created := r.CreatedAt
		if created.IsZero() {
			created = now
		}
		rows = append(rows, progressModel{
			UserID:     r.UserID,
			QuestionID: r.QuestionID,
			SessionID:  r.SessionID,
			IsCorrect:  r.IsCorrect,
			CreatedAt:  created,
		})
	}
	_, err := s.db.NewInsert().Model(&rows).
		On("CONFLICT (session_id, question_id) DO NOTHING").
		Returning("NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert progress: %w", err)
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, session domain.GameSession) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	m := sessionModel{
		ID:          session.ID,
		UserID:      session.UserID,
		ContestID:   session.ContestID,
		QuestionIDs: session.QuestionIDs,
		IsCompleted: session.IsCompleted,
		Score:       session.Score,
		TotalTimeMs: session.TotalTimeMs,
		IsFinalist:  session.IsFinalist,
		XPSettled:   session.XPSettled,
		CreatedAt:   session.CreatedAt,
		CompletedAt: session.CompletedAt,
	}
	if _, err := s.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (domain.GameSession, error) {
	var m sessionModel
	if err := s.db.NewSelect().Model(&m).Where("id = ?", sessionID).Scan(ctx); err != nil {
		return domain.GameSession{}, notFound(err, domain.ErrSessionNotFound)
	}
	return m.toDomain(), nil
}

func (s *Store) CompleteSession(ctx context.Context, sessionID string, score int, totalTimeMs int64, at time.Time) (bool, error) {
	res, err := s.db.NewUpdate().Model((*sessionModel)(nil)).
		Set("is_completed = TRUE").
		Set("score = ?", score).
		Set("total_time_ms = ?", totalTimeMs).
		Set("completed_at = ?", at).
		Where("id = ?", sessionID).
		Where("NOT is_completed").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("complete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) MarkXPSettled(ctx context.Context, sessionID string) error {
	res, err := s.db.NewUpdate().Model((*sessionModel)(nil)).
		Set("xp_settled = TRUE").
		Where("id = ?", sessionID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *Store) FindTies(ctx context.Context, contestID, excludeUserID string, score int, totalTimeMs int64) ([]domain.GameSession, error) {
	var rows []sessionModel
	err := s.db.NewSelect().Model(&rows).
		Where("contest_id = ?", contestID).
		Where("user_id <> ?", excludeUserID).
		Where("is_completed").
		Where("score = ?", score).
		Where("total_time_ms = ?", totalTimeMs).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("find ties: %w", err)
	}
	out := make([]domain.GameSession, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) MarkFinalists(ctx context.Context, sessionIDs []string) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	_, err := s.db.NewUpdate().Model((*sessionModel)(nil)).
		Set("is_finalist = TRUE").
		Where("id IN (?)", bun.In(sessionIDs)).
		Exec(ctx)
	return err
}

func (s *Store) GetContest(ctx context.Context, contestID string) (domain.Contest, error) {
	var m contestModel
	if err := s.db.NewSelect().Model(&m).Where("id = ?", contestID).Scan(ctx); err != nil {
		return domain.Contest{}, notFound(err, domain.ErrContestNotFound)
	}
	return m.toDomain(), nil
}

// UpsertContest creates or replaces a contest definition.
func (s *Store) UpsertContest(ctx context.Context, contest domain.Contest) error {
	m := contestFromDomain(contest)
	_, err := s.db.NewInsert().Model(&m).
		On("CONFLICT (id) DO UPDATE").
		Set("title = EXCLUDED.title").
		Set("questions_ids = EXCLUDED.questions_ids").
		Set("question_count = EXCLUDED.question_count").
		Set("entry_fee = EXCLUDED.entry_fee").
		Set("min_participants = EXCLUDED.min_participants").
		Set("max_participants = EXCLUDED.max_participants").
		Set("status = EXCLUDED.status").
		Set("grand_prize = EXCLUDED.grand_prize").
		Set("admin_margin_percent = EXCLUDED.admin_margin_percent").
		Set("prize_percents = EXCLUDED.prize_percents").
		Set("has_final_round = EXCLUDED.has_final_round").
		Set("scheduled_at = EXCLUDED.scheduled_at").
		Set("ends_at = EXCLUDED.ends_at").
		Exec(ctx)
	return err
}

func (s *Store) IncrementParticipants(ctx context.Context, contestID string) error {
	res, err := s.db.NewUpdate().Model((*contestModel)(nil)).
		Set("current_participants = current_participants + 1").
		Where("id = ?", contestID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrContestNotFound
	}
	return nil
}

func (s *Store) ListContestsByStatus(ctx context.Context, status domain.ContestStatus) ([]domain.Contest, error) {
	var rows []contestModel
	err := s.db.NewSelect().Model(&rows).
		Where("status = ?", string(status)).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Contest, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) SetContestStatus(ctx context.Context, contestID string, status domain.ContestStatus) error {
	res, err := s.db.NewUpdate().Model((*contestModel)(nil)).
		Set("status = ?", string(status)).
		Where("id = ?", contestID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrContestNotFound
	}
	return nil
}

func (s *Store) GetParticipant(ctx context.Context, contestID, userID string) (domain.ContestParticipant, error) {
	var m participantModel
	err := s.db.NewSelect().Model(&m).
		Where("contest_id = ?", contestID).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		return domain.ContestParticipant{}, notFound(err, domain.ErrParticipantNotFound)
	}
	return m.toDomain(), nil
}

func (s *Store) InsertParticipant(ctx context.Context, participant domain.ContestParticipant) error {
	if participant.JoinedAt.IsZero() {
		participant.JoinedAt = time.Now().UTC()
	}
	m := participantModel{
		ID:          participant.ID,
		ContestID:   participant.ContestID,
		UserID:      participant.UserID,
		Status:      string(participant.Status),
		Score:       participant.Score,
		JoinedAt:    participant.JoinedAt,
		CompletedAt: participant.CompletedAt,
	}
	if _, err := s.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyJoined
		}
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func (s *Store) CompleteParticipant(ctx context.Context, contestID, userID string, score int, at time.Time) error {
	res, err := s.db.NewUpdate().Model((*participantModel)(nil)).
		Set("status = ?", string(domain.ParticipantCompleted)).
		Set("score = ?", score).
		Set("completed_at = ?", at).
		Where("contest_id = ?", contestID).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrParticipantNotFound
	}
	return nil
}

func (s *Store) DisqualifyParticipant(ctx context.Context, contestID, userID string) error {
	res, err := s.db.NewUpdate().Model((*participantModel)(nil)).
		Set("status = ?", string(domain.ParticipantDisqualified)).
		Where("contest_id = ?", contestID).
		Where("user_id = ?", userID).
		Where("status = ?", string(domain.ParticipantJoined)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetParticipant(ctx, contestID, userID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListParticipants(ctx context.Context, contestID string) ([]domain.ContestParticipant, error) {
	return s.listParticipants(ctx, "contest_id = ?", contestID)
}

func (s *Store) ListUserParticipations(ctx context.Context, userID string) ([]domain.ContestParticipant, error) {
	return s.listParticipants(ctx, "user_id = ?", userID)
}

func (s *Store) listParticipants(ctx context.Context, where string, arg string) ([]domain.ContestParticipant, error) {
	var rows []participantModel
	if err := s.db.NewSelect().Model(&rows).Where(where, arg).Order("joined_at ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.ContestParticipant, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) TitleFor(ctx context.Context, level int) (string, bool, error) {
	var title string
	err := s.db.NewSelect().Model((*levelModel)(nil)).
		Column("title").
		Where("level <= ?", level).
		OrderExpr("level DESC").
		Limit(1).
		Scan(ctx, &title)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return title, true, nil
}

// PutLevelTitles upserts rows of the level configuration table.
func (s *Store) PutLevelTitles(ctx context.Context, rows ...domain.LevelTitle) error {
	if len(rows) == 0 {
		return nil
	}
	models := make([]levelModel, 0, len(rows))
	for _, r := range rows {
		models = append(models, levelModel{Level: r.Level, Title: r.Title})
	}
	_, err := s.db.NewInsert().Model(&models).
		On("CONFLICT (level) DO UPDATE").
		Set("title = EXCLUDED.title").
		Exec(ctx)
	return err
}
