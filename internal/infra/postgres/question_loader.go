package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"contest-engine/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionLoader reads question content and id listings from Postgres.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) ListQuestionIDs(ctx context.Context, filter domain.QuestionFilter) ([]string, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.ForSolo {
		where = append(where, "is_for_solo")
	}
	if filter.Difficulty > 0 {
		args = append(args, filter.Difficulty)
		where = append(where, fmt.Sprintf("difficulty = $%d", len(args)))
	}
	if len(filter.ExcludeIDs) > 0 {
		args = append(args, filter.ExcludeIDs)
		where = append(where, fmt.Sprintf("NOT (id = ANY($%d))", len(args)))
	}

	query := "SELECT id FROM questions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LoadQuestions returns the questions found for ids.
func (l *QuestionLoader) LoadQuestions(ctx context.Context, ids []string) ([]domain.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := l.pool.Query(ctx, `
		SELECT id, category, difficulty, question_text, options, correct_index, is_for_contest, is_for_solo
		FROM questions WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Question, 0, len(ids))
	for rows.Next() {
		var (
			q   domain.Question
			raw []byte
		)
		if err := rows.Scan(&q.ID, &q.Category, &q.Difficulty, &q.Text, &raw, &q.CorrectIndex, &q.ForContest, &q.ForSolo); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &q.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options of %s: %w", q.ID, err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (l *QuestionLoader) GetQuestions(ctx context.Context, ids []string) ([]domain.Question, error) {
	return l.LoadQuestions(ctx, ids)
}

// InsertQuestions upserts question content.
func (l *QuestionLoader) InsertQuestions(ctx context.Context, questions ...domain.Question) error {
	for _, q := range questions {
		options, err := json.Marshal(q.Options)
		if err != nil {
			return err
		}
		_, err = l.pool.Exec(ctx, `
			INSERT INTO questions (id, category, difficulty, question_text, options, correct_index, is_for_contest, is_for_solo)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				category = EXCLUDED.category,
				difficulty = EXCLUDED.difficulty,
				question_text = EXCLUDED.question_text,
				options = EXCLUDED.options,
				correct_index = EXCLUDED.correct_index,
				is_for_contest = EXCLUDED.is_for_contest,
				is_for_solo = EXCLUDED.is_for_solo`,
			q.ID, q.Category, q.Difficulty, q.Text, string(options), q.CorrectIndex, q.ForContest, q.ForSolo)
		if err != nil {
			return fmt.Errorf("insert question %s: %w", q.ID, err)
		}
	}
	return nil
}
