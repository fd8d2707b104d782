package memory

import (
	"context"
	"testing"
	"time"

	"contest-engine/internal/domain"
)

func TestQuestionCacheCaches(t *testing.T) {
	store := NewStore()
	store.PutQuestions(sampleQuestions()...)
	loader := &countingLoader{QuestionLoader: store}
	cache := NewQuestionCache(store, loader, time.Minute)

	got, err := cache.GetQuestions(context.Background(), []string{"q1", "q2"})
	if err != nil {
		t.Fatalf("get questions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(got))
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := cache.GetQuestions(context.Background(), []string{"q2", "q1"}); err != nil {
		t.Fatalf("get questions 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}

	if _, err := cache.GetQuestions(context.Background(), []string{"q1", "q3"}); err != nil {
		t.Fatalf("get questions 3: %v", err)
	}
	if loader.calls != 2 || len(loader.lastIDs) != 1 || loader.lastIDs[0] != "q3" {
		t.Fatalf("expected only the miss to be loaded, got %v after %d calls", loader.lastIDs, loader.calls)
	}
}

func TestQuestionCacheExpires(t *testing.T) {
	store := NewStore()
	store.PutQuestions(sampleQuestions()...)
	loader := &countingLoader{QuestionLoader: store}
	cache := NewQuestionCache(store, loader, time.Minute)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.clock = func() time.Time { return now }

	if _, err := cache.GetQuestions(context.Background(), []string{"q1"}); err != nil {
		t.Fatalf("get questions: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := cache.GetQuestions(context.Background(), []string{"q1"}); err != nil {
		t.Fatalf("get questions after ttl: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after expiry, loader calls %d", loader.calls)
	}
}

type countingLoader struct {
	QuestionLoader
	calls   int
	lastIDs []string
}

func (l *countingLoader) LoadQuestions(ctx context.Context, ids []string) ([]domain.Question, error) {
	l.calls++
	l.lastIDs = append([]string(nil), ids...)
	return l.QuestionLoader.LoadQuestions(ctx, ids)
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", Text: "What is 2 + 2?", Options: []string{"3", "4"}, CorrectIndex: 1, ForSolo: true, Difficulty: 1},
		{ID: "q2", Text: "Capital of Haiti?", Options: []string{"Port-au-Prince", "Cap-Haitien"}, CorrectIndex: 0, ForSolo: true, Difficulty: 2},
		{ID: "q3", Text: "Year of independence?", Options: []string{"1804", "1791"}, CorrectIndex: 0, Difficulty: 4},
	}
}
