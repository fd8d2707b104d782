package cli

import (
	"testing"

	"contest-engine/internal/progression"
)

func TestSampleLevelTitlesMatchBuiltIn(t *testing.T) {
	rows := sampleLevelTitles()
	for level := 1; level <= 40; level++ {
		configured := ""
		for _, row := range rows {
			if row.Level <= level {
				configured = row.Title
			}
		}
		if want := progression.TitleForLevel(level); configured != want {
			t.Fatalf("level %d: sample title %q, built-in %q", level, configured, want)
		}
	}
}

func TestSampleQuestionsCoverSoloDraw(t *testing.T) {
	questions := sampleQuestions()
	if len(questions) < 10 {
		t.Fatalf("expected at least 10 sample questions, got %d", len(questions))
	}
	for _, q := range questions {
		if !q.ForSolo || q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
			t.Fatalf("unusable sample question %+v", q)
		}
	}
}
