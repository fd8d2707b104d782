package progression

import "testing"

func TestLevelRoundTrip(t *testing.T) {
	for level := 1; level <= 120; level++ {
		if got := LevelForXP(XPThreshold(level)); got != level {
			t.Fatalf("LevelForXP(XPThreshold(%d)) = %d", level, got)
		}
	}
}

func TestThresholdStrictlyIncreasing(t *testing.T) {
	prev := XPThreshold(1)
	for level := 2; level <= 120; level++ {
		cur := XPThreshold(level)
		if cur <= prev {
			t.Fatalf("threshold(%d)=%d not above threshold(%d)=%d", level, cur, level-1, prev)
		}
		prev = cur
	}
}

func TestLevelMonotonic(t *testing.T) {
	prev := LevelForXP(0)
	for xp := int64(1); xp <= 300_000; xp += 37 {
		cur := LevelForXP(xp)
		if cur < prev {
			t.Fatalf("level dropped from %d to %d at xp=%d", prev, cur, xp)
		}
		prev = cur
	}
}

func TestLevelForXPEdges(t *testing.T) {
	cases := map[int64]int{
		-5:  1,
		0:   1,
		99:  1,
		100: 2,
		350: 2,
		605: 2,
		606: 3,
	}
	for xp, want := range cases {
		if got := LevelForXP(xp); got != want {
			t.Fatalf("LevelForXP(%d) = %d, want %d", xp, got, want)
		}
	}
}

func TestQuestionXP(t *testing.T) {
	cases := []struct {
		name     string
		correct  bool
		timeLeft float64
		repeated bool
		want     int64
	}{
		{"wrong", false, 10, false, 0},
		{"wrong repeated", false, 3, true, 0},
		{"cap", true, 10, false, 50},
		{"no time left", true, 0, false, 20},
		{"repeat halves", true, 0, true, 10},
		{"five seconds", true, 5, false, 35},
		{"fraction floors", true, 4.9, false, 34},
		{"capped repeat", true, 10, true, 25},
	}
	for _, tc := range cases {
		if got := QuestionXP(tc.correct, tc.timeLeft, tc.repeated); got != tc.want {
			t.Fatalf("%s: QuestionXP = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestTitleForLevel(t *testing.T) {
	cases := map[int]string{
		1:  "Novice",
		4:  "Novice",
		5:  "Apprentice",
		12: "Erudite",
		19: "Expert",
		24: "Master",
		29: "Grand Master",
		30: "Legend",
		99: "Legend",
	}
	for level, want := range cases {
		if got := TitleForLevel(level); got != want {
			t.Fatalf("TitleForLevel(%d) = %q, want %q", level, got, want)
		}
	}
}

func TestPrestigeForLevel(t *testing.T) {
	if PrestigeForLevel(10) != PrestigeNone || PrestigeForLevel(11) != PrestigeBronze {
		t.Fatalf("bronze boundary wrong")
	}
	if PrestigeForLevel(26) != PrestigeSilver || PrestigeForLevel(41) != PrestigeGold || PrestigeForLevel(50) != PrestigeDiamond {
		t.Fatalf("upper tiers wrong")
	}
}
