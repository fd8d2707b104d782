// Package progression maps experience to levels, titles and per-answer awards.
// Everything here is pure and deterministic.
package progression

import "math"

const (
	BaseXP   = 100
	Exponent = 2.6

	questionXPBase      = 20
	questionXPPerSecond = 3
	questionXPCap       = 50
)

// XPThreshold returns the total experience needed to reach level.
func XPThreshold(level int) int64 {
	if level <= 1 {
		return 0
	}
	return int64(math.Floor(BaseXP * math.Pow(float64(level-1), Exponent)))
}

// LevelForXP returns the level reached with totalXP.
//
// The closed form floor((xp/100)^(1/2.6))+1 can land one level low right on a
// threshold because XPThreshold floors, so the estimate is snapped to the table.
func LevelForXP(totalXP int64) int {
	if totalXP <= 0 {
		return 1
	}
	level := int(math.Floor(math.Pow(float64(totalXP)/BaseXP, 1/Exponent))) + 1
	for XPThreshold(level+1) <= totalXP {
		level++
	}
	for level > 1 && XPThreshold(level) > totalXP {
		level--
	}
	return level
}

// QuestionXP is the experience for one answer. timeLeftSeconds must already be clamped to >= 0.
func QuestionXP(correct bool, timeLeftSeconds float64, repeated bool) int64 {
	if !correct {
		return 0
	}
	xp := int64(questionXPBase + math.Floor(questionXPPerSecond*timeLeftSeconds))
	if xp > questionXPCap {
		xp = questionXPCap
	}
	if repeated {
		xp /= 2
	}
	return xp
}

var titles = []struct {
	below int
	title string
}{
	{5, "Novice"},
	{10, "Apprentice"},
	{15, "Erudite"},
	{20, "Expert"},
	{25, "Master"},
	{30, "Grand Master"},
}

// TitleForLevel is the built-in honorary title table. The level configuration
// store is canonical; this is its fallback.
func TitleForLevel(level int) string {
	for _, t := range titles {
		if level < t.below {
			return t.title
		}
	}
	return "Legend"
}

type Prestige string

const (
	PrestigeNone    Prestige = "none"
	PrestigeBronze  Prestige = "bronze"
	PrestigeSilver  Prestige = "silver"
	PrestigeGold    Prestige = "gold"
	PrestigeDiamond Prestige = "diamond"
)

// PrestigeForLevel returns the frame tier shown next to a player's name.
func PrestigeForLevel(level int) Prestige {
	switch {
	case level >= 50:
		return PrestigeDiamond
	case level >= 41:
		return PrestigeGold
	case level >= 26:
		return PrestigeSilver
	case level >= 11:
		return PrestigeBronze
	default:
		return PrestigeNone
	}
}

// PendingLevelUp reports whether a level-up has not been celebrated yet.
func PendingLevelUp(level, lastNotified int) bool {
	return level > lastNotified
}
