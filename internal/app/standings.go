package app

import (
	"context"
	"fmt"
	"sort"

	"contest-engine/internal/domain"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Standing is one row of a contest leaderboard. Rank is 0 for players who
// have not finished.
type Standing struct {
	Rank     int                       `json:"rank"`
	UserID   string                    `json:"userId"`
	Username string                    `json:"username,omitempty"`
	Score    int                       `json:"score"`
	Status   domain.ParticipantStatus  `json:"status"`
	Prize    decimal.Decimal           `json:"prize"`
	Entry    domain.ContestParticipant `json:"-"`
}

// Leaderboard builds contest standings and prize shares.
type Leaderboard struct {
	contests     ContestRepository
	participants ParticipantRepository
	profiles     ProfileRepository
}

func NewLeaderboard(contests ContestRepository, participants ParticipantRepository, profiles ProfileRepository) *Leaderboard {
	return &Leaderboard{contests: contests, participants: participants, profiles: profiles}
}

// Standings ranks finished players by score, then by who finished first.
func (l *Leaderboard) Standings(ctx context.Context, contestID string) ([]Standing, error) {
	contest, err := l.contests.GetContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	entries, err := l.participants.ListParticipants(ctx, contestID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	rows := make([]Standing, 0, len(entries))
	for _, p := range entries {
		row := Standing{UserID: p.UserID, Score: p.Score, Status: p.Status, Prize: decimal.Zero, Entry: p}
		if profile, err := l.profiles.GetProfile(ctx, p.UserID); err == nil {
			row.Username = profile.Username
		}
		rows = append(rows, row)
	}
	rankStandings(rows)

	prizes := Payouts(contest, len(entries))
	for i := range rows {
		if rows[i].Rank > 0 && rows[i].Rank <= len(prizes) {
			rows[i].Prize = prizes[rows[i].Rank-1]
		}
	}
	return rows, nil
}

func rankStandings(rows []Standing) {
	sort.Slice(rows, func(i, j int) bool {
		ci := rows[i].Status == domain.ParticipantCompleted
		cj := rows[j].Status == domain.ParticipantCompleted
		if ci != cj {
			return ci
		}
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		// Tie-break by who finished earlier, then user id.
		ti, tj := rows[i].Entry.CompletedAt, rows[j].Entry.CompletedAt
		if ti != nil && tj != nil && !ti.Equal(*tj) {
			return ti.Before(*tj)
		}
		return rows[i].UserID < rows[j].UserID
	})
	for i := range rows {
		if rows[i].Status == domain.ParticipantCompleted {
			rows[i].Rank = i + 1
		}
	}
}

// PrizePool is the configured grand prize, or the entry fees collected minus
// the admin margin when no grand prize is set.
func PrizePool(contest domain.Contest, participants int) decimal.Decimal {
	if contest.GrandPrize.IsPositive() {
		return contest.GrandPrize
	}
	collected := contest.EntryFee.Mul(decimal.NewFromInt(int64(participants)))
	kept := hundred.Sub(contest.AdminMarginPercent)
	if kept.IsNegative() {
		return decimal.Zero
	}
	return collected.Mul(kept).Div(hundred)
}

// Payouts returns the prize for ranks 1..n, rounded to cents. The shares are
// not required to sum to 100.
func Payouts(contest domain.Contest, participants int) []decimal.Decimal {
	pool := PrizePool(contest, participants)
	n := len(contest.PrizePercents)
	if n > domain.PrizeRanks {
		n = domain.PrizeRanks
	}
	out := make([]decimal.Decimal, n)
	for i := 0; i < n; i++ {
		out[i] = pool.Mul(contest.PrizePercents[i]).Div(hundred).Round(2)
	}
	return out
}
