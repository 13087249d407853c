package services

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// QualifyingConfidence is the minimum grader confidence that earns a reward.
	QualifyingConfidence = 0.9

	RewardScore = 10
	RewardXP    = 10
	XPPerLevel  = 50
)

const (
	BadgeFirstTask = "first_task"
	BadgeStreak3   = "streak_3"
	BadgeStreak5   = "streak_5"
	BadgeStreak10  = "streak_10"
	BadgeLevel5    = "level_5"
	BadgeLevel10   = "level_10"
)

// Confidence is a grader score that may be missing or malformed.
type Confidence struct {
	Value float64
	Valid bool
}

// ConfidenceOf wraps a float; NaN and infinities are invalid.
func ConfidenceOf(v float64) Confidence {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Confidence{}
	}
	return Confidence{Value: v, Valid: true}
}

// ParseConfidence accepts a JSON number or a numeric JSON string.
// Absent, null and anything else yield an invalid Confidence.
func ParseConfidence(raw json.RawMessage) Confidence {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Confidence{}
	}
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return ConfidenceOf(num)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return ConfidenceOf(v)
		}
	}
	return Confidence{}
}

// Qualifies reports whether c earns a reward.
func (c Confidence) Qualifies() bool {
	return c.Valid && c.Value >= QualifyingConfidence
}

// Ptr returns the value for storage, or nil when invalid.
func (c Confidence) Ptr() *float64 {
	if !c.Valid {
		return nil
	}
	v := c.Value
	return &v
}

// LevelForXP derives the level; it is never stored-and-trusted.
func LevelForXP(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return xp/XPPerLevel + 1
}

// BadgeRule unlocks ID when Unlocked holds for the post-update state.
type BadgeRule struct {
	ID       string
	Unlocked func(ProgressState) bool
}

// DefaultBadgeRules is evaluated in order; the first newly unlocked badge is
// the one reported to the client.
var DefaultBadgeRules = []BadgeRule{
	{ID: BadgeFirstTask, Unlocked: func(p ProgressState) bool { return p.LastSubmissionDate != nil }},
	{ID: BadgeStreak3, Unlocked: streakAtLeast(3)},
	{ID: BadgeStreak5, Unlocked: streakAtLeast(5)},
	{ID: BadgeStreak10, Unlocked: streakAtLeast(10)},
	{ID: BadgeLevel5, Unlocked: levelAtLeast(5)},
	{ID: BadgeLevel10, Unlocked: levelAtLeast(10)},
}

func streakAtLeast(n int) func(ProgressState) bool {
	return func(p ProgressState) bool { return p.StreakCount >= n }
}

func levelAtLeast(n int) func(ProgressState) bool {
	return func(p ProgressState) bool { return p.Level >= n }
}

// EvaluateBadges returns the badges that state satisfies but does not hold yet.
func EvaluateBadges(state ProgressState, rules []BadgeRule) []string {
	var out []string
	for _, r := range rules {
		if state.HasBadge(r.ID) || !r.Unlocked(state) {
			continue
		}
		out = append(out, r.ID)
	}
	return out
}

// ApplyReward computes the state after one qualifying submission at now.
// state is not modified. Calendar comparisons happen in loc.
func ApplyReward(state ProgressState, now time.Time, loc *time.Location, rules []BadgeRule) (ProgressState, []string) {
	if loc == nil {
		loc = time.UTC
	}
	next := state
	next.Badges = append([]string(nil), state.Badges...)

	next.Score += RewardScore
	next.XP += RewardXP
	next.Level = LevelForXP(next.XP)

	today := calendarDay(now, loc)
	switch {
	case state.LastSubmissionDate != nil && calendarDay(*state.LastSubmissionDate, loc).Equal(today):
		// already counted today
	case state.LastSubmissionDate != nil && calendarDay(*state.LastSubmissionDate, loc).Equal(today.AddDate(0, 0, -1)):
		next.StreakCount = state.StreakCount + 1
		next.LastSubmissionDate = timePtr(now)
	default:
		next.StreakCount = 1
		next.LastSubmissionDate = timePtr(now)
	}

	unlocked := EvaluateBadges(next, rules)
	next.Badges = append(next.Badges, unlocked...)
	return next, unlocked
}

// calendarDay is the local date of t in loc, expressed as a UTC midnight.
func calendarDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func timePtr(t time.Time) *time.Time { return &t }
