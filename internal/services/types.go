package services

import (
	"context"
	"time"
)

// ProgressState is the reward-bearing part of a user record.
type ProgressState struct {
	Score       int
	XP          int
	Level       int
	StreakCount int
	// LastSubmissionDate is the instant of the last streak-advancing
	// submission; only its calendar date in the streak location matters.
	LastSubmissionDate *time.Time
	Badges             []string
}

// HasBadge reports whether id is already held.
func (p ProgressState) HasBadge(id string) bool {
	for _, b := range p.Badges {
		if b == id {
			return true
		}
	}
	return false
}

type User struct {
	ID        string
	Username  string
	Email     string
	PassHash  []byte
	Avatar    string
	CreatedAt time.Time
	// Version increases on every progress write and guards against lost updates.
	Version int
	ProgressState
}

// Submission is an append-only answer event.
type Submission struct {
	ID               string
	UserID           string
	TaskID           string
	TrackID          string
	Answer           string
	TimeTakenSeconds *int
	Confidence       *float64
	CreatedAt        time.Time
}

type LeaderboardEntry struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// UserListener hears about created or edited accounts after they are stored.
type UserListener interface {
	UserChanged(ctx context.Context, u *User)
}

type userListeners []UserListener

func (ls userListeners) notify(ctx context.Context, u *User) {
	for _, l := range ls {
		l.UserChanged(ctx, u)
	}
}
