package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"
)

const maxProgressAttempts = 5

// ProgressStore is the persistence the reward updater needs.
type ProgressStore interface {
	// GetUser returns (nil, nil) when the id does not resolve.
	GetUser(ctx context.Context, id string) (*User, error)
	// UpdateProgress writes u's progress fields and u.Version if the stored
	// version still equals expectedVersion, else returns ErrVersionConflict.
	UpdateProgress(ctx context.Context, u *User, expectedVersion int) error
}

// RewardListener is told about every applied reward after it is persisted.
type RewardListener interface {
	RewardApplied(ctx context.Context, outcome *RewardOutcome)
}

// RewardOutcome is the caller-visible result of one update.
type RewardOutcome struct {
	Applied     bool
	ScoreDelta  int
	XPDelta     int
	Level       int
	StreakCount int
	// NewBadge is the first badge unlocked in rule order, or "".
	NewBadge       string
	UnlockedBadges []string
	User           *User
}

// ProgressService applies the reward rules to a user's record.
type ProgressService struct {
	store       ProgressStore
	now         func() time.Time
	loc         *time.Location
	rules       []BadgeRule
	locks       *keyedMutex
	listeners   []RewardListener
	maxAttempts int
}

func NewProgressService(store ProgressStore, loc *time.Location) *ProgressService {
	if loc == nil {
		loc = time.UTC
	}
	return &ProgressService{
		store:       store,
		now:         time.Now,
		loc:         loc,
		rules:       DefaultBadgeRules,
		locks:       newKeyedMutex(),
		maxAttempts: maxProgressAttempts,
	}
}

// AddListener registers l; call before serving traffic.
func (s *ProgressService) AddListener(l RewardListener) {
	if l != nil {
		s.listeners = append(s.listeners, l)
	}
}

// Apply runs one reward update for userID. A confidence that does not
// qualify changes nothing and reports the current level and streak.
func (s *ProgressService) Apply(ctx context.Context, userID string, conf Confidence) (*RewardOutcome, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, NewInvalidError("user id required")
	}
	if !conf.Qualifies() {
		u, err := s.store.GetUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, ErrUserNotFound
		}
		return &RewardOutcome{Level: LevelForXP(u.XP), StreakCount: u.StreakCount, User: u}, nil
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		u, err := s.store.GetUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, ErrUserNotFound
		}
		next, unlocked := ApplyReward(u.ProgressState, s.now(), s.loc, s.rules)
		updated := *u
		updated.ProgressState = next
		updated.Version = u.Version + 1

		err = s.store.UpdateProgress(ctx, &updated, u.Version)
		if errors.Is(err, ErrVersionConflict) {
			log.Printf("progress: user %s version %d changed underneath, retry %d", userID, u.Version, attempt)
			continue
		}
		if err != nil {
			return nil, err
		}

		outcome := &RewardOutcome{
			Applied:        true,
			ScoreDelta:     next.Score - u.Score,
			XPDelta:        next.XP - u.XP,
			Level:          next.Level,
			StreakCount:    next.StreakCount,
			UnlockedBadges: unlocked,
			User:           &updated,
		}
		if len(unlocked) > 0 {
			outcome.NewBadge = unlocked[0]
		}
		log.Printf("progress: user %s +%dxp xp=%d level=%d streak=%d badges=%v", userID, outcome.XPDelta, next.XP, next.Level, next.StreakCount, unlocked)
		for _, l := range s.listeners {
			l.RewardApplied(ctx, outcome)
		}
		return outcome, nil
	}
	return nil, NewConflictError("progress update kept conflicting, try again")
}

// keyedMutex serializes work per key and forgets idle keys.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*refLock{}}
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	l := k.locks[key]
	if l == nil {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
