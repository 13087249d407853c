package services

import (
	"context"
	"log"
)

const (
	LeaderboardSize = 10
	warmLimit       = 1000
)

type LeaderboardStore interface {
	TopByScore(ctx context.Context, limit int) ([]LeaderboardEntry, error)
}

// LeaderboardCache mirrors scores outside the relational store.
type LeaderboardCache interface {
	Top(ctx context.Context, limit int) ([]LeaderboardEntry, error)
	Record(ctx context.Context, e LeaderboardEntry) error
	Replace(ctx context.Context, entries []LeaderboardEntry) error
}

type LeaderboardService struct {
	store LeaderboardStore
	cache LeaderboardCache
}

// NewLeaderboardService builds the service; cache may be nil.
func NewLeaderboardService(store LeaderboardStore, cache LeaderboardCache) *LeaderboardService {
	return &LeaderboardService{store: store, cache: cache}
}

// Top returns the highest scores, preferring the cache and falling back to the store.
func (s *LeaderboardService) Top(ctx context.Context) ([]LeaderboardEntry, error) {
	if s.cache != nil {
		entries, err := s.cache.Top(ctx, LeaderboardSize)
		if err == nil {
			return entries, nil
		}
		log.Printf("leaderboard: cache read failed, using store: %v", err)
	}
	return s.store.TopByScore(ctx, LeaderboardSize)
}

// Warm loads the cache from the store.
func (s *LeaderboardService) Warm(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	entries, err := s.store.TopByScore(ctx, warmLimit)
	if err != nil {
		return err
	}
	return s.cache.Replace(ctx, entries)
}

// UserChanged records a new or renamed user so the cache matches the store.
func (s *LeaderboardService) UserChanged(ctx context.Context, u *User) {
	if s.cache == nil || u == nil {
		return
	}
	if err := s.cache.Record(ctx, LeaderboardEntry{UserID: u.ID, Username: u.Username, Score: u.Score}); err != nil {
		log.Printf("leaderboard: record %s: %v", u.ID, err)
	}
}

// RewardApplied keeps the cache in step with persisted scores.
func (s *LeaderboardService) RewardApplied(ctx context.Context, outcome *RewardOutcome) {
	if s.cache == nil || outcome == nil || outcome.User == nil {
		return
	}
	u := outcome.User
	if err := s.cache.Record(ctx, LeaderboardEntry{UserID: u.ID, Username: u.Username, Score: u.Score}); err != nil {
		log.Printf("leaderboard: record %s: %v", u.ID, err)
	}
}
