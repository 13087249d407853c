package services

import (
	"context"
	"errors"
	"testing"
)

type stubLeaderboardStore struct {
	entries []LeaderboardEntry
	limits  []int
}

func (s *stubLeaderboardStore) TopByScore(_ context.Context, limit int) ([]LeaderboardEntry, error) {
	s.limits = append(s.limits, limit)
	if limit < len(s.entries) {
		return s.entries[:limit], nil
	}
	return s.entries, nil
}

type stubLeaderboardCache struct {
	entries  []LeaderboardEntry
	recorded []LeaderboardEntry
	err      error
}

func (c *stubLeaderboardCache) Top(_ context.Context, limit int) ([]LeaderboardEntry, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.entries, nil
}

func (c *stubLeaderboardCache) Record(_ context.Context, e LeaderboardEntry) error {
	c.recorded = append(c.recorded, e)
	return nil
}

func (c *stubLeaderboardCache) Replace(_ context.Context, entries []LeaderboardEntry) error {
	c.entries = entries
	return nil
}

func TestLeaderboardWithoutCache(t *testing.T) {
	store := &stubLeaderboardStore{entries: []LeaderboardEntry{{UserID: "u1", Score: 30}}}
	svc := NewLeaderboardService(store, nil)
	got, err := svc.Top(context.Background())
	if err != nil || len(got) != 1 {
		t.Fatalf("Top = %v, %v", got, err)
	}
	if store.limits[0] != LeaderboardSize {
		t.Fatalf("limit = %d, want %d", store.limits[0], LeaderboardSize)
	}
	svc.RewardApplied(context.Background(), &RewardOutcome{User: &User{ID: "u1"}})
	if err := svc.Warm(context.Background()); err != nil {
		t.Fatalf("Warm without cache: %v", err)
	}
}

func TestLeaderboardCacheFlow(t *testing.T) {
	store := &stubLeaderboardStore{entries: []LeaderboardEntry{{UserID: "u1", Username: "ana", Score: 30}}}
	cache := &stubLeaderboardCache{}
	svc := NewLeaderboardService(store, cache)

	if err := svc.Warm(context.Background()); err != nil {
		t.Fatalf("Warm: %v", err)
	}
	if len(cache.entries) != 1 {
		t.Fatalf("cache not warmed")
	}
	svc.RewardApplied(context.Background(), &RewardOutcome{Applied: true, User: &User{ID: "u2", Username: "bo", ProgressState: ProgressState{Score: 10}}})
	if len(cache.recorded) != 1 || cache.recorded[0] != (LeaderboardEntry{UserID: "u2", Username: "bo", Score: 10}) {
		t.Fatalf("recorded = %+v", cache.recorded)
	}

	cache.err = errors.New("redis down")
	got, err := svc.Top(context.Background())
	if err != nil || len(got) != 1 || got[0].UserID != "u1" {
		t.Fatalf("fallback Top = %v, %v", got, err)
	}
}

func TestLeaderboardCacheFollowsAccountChanges(t *testing.T) {
	ctx := context.Background()
	cache := &stubLeaderboardCache{}
	lb := NewLeaderboardService(&stubLeaderboardStore{}, cache)

	auth := newTestAuthService(newAuthStubStore())
	auth.AddListener(lb)
	res, err := auth.Register(ctx, RegisterRequest{Username: "bo", Email: "bo@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(cache.recorded) != 1 || cache.recorded[0] != (LeaderboardEntry{UserID: res.UserID, Username: "bo"}) {
		t.Fatalf("after register recorded = %+v", cache.recorded)
	}

	profiles := NewProfileService(&stubProfileStore{users: map[string]*User{
		"u1": {ID: "u1", Username: "ana", ProgressState: ProgressState{Score: 10, XP: 10}},
	}})
	profiles.AddListener(lb)
	if _, err := profiles.Update(ctx, "u1", ProfileUpdate{Username: "ana2"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	last := cache.recorded[len(cache.recorded)-1]
	if last != (LeaderboardEntry{UserID: "u1", Username: "ana2", Score: 10}) {
		t.Fatalf("after rename recorded = %+v", last)
	}
}

func TestFailedProfileUpdateDoesNotTouchCache(t *testing.T) {
	cache := &stubLeaderboardCache{}
	profiles := NewProfileService(&stubProfileStore{users: map[string]*User{
		"u1": {ID: "u1", Username: "ana"},
		"u2": {ID: "u2", Username: "bo"},
	}})
	profiles.AddListener(NewLeaderboardService(&stubLeaderboardStore{}, cache))
	if _, err := profiles.Update(context.Background(), "u1", ProfileUpdate{Username: "bo"}); err == nil {
		t.Fatalf("expected conflict")
	}
	if len(cache.recorded) != 0 {
		t.Fatalf("recorded = %+v, want none", cache.recorded)
	}
}
