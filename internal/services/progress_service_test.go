package services

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

type progressStubStore struct {
	mu       sync.Mutex
	users    map[string]*User
	writes   int
	conflict func(u *User) bool
}

func newProgressStubStore(users ...*User) *progressStubStore {
	s := &progressStubStore{users: map[string]*User{}}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *progressStubStore) GetUser(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	copy := *u
	copy.Badges = append([]string(nil), u.Badges...)
	return &copy, nil
}

func (s *progressStubStore) UpdateProgress(_ context.Context, u *User, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.users[u.ID]
	if !ok || cur.Version != expectedVersion {
		return ErrVersionConflict
	}
	if s.conflict != nil && s.conflict(cur) {
		return ErrVersionConflict
	}
	copy := *u
	s.users[u.ID] = &copy
	s.writes++
	return nil
}

type recordingListener struct {
	outcomes []*RewardOutcome
}

func (l *recordingListener) RewardApplied(_ context.Context, o *RewardOutcome) {
	l.outcomes = append(l.outcomes, o)
}

func newTestProgressService(store ProgressStore, now *time.Time) *ProgressService {
	svc := NewProgressService(store, time.UTC)
	svc.now = func() time.Time { return *now }
	return svc
}

func TestProgressApplyScenario(t *testing.T) {
	ctx := context.Background()
	now := testNow
	store := newProgressStubStore(&User{ID: "u1", ProgressState: ProgressState{XP: 45, Score: 45, Level: 1, StreakCount: 2, LastSubmissionDate: day(-1)}})
	svc := newTestProgressService(store, &now)
	listener := &recordingListener{}
	svc.AddListener(listener)

	out, err := svc.Apply(ctx, "u1", ConfidenceOf(0.95))
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if !out.Applied || out.ScoreDelta != 10 || out.XPDelta != 10 || out.Level != 2 || out.StreakCount != 3 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.NewBadge != BadgeFirstTask {
		t.Fatalf("new badge = %q, want first_task", out.NewBadge)
	}
	stored := store.users["u1"]
	if stored.XP != 55 || stored.Level != 2 || stored.Version != 1 {
		t.Fatalf("stored user = %+v", stored)
	}
	if !reflect.DeepEqual(stored.Badges, []string{BadgeFirstTask, BadgeStreak3}) {
		t.Fatalf("stored badges = %v", stored.Badges)
	}

	now = now.Add(2 * time.Hour)
	out, err = svc.Apply(ctx, "u1", ConfidenceOf(0.97))
	if err != nil {
		t.Fatalf("second Apply returned error: %v", err)
	}
	if out.NewBadge != "" || len(out.UnlockedBadges) != 0 || out.StreakCount != 3 || out.Level != 2 {
		t.Fatalf("same-day outcome: %+v", out)
	}
	if store.users["u1"].XP != 65 {
		t.Fatalf("xp = %d, want 65", store.users["u1"].XP)
	}
	if len(listener.outcomes) != 2 {
		t.Fatalf("listener saw %d outcomes, want 2", len(listener.outcomes))
	}
}

func TestProgressApplyBelowThresholdIsNoop(t *testing.T) {
	ctx := context.Background()
	now := testNow
	original := &User{ID: "u1", Version: 3, ProgressState: ProgressState{XP: 45, Score: 45, Level: 1, StreakCount: 2, LastSubmissionDate: day(-1)}}
	store := newProgressStubStore(original)
	svc := newTestProgressService(store, &now)
	listener := &recordingListener{}
	svc.AddListener(listener)

	for _, conf := range []Confidence{ConfidenceOf(0.5), ConfidenceOf(0.8999), {}, ParseConfidence([]byte(`"abc"`))} {
		out, err := svc.Apply(ctx, "u1", conf)
		if err != nil {
			t.Fatalf("Apply(%+v) returned error: %v", conf, err)
		}
		if out.Applied || out.ScoreDelta != 0 || out.XPDelta != 0 || out.NewBadge != "" {
			t.Fatalf("Apply(%+v) changed something: %+v", conf, out)
		}
		if out.Level != 1 || out.StreakCount != 2 {
			t.Fatalf("Apply(%+v) reported level=%d streak=%d", conf, out.Level, out.StreakCount)
		}
	}
	if store.writes != 0 {
		t.Fatalf("store saw %d writes, want 0", store.writes)
	}
	if got := store.users["u1"]; got != original {
		t.Fatalf("user record replaced")
	}
	if len(listener.outcomes) != 0 {
		t.Fatalf("listener notified on no-op")
	}
}

func TestProgressApplyUnknownUser(t *testing.T) {
	now := testNow
	svc := newTestProgressService(newProgressStubStore(), &now)
	for _, conf := range []Confidence{ConfidenceOf(0.99), ConfidenceOf(0.1)} {
		_, err := svc.Apply(context.Background(), "ghost", conf)
		if !errors.Is(err, ErrUserNotFound) {
			t.Fatalf("expected ErrUserNotFound, got %v", err)
		}
		if se, ok := AsServiceError(err); !ok || se.Code != ErrorNotFound {
			t.Fatalf("expected not_found service error, got %v", err)
		}
	}
}

func TestProgressApplyConcurrentSameUser(t *testing.T) {
	now := testNow
	store := newProgressStubStore(&User{ID: "u1", ProgressState: ProgressState{Level: 1}})
	svc := newTestProgressService(store, &now)

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Apply(context.Background(), "u1", ConfidenceOf(0.95)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Apply error: %v", err)
	}
	u := store.users["u1"]
	if u.XP != n*RewardXP || u.Score != n*RewardScore || u.Version != n {
		t.Fatalf("lost updates: xp=%d score=%d version=%d", u.XP, u.Score, u.Version)
	}
	if u.Level != LevelForXP(u.XP) || u.StreakCount != 1 {
		t.Fatalf("unexpected derived state: %+v", u.ProgressState)
	}
	if len(svc.locks.locks) != 0 {
		t.Fatalf("per-user locks leaked: %d", len(svc.locks.locks))
	}
}

func TestProgressApplyRetriesOnVersionConflict(t *testing.T) {
	now := testNow
	store := newProgressStubStore(&User{ID: "u1", ProgressState: ProgressState{Level: 1}})
	// Another writer bumps the row once before our first write lands.
	injected := false
	store.conflict = func(cur *User) bool {
		if injected {
			return false
		}
		injected = true
		cur.XP += RewardXP
		cur.Score += RewardScore
		cur.Version++
		return true
	}
	svc := newTestProgressService(store, &now)

	out, err := svc.Apply(context.Background(), "u1", ConfidenceOf(0.91))
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if out.User.XP != 20 || store.users["u1"].XP != 20 || store.users["u1"].Version != 2 {
		t.Fatalf("retry lost the concurrent write: outcome xp=%d stored=%+v", out.User.XP, store.users["u1"])
	}
}

func TestProgressApplyGivesUpAfterRepeatedConflicts(t *testing.T) {
	now := testNow
	store := newProgressStubStore(&User{ID: "u1"})
	store.conflict = func(*User) bool { return true }
	svc := newTestProgressService(store, &now)

	_, err := svc.Apply(context.Background(), "u1", ConfidenceOf(0.95))
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorConflict {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if store.writes != 0 {
		t.Fatalf("store saw %d writes, want 0", store.writes)
	}
}

func TestProgressApplyRequiresUserID(t *testing.T) {
	now := testNow
	svc := newTestProgressService(newProgressStubStore(), &now)
	if _, err := svc.Apply(context.Background(), " ", ConfidenceOf(1)); err == nil {
		t.Fatalf("expected validation error")
	}
}
