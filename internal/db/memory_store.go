package db

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/soaringjerry/tasktrail/internal/services"
)

// MemoryStore keeps everything in process memory. It is used by tests and
// by the server when TASKTRAIL_DB_DRIVER=memory.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]*services.User
	submissions []*services.Submission
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: map[string]*services.User{}}
}

func cloneUser(u *services.User) *services.User {
	cp := *u
	cp.PassHash = append([]byte(nil), u.PassHash...)
	cp.Badges = append([]string{}, u.Badges...)
	if u.LastSubmissionDate != nil {
		t := *u.LastSubmissionDate
		cp.LastSubmissionDate = &t
	}
	return &cp
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*services.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, nil
}

func (s *MemoryStore) FindUserByEmail(_ context.Context, email string) (*services.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) FindUserByUsername(_ context.Context, username string) (*services.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			return cloneUser(u), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) CreateUser(_ context.Context, u *services.User) error {
	if u == nil {
		return errors.New("nil user")
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.ID == u.ID || existing.Email == u.Email {
			return services.NewConflictError("User already exists")
		}
		if existing.Username == u.Username {
			return services.NewConflictError("username taken")
		}
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if u.Level == 0 {
		u.Level = 1
	}
	s.users[u.ID] = cloneUser(u)
	return nil
}

func (s *MemoryStore) UpdateProfile(_ context.Context, id, username, avatar string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return services.ErrUserNotFound
	}
	for _, other := range s.users {
		if other.ID != id && other.Username == username {
			return services.NewConflictError("username taken")
		}
	}
	u.Username = username
	u.Avatar = avatar
	return nil
}

func (s *MemoryStore) UpdateProgress(_ context.Context, u *services.User, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.users[u.ID]
	if !ok {
		return services.ErrUserNotFound
	}
	if cur.Version != expectedVersion {
		return services.ErrVersionConflict
	}
	next := cloneUser(u)
	cur.ProgressState = next.ProgressState
	cur.Version = u.Version
	return nil
}

func (s *MemoryStore) AddSubmission(_ context.Context, sub *services.Submission) error {
	if sub == nil {
		return errors.New("nil submission")
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	cp := *sub
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions = append(s.submissions, &cp)
	return nil
}

func (s *MemoryStore) ListSubmissionsByUser(_ context.Context, userID string) ([]*services.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*services.Submission{}
	for i := len(s.submissions) - 1; i >= 0; i-- {
		if sub := s.submissions[i]; sub.UserID == userID {
			cp := *sub
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) TopByScore(_ context.Context, limit int) ([]services.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = services.LeaderboardSize
	}
	type ranked struct {
		entry   services.LeaderboardEntry
		created time.Time
	}
	s.mu.RLock()
	rows := make([]ranked, 0, len(s.users))
	for _, u := range s.users {
		rows = append(rows, ranked{
			entry:   services.LeaderboardEntry{UserID: u.ID, Username: u.Username, Score: u.Score},
			created: u.CreatedAt,
		})
	}
	s.mu.RUnlock()
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].entry.Score != rows[j].entry.Score {
			return rows[i].entry.Score > rows[j].entry.Score
		}
		if !rows[i].created.Equal(rows[j].created) {
			return rows[i].created.Before(rows[j].created)
		}
		return rows[i].entry.UserID < rows[j].entry.UserID
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]services.LeaderboardEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.entry)
	}
	return out, nil
}
