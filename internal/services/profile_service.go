package services

import (
	"context"
	"strings"
)

type ProfileStore interface {
	GetUser(ctx context.Context, id string) (*User, error)
	FindUserByUsername(ctx context.Context, username string) (*User, error)
	UpdateProfile(ctx context.Context, id, username, avatar string) error
}

type ProfileService struct {
	store     ProfileStore
	listeners userListeners
}

func NewProfileService(store ProfileStore) *ProfileService { return &ProfileService{store: store} }

// AddListener registers l for profile edits; call before serving traffic.
func (s *ProfileService) AddListener(l UserListener) {
	if l != nil {
		s.listeners = append(s.listeners, l)
	}
}

// ProfileUpdate fields left empty keep their current value.
type ProfileUpdate struct {
	Username string
	Avatar   string
}

func (s *ProfileService) Get(ctx context.Context, userID string) (*User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	u.Level = LevelForXP(u.XP)
	return u, nil
}

func (s *ProfileService) Update(ctx context.Context, userID string, upd ProfileUpdate) (*User, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	username := strings.TrimSpace(upd.Username)
	avatar := strings.TrimSpace(upd.Avatar)
	if username != "" && username != u.Username {
		other, err := s.store.FindUserByUsername(ctx, username)
		if err != nil {
			return nil, err
		}
		if other != nil && other.ID != u.ID {
			return nil, NewConflictError("username taken")
		}
		u.Username = username
	}
	if avatar != "" {
		u.Avatar = avatar
	}
	if err := s.store.UpdateProfile(ctx, u.ID, u.Username, u.Avatar); err != nil {
		return nil, err
	}
	s.listeners.notify(ctx, u)
	return u, nil
}
