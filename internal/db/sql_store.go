package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/soaringjerry/tasktrail/internal/services"
)

// SQLStore persists users and submissions in sqlite3 or postgres.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLStore(conn *sql.DB, dialect Dialect) (*SQLStore, error) {
	if conn == nil {
		return nil, errors.New("nil db")
	}
	return &SQLStore{db: conn, dialect: dialect}, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) logErr(prefix string, err error) {
	if err != nil {
		log.Printf("sql store: %s: %v", prefix, err)
	}
}

const userColumns = `id, username, email, pass_hash, avatar, created_at, version,
	score, xp, level, streak_count, last_submission_date, badges`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*services.User, error) {
	var (
		u        services.User
		passHash string
		last     sql.NullTime
		badges   string
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &passHash, &u.Avatar, &u.CreatedAt, &u.Version,
		&u.Score, &u.XP, &u.Level, &u.StreakCount, &last, &badges)
	if err != nil {
		return nil, err
	}
	u.PassHash = []byte(passHash)
	if last.Valid {
		t := last.Time.UTC()
		u.LastSubmissionDate = &t
	}
	u.Badges, err = decodeBadges(badges)
	if err != nil {
		return nil, fmt.Errorf("decode badges for %s: %w", u.ID, err)
	}
	return &u, nil
}

func decodeBadges(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func encodeBadges(badges []string) (string, error) {
	if badges == nil {
		badges = []string{}
	}
	b, err := json.Marshal(badges)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *SQLStore) queryUser(ctx context.Context, where string, arg any) (*services.User, error) {
	q := s.dialect.Rebind("SELECT " + userColumns + " FROM users WHERE " + where)
	u, err := scanUser(s.db.QueryRowContext(ctx, q, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

func (s *SQLStore) GetUser(ctx context.Context, id string) (*services.User, error) {
	return s.queryUser(ctx, "id = ?", id)
}

func (s *SQLStore) FindUserByEmail(ctx context.Context, email string) (*services.User, error) {
	return s.queryUser(ctx, "lower(email) = lower(?)", strings.TrimSpace(email))
}

func (s *SQLStore) FindUserByUsername(ctx context.Context, username string) (*services.User, error) {
	return s.queryUser(ctx, "username = ?", username)
}

func (s *SQLStore) CreateUser(ctx context.Context, u *services.User) error {
	if u == nil {
		return errors.New("nil user")
	}
	badges, err := encodeBadges(u.Badges)
	if err != nil {
		return err
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if u.Level == 0 {
		u.Level = 1
	}
	q := s.dialect.Rebind(`INSERT INTO users (id, username, email, pass_hash, avatar, created_at, version,
		score, xp, level, streak_count, last_submission_date, badges)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = s.db.ExecContext(ctx, q, u.ID, u.Username, u.Email, string(u.PassHash), u.Avatar, u.CreatedAt.UTC(), u.Version,
		u.Score, u.XP, u.Level, u.StreakCount, nullTime(u.LastSubmissionDate), badges)
	if isUniqueViolation(err) {
		if strings.Contains(strings.ToLower(err.Error()), "username") {
			return services.NewConflictError("username taken")
		}
		return services.NewConflictError("User already exists")
	}
	if err != nil {
		s.logErr("CreateUser", err)
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *SQLStore) UpdateProfile(ctx context.Context, id, username, avatar string) error {
	q := s.dialect.Rebind("UPDATE users SET username = ?, avatar = ? WHERE id = ?")
	res, err := s.db.ExecContext(ctx, q, username, avatar, id)
	if isUniqueViolation(err) {
		return services.NewConflictError("username taken")
	}
	if err != nil {
		s.logErr("UpdateProfile", err)
		return fmt.Errorf("update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.ErrUserNotFound
	}
	return nil
}

// UpdateProgress writes the progress columns only when the row still carries
// expectedVersion.
func (s *SQLStore) UpdateProgress(ctx context.Context, u *services.User, expectedVersion int) error {
	badges, err := encodeBadges(u.Badges)
	if err != nil {
		return err
	}
	q := s.dialect.Rebind(`UPDATE users SET score = ?, xp = ?, level = ?, streak_count = ?,
		last_submission_date = ?, badges = ?, version = ?
		WHERE id = ? AND version = ?`)
	res, err := s.db.ExecContext(ctx, q, u.Score, u.XP, u.Level, u.StreakCount,
		nullTime(u.LastSubmissionDate), badges, u.Version, u.ID, expectedVersion)
	if err != nil {
		s.logErr("UpdateProgress", err)
		return fmt.Errorf("update progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if n > 0 {
		return nil
	}
	existing, err := s.GetUser(ctx, u.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return services.ErrUserNotFound
	}
	return services.ErrVersionConflict
}

func (s *SQLStore) AddSubmission(ctx context.Context, sub *services.Submission) error {
	if sub == nil {
		return errors.New("nil submission")
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	var taken sql.NullInt64
	if sub.TimeTakenSeconds != nil {
		taken = sql.NullInt64{Int64: int64(*sub.TimeTakenSeconds), Valid: true}
	}
	var conf sql.NullFloat64
	if sub.Confidence != nil {
		conf = sql.NullFloat64{Float64: *sub.Confidence, Valid: true}
	}
	q := s.dialect.Rebind(`INSERT INTO submissions (id, user_id, task_id, track_id, answer, time_taken_seconds, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, q, sub.ID, sub.UserID, sub.TaskID, sub.TrackID, sub.Answer, taken, conf, sub.CreatedAt.UTC()); err != nil {
		s.logErr("AddSubmission", err)
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func (s *SQLStore) ListSubmissionsByUser(ctx context.Context, userID string) ([]*services.Submission, error) {
	q := s.dialect.Rebind(`SELECT id, user_id, task_id, track_id, answer, time_taken_seconds, confidence, created_at
		FROM submissions WHERE user_id = ? ORDER BY created_at DESC, id DESC`)
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()
	out := []*services.Submission{}
	for rows.Next() {
		var (
			sub   services.Submission
			taken sql.NullInt64
			conf  sql.NullFloat64
		)
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.TaskID, &sub.TrackID, &sub.Answer, &taken, &conf, &sub.CreatedAt); err != nil {
			return nil, err
		}
		if taken.Valid {
			v := int(taken.Int64)
			sub.TimeTakenSeconds = &v
		}
		if conf.Valid {
			v := conf.Float64
			sub.Confidence = &v
		}
		sub.CreatedAt = sub.CreatedAt.UTC()
		out = append(out, &sub)
	}
	return out, rows.Err()
}

func (s *SQLStore) TopByScore(ctx context.Context, limit int) ([]services.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = services.LeaderboardSize
	}
	q := s.dialect.Rebind("SELECT id, username, score FROM users ORDER BY score DESC, created_at ASC LIMIT ?")
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()
	out := []services.LeaderboardEntry{}
	for rows.Next() {
		var e services.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Username, &e.Score); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
