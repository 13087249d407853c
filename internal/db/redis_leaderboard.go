package db

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/soaringjerry/tasktrail/internal/services"
)

const (
	LeaderboardScoreKey = "leaderboard:score"
	LeaderboardNamesKey = "leaderboard:names"
)

// RedisLeaderboard mirrors user scores in a sorted set keyed by user id, with
// usernames kept in a side hash.
type RedisLeaderboard struct {
	client redis.UniversalClient
}

func NewRedisLeaderboard(client redis.UniversalClient) *RedisLeaderboard {
	return &RedisLeaderboard{client: client}
}

// Top returns the highest scores, best first.
func (r *RedisLeaderboard) Top(ctx context.Context, limit int) ([]services.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = services.LeaderboardSize
	}
	// ZREVRANGE returns highest to lowest
	results, err := r.client.ZRevRangeWithScores(ctx, LeaderboardScoreKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return []services.LeaderboardEntry{}, nil
	}
	ids := make([]string, len(results))
	for i, z := range results {
		ids[i] = fmt.Sprint(z.Member)
	}
	names, err := r.client.HMGet(ctx, LeaderboardNamesKey, ids...).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]services.LeaderboardEntry, len(results))
	for i, z := range results {
		entries[i] = services.LeaderboardEntry{UserID: ids[i], Score: int(z.Score)}
		if name, ok := names[i].(string); ok {
			entries[i].Username = name
		}
	}
	return entries, nil
}

// Record upserts one user's score.
func (r *RedisLeaderboard) Record(ctx context.Context, e services.LeaderboardEntry) error {
	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, LeaderboardScoreKey, redis.Z{Score: float64(e.Score), Member: e.UserID})
	pipe.HSet(ctx, LeaderboardNamesKey, e.UserID, e.Username)
	_, err := pipe.Exec(ctx)
	return err
}

// Replace drops the mirror and reloads it from entries.
func (r *RedisLeaderboard) Replace(ctx context.Context, entries []services.LeaderboardEntry) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, LeaderboardScoreKey, LeaderboardNamesKey)
		for _, e := range entries {
			pipe.ZAdd(ctx, LeaderboardScoreKey, redis.Z{Score: float64(e.Score), Member: e.UserID})
			pipe.HSet(ctx, LeaderboardNamesKey, e.UserID, e.Username)
		}
		return nil
	})
	return err
}
