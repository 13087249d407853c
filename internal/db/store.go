package db

import "github.com/soaringjerry/tasktrail/internal/services"

// Store is everything the services need from persistence.
type Store interface {
	services.AuthStore
	services.ProgressStore
	services.ProfileStore
	services.SubmissionStore
	services.LeaderboardStore
}

var (
	_ Store                     = (*SQLStore)(nil)
	_ Store                     = (*MemoryStore)(nil)
	_ services.LeaderboardCache = (*RedisLeaderboard)(nil)
)
