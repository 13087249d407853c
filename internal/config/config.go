package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/soaringjerry/tasktrail/internal/utils"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	devJWTSecret = "tasktrail-dev-secret"
)

// Config is read once at startup and handed to constructors.
type Config struct {
	Addr      string
	Commit    string
	BuildTime string
	Dev       bool

	DBDriver      string
	DatabaseURL   string
	MigrationsDir string
	AutoMigrate   bool

	JWTSecret string
	TokenTTL  time.Duration

	TaskAPIBase        string
	TaskAPIKey         string
	TaskAPILang        string
	TaskAPICategory    string
	TaskAPIInsecureTLS bool
	TaskAPITimeout     time.Duration
	// ClientAPIKey, when set, must match the x-api-key header on /api/tasks/next.
	ClientAPIKey string

	StreakLocation *time.Location

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// parse problems collected by Load and reported by Validate
	problems []string
}

// Load reads the environment and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Addr:               utils.SafeEnv("TASKTRAIL_ADDR", ":8080"),
		Commit:             utils.SafeEnv("TASKTRAIL_COMMIT", ""),
		BuildTime:          utils.SafeEnv("TASKTRAIL_BUILD_TIME", ""),
		Dev:                utils.SafeEnvBool("TASKTRAIL_DEV", false),
		MigrationsDir:      utils.SafeEnv("TASKTRAIL_MIGRATIONS_DIR", ""),
		AutoMigrate:        utils.SafeEnvBool("TASKTRAIL_AUTO_MIGRATE", false),
		JWTSecret:          utils.SafeEnv("TASKTRAIL_JWT_SECRET", ""),
		TaskAPIBase:        strings.TrimRight(utils.SafeEnv("TASK_API_BASE", ""), "/"),
		TaskAPIKey:         utils.SafeEnv("TASK_API_KEY", ""),
		TaskAPILang:        utils.SafeEnv("TASK_API_LANG", "en"),
		TaskAPICategory:    utils.SafeEnv("TASK_API_CATEGORY", "vqa"),
		TaskAPIInsecureTLS: utils.SafeEnvBool("TASK_API_INSECURE_TLS", false),
		ClientAPIKey:       utils.SafeEnv("TASKTRAIL_CLIENT_API_KEY", ""),
		RedisAddr:          utils.SafeEnv("REDIS_ADDR", ""),
		RedisPassword:      utils.SafeEnv("REDIS_PASSWORD", ""),
	}

	if dbURL := utils.SafeEnv("DATABASE_URL", ""); dbURL != "" {
		cfg.DBDriver = utils.SafeEnv("TASKTRAIL_DB_DRIVER", DriverPostgres)
		cfg.DatabaseURL = dbURL
	} else {
		cfg.DBDriver = utils.SafeEnv("TASKTRAIL_DB_DRIVER", DriverSQLite)
		cfg.DatabaseURL = utils.SafeEnv("TASKTRAIL_SQLITE_PATH", "./data/tasktrail.db")
	}

	var ok bool
	if cfg.TokenTTL, ok = utils.SafeEnvDuration("TASKTRAIL_TOKEN_TTL", 7*24*time.Hour); !ok {
		cfg.problems = append(cfg.problems, "TASKTRAIL_TOKEN_TTL is not a duration")
	}
	if cfg.TaskAPITimeout, ok = utils.SafeEnvDuration("TASK_API_TIMEOUT", 15*time.Second); !ok {
		cfg.problems = append(cfg.problems, "TASK_API_TIMEOUT is not a duration")
	}
	if cfg.RedisDB, ok = utils.SafeEnvInt("REDIS_DB", 0); !ok {
		cfg.problems = append(cfg.problems, "REDIS_DB is not a number")
	}

	tz := utils.SafeEnv("TASKTRAIL_STREAK_TZ", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		cfg.problems = append(cfg.problems, fmt.Sprintf("TASKTRAIL_STREAK_TZ %q: %v", tz, err))
		loc = time.UTC
	}
	cfg.StreakLocation = loc

	if cfg.JWTSecret == "" && cfg.Dev {
		cfg.JWTSecret = devJWTSecret
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	problems := append([]string(nil), c.problems...)
	problems = append(problems, c.databaseProblems()...)
	if c.JWTSecret == "" {
		problems = append(problems, "TASKTRAIL_JWT_SECRET is required")
	}
	if c.TokenTTL <= 0 {
		problems = append(problems, "TASKTRAIL_TOKEN_TTL must be positive")
	}
	if c.TaskAPIBase == "" {
		problems = append(problems, "TASK_API_BASE is required")
	} else if u, err := url.Parse(c.TaskAPIBase); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, fmt.Sprintf("TASK_API_BASE %q is not an absolute URL", c.TaskAPIBase))
	}
	if c.TaskAPIKey == "" {
		problems = append(problems, "TASK_API_KEY is required")
	}
	if c.TaskAPITimeout <= 0 {
		problems = append(problems, "TASK_API_TIMEOUT must be positive")
	}
	if c.StreakLocation == nil {
		problems = append(problems, "streak location is not set")
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.New("invalid configuration: " + strings.Join(problems, "; "))
}

// ValidateDatabase checks only the settings the migrate command needs.
func (c Config) ValidateDatabase() error {
	if problems := c.databaseProblems(); len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}

func (c Config) databaseProblems() []string {
	switch c.DBDriver {
	case DriverSQLite, DriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return []string{"database location is empty"}
		}
	case DriverMemory:
	default:
		return []string{fmt.Sprintf("unsupported TASKTRAIL_DB_DRIVER %q", c.DBDriver)}
	}
	return nil
}

// RedisEnabled reports whether the leaderboard mirror should be used.
func (c Config) RedisEnabled() bool { return c.RedisAddr != "" }
