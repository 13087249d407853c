package utils

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// SafeEnv returns the environment variable value for key, or fallback if empty.
func SafeEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// SafeEnvBool parses key as a boolean ("1", "true", "yes", "on").
// Unset or unparseable values yield fallback.
func SafeEnvBool(key string, fallback bool) bool {
	switch strings.ToLower(SafeEnv(key, "")) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// SafeEnvInt returns key parsed as an int. The second result is false when
// the variable is set but is not a number.
func SafeEnvInt(key string, fallback int) (int, bool) {
	v := SafeEnv(key, "")
	if v == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, false
	}
	return n, true
}

// SafeEnvDuration accepts Go duration strings ("15s", "168h") or a bare
// number of seconds.
func SafeEnvDuration(key string, fallback time.Duration) (time.Duration, bool) {
	v := SafeEnv(key, "")
	if v == "" {
		return fallback, true
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, true
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, false
	}
	return d, true
}
