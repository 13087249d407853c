package utils

// Server-side strings only: health text, badge titles and reward notices.

// SupportedLocales lists the locales T has tables for.
var SupportedLocales = []string{"en", "zh"}

var translations = map[string]map[string]string{
	"en": {
		"health.ok":        "ok",
		"badge.first_task": "First Task",
		"badge.streak_3":   "3-Day Streak",
		"badge.streak_5":   "5-Day Streak",
		"badge.streak_10":  "10-Day Streak",
		"badge.level_5":    "Level 5",
		"badge.level_10":   "Level 10",
		"reward.applied":   "+10 XP",
		"reward.skipped":   "Confidence below threshold, no XP awarded",
	},
	"zh": {
		"health.ok":        "好的",
		"badge.first_task": "首个任务",
		"badge.streak_3":   "连续 3 天",
		"badge.streak_5":   "连续 5 天",
		"badge.streak_10":  "连续 10 天",
		"badge.level_5":    "等级 5",
		"badge.level_10":   "等级 10",
		"reward.applied":   "经验值 +10",
		"reward.skipped":   "置信度未达标，未获得经验值",
	},
}

// T returns the translated string for key in locale; falls back to English, then to key.
func T(locale, key string) string {
	if m, ok := translations[locale]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	if v, ok := translations["en"][key]; ok {
		return v
	}
	return key
}
