package utils

import "testing"

func TestT_Fallback(t *testing.T) {
	if got := T("fr", "health.ok"); got != "ok" {
		t.Fatalf("fallback to en failed: %s", got)
	}
	if got := T("zh", "badge.first_task"); got != "首个任务" {
		t.Fatalf("zh badge title = %q", got)
	}
	if got := T("en", "badge.unknown"); got != "badge.unknown" {
		t.Fatalf("missing key should echo key, got %q", got)
	}
}
