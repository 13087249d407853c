package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/soaringjerry/tasktrail/internal/services"
)

func dialHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func TestHubBroadcastsRewardEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub()
	go h.Run(ctx)
	conn := dialHub(t, h)

	h.RewardApplied(ctx, &services.RewardOutcome{
		Applied:        true,
		UnlockedBadges: []string{services.BadgeFirstTask},
		User:           &services.User{ID: "u1", Username: "ana", ProgressState: services.ProgressState{Score: 10}},
	})

	var got []Event
	for i := 0; i < 2; i++ {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read event %d: %v", i, err)
		}
		got = append(got, ev)
	}
	if got[0].Type != EventLeaderboardUpdate || got[1].Type != EventBadgeUnlocked {
		t.Fatalf("event types = %s, %s", got[0].Type, got[1].Type)
	}
	data, ok := got[1].Data.(map[string]any)
	if !ok || data["badge"] != services.BadgeFirstTask || data["userId"] != "u1" {
		t.Fatalf("badge payload = %#v", got[1].Data)
	}
}

func TestHubIgnoresSkippedRewards(t *testing.T) {
	h := NewHub()
	h.RewardApplied(context.Background(), &services.RewardOutcome{Applied: false, User: &services.User{ID: "u1"}})
	if len(h.broadcast) != 0 {
		t.Fatalf("queued %d events for a skipped reward", len(h.broadcast))
	}
}

func TestPublishAfterStopDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub()
	stopped := make(chan struct{})
	go func() { h.Run(ctx); close(stopped) }()
	cancel()
	<-stopped
	for i := 0; i < broadcastQueue+5; i++ {
		h.Publish("x", i)
	}
}
