package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"backend-runtracker/internal/location"
	"backend-runtracker/internal/tracking"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisSinkDeliver(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	sink := NewRedisSink(client)
	summary := tracking.RunSummary{
		ID:             "run-1",
		RunnerID:       "runner-1",
		StartedAt:      time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC),
		EndedAt:        time.Date(2024, 5, 1, 6, 30, 0, 0, time.UTC),
		ElapsedSeconds: 1800,
		DistanceMeters: 5012,
		Path:           []location.Sample{{Latitude: -6.2, Longitude: 106.8}},
	}
	if err := sink.Deliver(context.Background(), summary); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	n, err := sink.Pending(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("expected 1 pending summary, got %d (%v)", n, err)
	}

	raw, err := client.RPop(context.Background(), SummaryList).Result()
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	var got tracking.RunSummary
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "run-1" || got.DistanceMeters != 5012 || len(got.Path) != 1 {
		t.Fatalf("unexpected summary: %+v", got)
	}
}

func TestRedisSinkNoClient(t *testing.T) {
	sink := NewRedisSink(nil)
	if err := sink.Deliver(context.Background(), tracking.RunSummary{}); !errors.Is(err, ErrNoClient) {
		t.Fatalf("expected ErrNoClient, got %v", err)
	}
	if _, err := sink.Pending(context.Background()); !errors.Is(err, ErrNoClient) {
		t.Fatalf("expected ErrNoClient, got %v", err)
	}
}

func TestRedisSinkServerDown(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()
	s.Close()

	if err := NewRedisSink(client).Deliver(context.Background(), tracking.RunSummary{ID: "run-2"}); err == nil {
		t.Fatalf("expected push error")
	}
}
