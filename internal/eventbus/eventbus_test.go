package eventbus

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEventMarshalsTypeTimestampData(t *testing.T) {
	e := Event{Type: "trade.executed", Timestamp: time.Date(2026, 2, 18, 9, 0, 0, 0, time.UTC), Data: map[string]any{"city": "NYC"}}
	raw, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded["type"] != "trade.executed" {
		t.Errorf("type = %v, want trade.executed", decoded["type"])
	}
	if _, ok := decoded["timestamp"]; !ok {
		t.Error("missing timestamp field")
	}
	data, ok := decoded["data"].(map[string]any)
	if !ok || data["city"] != "NYC" {
		t.Errorf("data = %v, want {city: NYC}", decoded["data"])
	}
}

func TestBackoffDoublesUpToCap(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{5, 32 * time.Second}, // already past cap
	}
	for _, c := range cases {
		got := backoff(c.attempt)
		if c.attempt == 5 {
			if got != maxBackoff {
				t.Errorf("backoff(%d) = %v, want capped at %v", c.attempt, got, maxBackoff)
			}
			continue
		}
		if got != c.want {
			t.Errorf("backoff(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestBackoffNeverExceedsCap(t *testing.T) {
	for attempt := 0; attempt < 20; attempt++ {
		if got := backoff(attempt); got > maxBackoff {
			t.Errorf("backoff(%d) = %v, exceeds cap %v", attempt, got, maxBackoff)
		}
	}
}
