package rewards

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jobhub-dev/jobhub/pkg/store"
)

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestNextSnapshotTime(t *testing.T) {
	tests := []struct {
		now  string
		want string
	}{
		{"2025-03-01T04:59:59Z", "2025-03-01T05:00:00Z"},
		{"2025-03-01T05:00:01Z", "2025-04-01T05:00:00Z"},
		{"2025-03-01T05:00:00Z", "2025-04-01T05:00:00Z"},
		{"2025-03-15T12:00:00Z", "2025-04-01T05:00:00Z"},
		{"2025-12-20T00:00:00Z", "2026-01-01T05:00:00Z"},
		{"2024-12-31T23:00:00-08:00", "2025-02-01T05:00:00Z"},
	}
	for _, tt := range tests {
		got := NextSnapshotTime(at(tt.now))
		if !got.Equal(at(tt.want)) {
			t.Errorf("NextSnapshotTime(%s) = %s, want %s", tt.now, got.Format(time.RFC3339), tt.want)
		}
		if got.Location() != time.UTC {
			t.Errorf("NextSnapshotTime(%s) location = %s, want UTC", tt.now, got.Location())
		}
	}
}

func TestIsRewardsLive(t *testing.T) {
	tests := []struct {
		now  string
		want bool
	}{
		{"2025-03-01T04:59:59Z", false},
		{"2025-03-01T05:00:00Z", true},
		{"2025-03-02T12:00:00Z", true},
		{"2025-03-03T23:59:59Z", true},
		{"2025-03-04T00:00:00Z", false},
		{"2025-03-31T12:00:00Z", false},
	}
	for _, tt := range tests {
		if got := IsRewardsLive(at(tt.now)); got != tt.want {
			t.Errorf("IsRewardsLive(%s) = %v, want %v", tt.now, got, tt.want)
		}
	}
}

func TestIsFirstSnapshot(t *testing.T) {
	if !IsFirstSnapshot(at("2025-01-01T04:59:59Z")) {
		t.Error("expected true just before the first snapshot")
	}
	if IsFirstSnapshot(at("2025-01-01T05:00:00Z")) {
		t.Error("expected false at the first snapshot")
	}
}

func TestFormatCountdown(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00"},
		{-5 * time.Second, "00:00:00"},
		{59 * time.Second, "00:00:59"},
		{time.Hour + 2*time.Minute + 3*time.Second, "01:02:03"},
		{24*time.Hour - time.Second, "23:59:59"},
		{24 * time.Hour, "1d 0h 0m"},
		{3*24*time.Hour + 4*time.Hour + 5*time.Minute + 6*time.Second, "3d 4h 5m"},
	}
	for _, tt := range tests {
		if got := FormatCountdown(tt.d); got != tt.want {
			t.Errorf("FormatCountdown(%s) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestCountdownPastTarget(t *testing.T) {
	if got := Countdown(at("2025-03-02T00:00:00Z"), at("2025-03-01T05:00:00Z")); got != "00:00:00" {
		t.Errorf("got %q", got)
	}
}

func TestStatusAt(t *testing.T) {
	s := StatusAt(at("2025-03-01T04:00:00Z"))
	if s.Countdown != "01:00:00" {
		t.Errorf("countdown = %q", s.Countdown)
	}
	if s.Live || s.First {
		t.Errorf("live=%v first=%v, want both false", s.Live, s.First)
	}
}

// ---------------------------------------------------------------------------
// Tick / Scheduler
// ---------------------------------------------------------------------------

func TestTickStopsOnCancel(t *testing.T) {
	clock := store.NewFixedClock(at("2025-03-01T04:59:57Z"))
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	go func() {
		Tick(ctx, clock, time.Millisecond, func(s Status) {
			mu.Lock()
			got = append(got, s.Countdown)
			n := len(got)
			mu.Unlock()
			clock.Advance(time.Second)
			if n == 3 {
				cancel()
			}
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Tick did not return after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"00:00:03", "00:00:02", "00:00:01"}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("tick %d = %q, want %q", i, got[i], w)
		}
	}
}

func TestSchedulerNext(t *testing.T) {
	s, err := NewScheduler(nil, func(time.Time) {})
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	defer s.Stop(context.Background())

	next := s.Next()
	if next.IsZero() {
		t.Fatal("expected a scheduled entry")
	}
	u := next.UTC()
	if u.Day() != 1 || u.Hour() != 5 || u.Minute() != 0 {
		t.Errorf("next = %s, want the 1st at 05:00 UTC", u)
	}
}
