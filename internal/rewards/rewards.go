// Package rewards computes the monthly reward snapshot schedule and the
// countdown shown until the next snapshot.
package rewards

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// SnapshotSpec is the snapshot schedule: 05:00 UTC on the first of each month.
const SnapshotSpec = "CRON_TZ=UTC 0 5 1 * *"

// FirstSnapshot is the instant of the first ever snapshot.
var FirstSnapshot = time.Date(2025, time.January, 1, 5, 0, 0, 0, time.UTC)

var snapshotSchedule = mustParse(SnapshotSpec)

func mustParse(spec string) cron.Schedule {
	s, err := cron.ParseStandard(spec)
	if err != nil {
		panic(fmt.Sprintf("rewards: bad schedule %q: %v", spec, err))
	}
	return s
}

// NextSnapshotTime returns the first of the current month at 05:00 UTC if
// that instant is still ahead of now, otherwise the first of next month at
// 05:00 UTC. An instant exactly at 05:00:00 counts as passed.
func NextSnapshotTime(now time.Time) time.Time {
	return snapshotSchedule.Next(now.UTC())
}

// IsRewardsLive reports whether the claim window is open: day 1 from
// 05:00 UTC, and all of days 2 and 3.
func IsRewardsLive(now time.Time) bool {
	now = now.UTC()
	switch now.Day() {
	case 1:
		return now.Hour() >= 5
	case 2, 3:
		return true
	}
	return false
}

// IsFirstSnapshot reports whether now is before the first ever snapshot.
func IsFirstSnapshot(now time.Time) bool {
	return now.Before(FirstSnapshot)
}

// FormatCountdown renders a remaining duration as "{d}d {h}h {m}m" when at
// least a day remains, otherwise as zero-padded "HH:MM:SS". Non-positive
// durations render as "00:00:00".
func FormatCountdown(remaining time.Duration) string {
	if remaining <= 0 {
		return "00:00:00"
	}
	total := int64(remaining / time.Second)
	days := total / 86400
	hours := total % 86400 / 3600
	minutes := total % 3600 / 60
	seconds := total % 60
	if remaining >= 24*time.Hour {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// Countdown renders the time left from now until target.
func Countdown(now, target time.Time) string {
	return FormatCountdown(target.Sub(now))
}

// Status is the snapshot summary served to the UI.
type Status struct {
	Now          time.Time `json:"now"`
	NextSnapshot time.Time `json:"nextSnapshot"`
	Countdown    string    `json:"countdown"`
	Live         bool      `json:"live"`
	First        bool      `json:"first"`
}

// StatusAt summarizes the schedule at now.
func StatusAt(now time.Time) Status {
	next := NextSnapshotTime(now)
	return Status{
		Now:          now.UTC(),
		NextSnapshot: next,
		Countdown:    Countdown(now, next),
		Live:         IsRewardsLive(now),
		First:        IsFirstSnapshot(now),
	}
}
