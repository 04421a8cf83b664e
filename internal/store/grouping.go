package store

import (
	"iter"
	"time"
)

// GroupByDay buckets an ordered message slice by calendar day in local time.
// The sequence is lazy and restartable; labels are computed against the
// passed "now" on every iteration so "Today" stays correct across midnight
// when the caller re-renders.
func GroupByDay(msgs []Message, now time.Time) iter.Seq2[string, []Message] {
	return func(yield func(string, []Message) bool) {
		var (
			bucket []Message
			curDay time.Time
		)
		flush := func() bool {
			if len(bucket) == 0 {
				return true
			}
			ok := yield(DayLabel(curDay, now), bucket)
			bucket = nil
			return ok
		}
		for _, m := range msgs {
			day := startOfDay(time.UnixMilli(m.SentAt).Local())
			if len(bucket) > 0 && !day.Equal(curDay) {
				if !flush() {
					return
				}
			}
			curDay = day
			bucket = append(bucket, m)
		}
		flush()
	}
}

// DayLabel renders a bucket heading for the given calendar day relative to now.
func DayLabel(day, now time.Time) string {
	today := startOfDay(now.Local())
	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	default:
		return day.Format("Monday, Jan 2, 2006")
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
