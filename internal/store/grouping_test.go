package store

import (
	"testing"
	"time"
)

func msgAt(id int64, t time.Time) Message {
	return Message{ServerID: id, SentAt: t.UnixMilli(), Content: "m"}
}

func TestGroupByDayLabels(t *testing.T) {
	now := time.Date(2026, 8, 30, 15, 0, 0, 0, time.Local)
	msgs := []Message{
		msgAt(1, now.AddDate(0, 0, -5)),
		msgAt(2, now.AddDate(0, 0, -1)),
		msgAt(3, now.AddDate(0, 0, -1).Add(time.Hour)),
		msgAt(4, now.Add(-time.Hour)),
	}

	var labels []string
	var sizes []int
	for label, bucket := range GroupByDay(msgs, now) {
		labels = append(labels, label)
		sizes = append(sizes, len(bucket))
	}

	wantLabels := []string{"Tuesday, Aug 25, 2026", "Yesterday", "Today"}
	if len(labels) != len(wantLabels) {
		t.Fatalf("got %d buckets (%v), want %d", len(labels), labels, len(wantLabels))
	}
	for i, w := range wantLabels {
		if labels[i] != w {
			t.Errorf("bucket %d label = %q, want %q", i, labels[i], w)
		}
	}
	wantSizes := []int{1, 2, 1}
	for i, w := range wantSizes {
		if sizes[i] != w {
			t.Errorf("bucket %d size = %d, want %d", i, sizes[i], w)
		}
	}
}

func TestGroupByDayReconstructsSequence(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.Local)
	var msgs []Message
	for i := int64(1); i <= 10; i++ {
		msgs = append(msgs, msgAt(i, now.AddDate(0, 0, int(i)-10).Add(time.Duration(i)*time.Minute)))
	}

	var flattened []int64
	for _, bucket := range GroupByDay(msgs, now) {
		for _, m := range bucket {
			flattened = append(flattened, m.ServerID)
		}
	}

	if len(flattened) != len(msgs) {
		t.Fatalf("union has %d messages, want %d", len(flattened), len(msgs))
	}
	for i, m := range msgs {
		if flattened[i] != m.ServerID {
			t.Errorf("position %d = id %d, want %d", i, flattened[i], m.ServerID)
		}
	}
}

func TestGroupByDayRestartable(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.Local)
	msgs := []Message{msgAt(1, now), msgAt(2, now.Add(time.Minute))}

	seq := GroupByDay(msgs, now)
	count := func() int {
		n := 0
		for _, bucket := range seq {
			n += len(bucket)
		}
		return n
	}
	if first, second := count(), count(); first != 2 || second != 2 {
		t.Errorf("iterations saw %d then %d messages, want 2 and 2", first, second)
	}
}

func TestGroupByDayEarlyStop(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.Local)
	msgs := []Message{
		msgAt(1, now.AddDate(0, 0, -2)),
		msgAt(2, now.AddDate(0, 0, -1)),
		msgAt(3, now),
	}

	n := 0
	for range GroupByDay(msgs, now) {
		n++
		break
	}
	if n != 1 {
		t.Errorf("early break consumed %d buckets, want 1", n)
	}
}

func TestGroupByDayEmpty(t *testing.T) {
	for range GroupByDay(nil, time.Now()) {
		t.Fatal("empty input yielded a bucket")
	}
}
