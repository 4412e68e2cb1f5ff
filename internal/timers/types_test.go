package timers

import (
	"encoding/json"
	"testing"
	"time"
)

func TestViewActiveTimer(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tm := Timer{ID: "1", Description: "Write report", Start: start, IsActive: true}

	v := tm.View(start.Add(90 * time.Second))
	if v.Progress == nil || *v.Progress != 90_000 {
		t.Fatalf("expected progress 90000, got %v", v.Progress)
	}
	if v.End != nil || v.Duration != nil {
		t.Fatalf("active timer must not carry end or duration: %+v", v)
	}

	early := tm.View(start.Add(-time.Second))
	if *early.Progress != 0 {
		t.Fatalf("expected progress clamped to 0, got %d", *early.Progress)
	}
}

func TestViewStoppedTimer(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(5*time.Minute + 250*time.Millisecond)
	tm := Timer{ID: "2", Description: "Meeting", Start: start, End: &end}

	v := tm.View(end.Add(time.Hour))
	if v.Progress != nil {
		t.Fatalf("stopped timer must not carry progress")
	}
	if v.End == nil || v.Duration == nil {
		t.Fatalf("expected end and duration, got %+v", v)
	}
	if *v.Duration != *v.End-v.Start {
		t.Fatalf("duration %d != end-start %d", *v.Duration, *v.End-v.Start)
	}
	if tm.Duration() != 5*time.Minute+250*time.Millisecond {
		t.Fatalf("unexpected Duration(): %s", tm.Duration())
	}
}

func TestViewJSONFieldNames(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000).UTC()
	b, err := json.Marshal(Timer{ID: "7", Description: "x", Start: start, IsActive: true}.View(start))
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	for _, k := range []string{"id", "description", "start", "isActive", "progress"} {
		if _, ok := m[k]; !ok {
			t.Fatalf("missing key %q in %s", k, b)
		}
	}
	if _, ok := m["end"]; ok {
		t.Fatalf("unexpected end key in %s", b)
	}
}

func TestFilterAndViews(t *testing.T) {
	now := time.Now()
	end := now
	in := []Timer{
		{ID: "a", Start: now, IsActive: true},
		{ID: "b", Start: now, End: &end},
		{ID: "c", Start: now, IsActive: true},
	}
	if got := Filter(in, true); len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Fatalf("unexpected active filter: %+v", got)
	}
	if got := Filter(in, false); len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("unexpected inactive filter: %+v", got)
	}

	b, _ := json.Marshal(Views(nil, now))
	if string(b) != "[]" {
		t.Fatalf("expected [], got %s", b)
	}
}

func TestCloneCopiesEnd(t *testing.T) {
	end := time.Now()
	orig := Timer{ID: "a", End: &end}
	c := orig.Clone()
	*c.End = c.End.Add(time.Hour)
	if !orig.End.Equal(end) {
		t.Fatalf("clone shares End pointer")
	}
}

func TestProgressIsMonotonicAndDurationIsFixed(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tm := Timer{ID: "3", Start: start, IsActive: true}

	var last int64 = -1
	for i := -2; i < 50; i++ {
		v := tm.View(start.Add(time.Duration(i) * 137 * time.Millisecond))
		if *v.Progress < last {
			t.Fatalf("progress went backwards at step %d: %d < %d", i, *v.Progress, last)
		}
		last = *v.Progress
	}

	end := start.Add(42 * time.Second)
	tm.IsActive = false
	tm.End = &end
	for _, later := range []time.Duration{0, time.Minute, 24 * time.Hour} {
		v := tm.View(end.Add(later))
		if *v.Duration != 42_000 {
			t.Fatalf("duration changed after stop: %d", *v.Duration)
		}
	}
}
