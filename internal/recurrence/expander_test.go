package recurrence

import (
	"errors"
	"testing"
	"time"

	"calwatch/internal/types"
)

func drain(t *testing.T, next Next, max int) []time.Time {
	t.Helper()
	var out []time.Time
	for i := 0; i < max; i++ {
		ts, ok := next()
		if !ok {
			return out
		}
		out = append(out, ts)
	}
	t.Fatalf("iterator did not terminate within %d occurrences", max)
	return nil
}

func TestExpand_NonRecurringYieldsStartOnce(t *testing.T) {
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	ev := &types.Event{ID: 1, StartAt: start}

	x := NewExpander(0)
	next, err := x.Expand(ev, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := drain(t, next, 5)
	if len(got) != 1 || !got[0].Equal(start) {
		t.Fatalf("got %v, want exactly [%v]", got, start)
	}
}

func TestExpand_DailyRule(t *testing.T) {
	start := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	ev := &types.Event{
		ID:        1,
		StartAt:   start,
		Recurring: true,
		RRule:     "FREQ=DAILY;COUNT=3",
	}

	x := NewExpander(0)
	next, err := x.Expand(ev, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := drain(t, next, 10)
	want := []time.Time{start, start.AddDate(0, 0, 1), start.AddDate(0, 0, 2)}
	if len(got) != len(want) {
		t.Fatalf("got %d occurrences %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("occurrence[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestExpand_ExclusionDatesRemoved(t *testing.T) {
	start := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	skipped := start.AddDate(0, 0, 1)
	ev := &types.Event{
		ID:        1,
		StartAt:   start,
		Recurring: true,
		RRule:     "FREQ=DAILY;COUNT=3",
		ExDates:   []time.Time{skipped},
	}

	x := NewExpander(0)
	next, err := x.Expand(ev, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := drain(t, next, 10)
	if len(got) != 2 {
		t.Fatalf("got %d occurrences %v, want 2", len(got), got)
	}
	for _, ts := range got {
		if ts.Equal(skipped) {
			t.Errorf("excluded date %v still present in %v", skipped, got)
		}
	}
}

func TestExpand_MalformedRule(t *testing.T) {
	ev := &types.Event{
		ID:        1,
		StartAt:   time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC),
		Recurring: true,
		RRule:     "FREQ=SOMETIMES",
	}

	x := NewExpander(0)
	_, err := x.Expand(ev, time.Time{})
	if err == nil {
		t.Fatal("expected error for malformed rule")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeValidationInvalidRRule {
		t.Errorf("error = %v, want AppError with code %s", err, types.ErrCodeValidationInvalidRRule)
	}
}

func TestExpand_FastForwardSkipsHistoryWithoutSpendingCap(t *testing.T) {
	// Hourly series started a year back: the elapsed occurrences far exceed
	// the cap, but skipping them must not spend it. The first occurrence
	// handed out is the first at or after from, and the cap still allows
	// that many occurrences from there on.
	start := time.Date(2025, 9, 2, 9, 0, 0, 0, time.UTC)
	from := time.Date(2026, 9, 2, 8, 35, 0, 0, time.UTC)
	ev := &types.Event{
		ID:        1,
		StartAt:   start,
		Recurring: true,
		RRule:     "FREQ=HOURLY",
	}

	x := NewExpander(3)
	next, err := x.Expand(ev, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := drain(t, next, 100)
	if len(got) != 3 {
		t.Fatalf("got %d occurrences, want the cap of 3", len(got))
	}
	first := time.Date(2026, 9, 2, 9, 0, 0, 0, time.UTC)
	for i, want := range []time.Time{first, first.Add(time.Hour), first.Add(2 * time.Hour)} {
		if !got[i].Equal(want) {
			t.Errorf("occurrence[%d] = %v, want %v", i, got[i], want)
		}
	}
}

func TestExpand_NonRecurringBeforeFromYieldsNothing(t *testing.T) {
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	ev := &types.Event{ID: 1, StartAt: start}

	x := NewExpander(0)
	next, err := x.Expand(ev, start.Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := drain(t, next, 5); len(got) != 0 {
		t.Fatalf("got %v, want no occurrences", got)
	}
}

func TestExpand_OccurrenceCap(t *testing.T) {
	ev := &types.Event{
		ID:        1,
		StartAt:   time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC),
		Recurring: true,
		RRule:     "FREQ=DAILY", // unbounded
	}

	x := NewExpander(4)
	next, err := x.Expand(ev, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := drain(t, next, 100)
	if len(got) != 4 {
		t.Fatalf("got %d occurrences, want the cap of 4", len(got))
	}
}
