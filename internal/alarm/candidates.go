package alarm

import (
	"context"
	"log/slog"
	"time"

	"calwatch/internal/types"
)

// DefaultBootstrapGrace widens the bootstrapped horizon past the earliest
// future trigger so clock skew between the query and the evaluation cannot
// drop the very next alarm.
const DefaultBootstrapGrace = 5 * time.Minute

// Finder is the candidate pre-filter. It delegates the coarse window test to
// the event store's bulk query and post-filters the result through the
// access-control collaborator. Read-only; an empty result is common and not
// an error.
type Finder struct {
	events EventStore
	access AccessChecker
	grace  time.Duration
	logger *slog.Logger
}

// NewFinder creates a Finder. grace <= 0 selects DefaultBootstrapGrace.
func NewFinder(events EventStore, access AccessChecker, grace time.Duration, logger *slog.Logger) *Finder {
	if grace <= 0 {
		grace = DefaultBootstrapGrace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Finder{
		events: events,
		access: access,
		grace:  grace,
		logger: logger,
	}
}

// FindCandidates returns, keyed by event id, the events whose alarm window
// could intersect the lookahead interval, restricted to those the actor may
// read and (when partnerID is non-nil) to events the partner attends.
//
// When horizon is nil the upper bound defaults to the earliest future
// trigger across all events plus the grace window. This bootstraps an
// otherwise-empty immediate horizon: the very next alarm is found even when
// it is far away. With no future trigger at all the bound degenerates to
// now, which matches the empty result that situation deserves.
//
// Candidates may over-include: an event is returned whenever its aggregated
// lead bounds admit a trigger in the window, even if per-alarm evaluation
// later rejects every attached alarm. It never omits an event whose alarm
// truly fires inside the window.
func (f *Finder) FindCandidates(
	ctx context.Context,
	now time.Time,
	kinds []types.AlarmType,
	horizon *time.Duration,
	partnerID *int64,
	actor types.Actor,
) (map[int64]types.EventCandidate, error) {
	upper, err := f.upperBound(ctx, now, kinds, horizon)
	if err != nil {
		return nil, err
	}

	rows, err := f.events.CandidateEvents(ctx, kinds, now, upper, partnerID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return map[int64]types.EventCandidate{}, nil
	}

	// Authorization is delegated, never bypassed: the raw query result is
	// post-filtered against the access-control collaborator.
	ids := make([]int64, 0, len(rows))
	for _, c := range rows {
		ids = append(ids, c.EventID)
	}
	readable, err := f.access.ReadableEventIDs(ctx, actor, ids)
	if err != nil {
		return nil, err
	}
	allowed := make(map[int64]struct{}, len(readable))
	for _, id := range readable {
		allowed[id] = struct{}{}
	}

	out := make(map[int64]types.EventCandidate, len(readable))
	for _, c := range rows {
		if _, ok := allowed[c.EventID]; ok {
			out[c.EventID] = c
		}
	}

	if len(out) < len(rows) {
		f.logger.Info("candidate events filtered by access control",
			"raw", len(rows),
			"readable", len(out),
		)
	}
	return out, nil
}

// upperBound resolves the horizon end for the candidate query.
func (f *Finder) upperBound(ctx context.Context, now time.Time, kinds []types.AlarmType, horizon *time.Duration) (time.Time, error) {
	if horizon != nil {
		return now.Add(*horizon), nil
	}

	next, err := f.events.NextTriggerAfter(ctx, kinds, now)
	if err != nil {
		return time.Time{}, err
	}
	if next == nil {
		return now, nil
	}
	return next.Add(f.grace), nil
}
