// Package refresh owns the calendar cache slot and the TTL-driven refresh
// cycle that repopulates it from the upstream portal.
package refresh

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	appLog "portalics/internal/log"
	"portalics/internal/metrics"
	"portalics/internal/model"
	"portalics/internal/schedule"
)

// maxConcurrentWindows bounds how many portal week queries run in parallel
// within one refresh cycle.
const maxConcurrentWindows = 4

// WeekClient is the upstream fetch capability: resolving a probe instant to
// the portal's opaque week token, then fetching that week's schedule blob.
// Both calls may be slow and may fail; the refresher isolates failures per
// window and never retries.
type WeekClient interface {
	ResolveWeek(ctx context.Context, instant time.Time) (string, error)
	FetchWeek(ctx context.Context, token string) (string, error)
}

// BuildFunc turns the final sorted event list into the published calendar
// bytes. It must accept an empty list and produce a structurally valid
// empty artifact.
type BuildFunc func(events []model.Event) ([]byte, error)

// Artifact is one published calendar snapshot. Immutable after publication;
// a refresh replaces the whole value, never mutates it.
type Artifact struct {
	Bytes      []byte
	Expires    time.Time
	EventCount int
}

// Status is a read-only view of the cache slot for the health endpoint.
type Status struct {
	HasArtifact bool      `json:"has_artifact"`
	Expires     time.Time `json:"cache_expires"`
	EventCount  int       `json:"event_count"`
}

// Options parameterizes a Refresher.
type Options struct {
	// Location is the timezone in which probe instants are computed.
	Location *time.Location

	// WeeksBefore / WeeksAfter bound the probe horizon around now.
	WeeksBefore int
	WeeksAfter  int

	// TTL is how long a published artifact stays fresh.
	TTL time.Duration

	// Now overrides the clock; nil means time.Now. Used by tests.
	Now func() time.Time
}

// Refresher maintains the single cache slot. Reads are lock-free over an
// atomic pointer; the refresh action itself is serialized through
// singleflight so concurrent expired readers trigger exactly one cycle.
type Refresher struct {
	client WeekClient
	build  BuildFunc
	opts   Options

	artifact atomic.Pointer[Artifact]
	flight   singleflight.Group
}

// New constructs a Refresher. The cache slot starts empty; the first
// Calendar call performs the initial refresh.
func New(client WeekClient, build BuildFunc, opts Options) *Refresher {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.TTL <= 0 {
		opts.TTL = 15 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Refresher{
		client: client,
		build:  build,
		opts:   opts,
	}
}

// Calendar returns the current calendar bytes, refreshing first when the
// slot is empty or expired (the expiry instant itself counts as expired).
// The only error it can surface is a build failure with no previous
// artifact to fall back on; callers on the read path should still respond
// with an empty body rather than a hard failure.
func (r *Refresher) Calendar(ctx context.Context) ([]byte, error) {
	if a := r.artifact.Load(); a != nil && r.opts.Now().Before(a.Expires) {
		return a.Bytes, nil
	}

	_, err, _ := r.flight.Do("refresh", func() (any, error) {
		// A flight that just finished may have published already.
		if a := r.artifact.Load(); a != nil && r.opts.Now().Before(a.Expires) {
			return nil, nil
		}
		// The cycle serves every current and future reader, so it must not
		// die with the caller that happened to trigger it: a client
		// disconnecting mid-refresh would fail every window and publish an
		// empty artifact over a good cache. Per-call timeouts in the week
		// client still bound each window.
		return nil, r.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		// Build failure: keep serving the previous artifact if one exists.
		if a := r.artifact.Load(); a != nil {
			appLog.Warn("refresh failed, serving previous artifact", "err", err)
			return a.Bytes, nil
		}
		return nil, err
	}

	if a := r.artifact.Load(); a != nil {
		return a.Bytes, nil
	}
	return nil, nil
}

// Status reports the current cache slot state.
func (r *Refresher) Status() Status {
	a := r.artifact.Load()
	if a == nil {
		return Status{}
	}
	return Status{
		HasArtifact: true,
		Expires:     a.Expires,
		EventCount:  a.EventCount,
	}
}

// refresh runs one full cycle: probe every configured week window, merge
// and dedup the results, build the calendar bytes, publish. Window-level
// failures degrade the result instead of aborting; only a build failure
// leaves the previous artifact in place.
func (r *Refresher) refresh(ctx context.Context) error {
	cycle := uuid.NewString()[:8]
	now := r.opts.Now().In(r.opts.Location)
	instants := r.probeInstants(now)

	appLog.Info("refresh cycle start",
		"cycle", cycle,
		"windows", len(instants),
		"weeks_before", r.opts.WeeksBefore,
		"weeks_after", r.opts.WeeksAfter,
	)
	metrics.RefreshCycles.Inc()

	// One slot per window keeps window order stable for dedup no matter
	// how the goroutines interleave.
	perWindow := make([][]model.Event, len(instants))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentWindows)
	for i, instant := range instants {
		i, instant := i, instant
		g.Go(func() error {
			perWindow[i] = r.fetchWindow(gctx, cycle, instant)
			return nil
		})
	}
	// Window errors are absorbed inside fetchWindow; Wait only gathers.
	_ = g.Wait()

	events := mergeAndSort(perWindow)

	bytes, err := r.build(events)
	if err != nil {
		metrics.BuildFailures.Inc()
		return fmt.Errorf("build calendar: %w", err)
	}

	artifact := &Artifact{
		Bytes:      bytes,
		Expires:    r.opts.Now().Add(r.opts.TTL),
		EventCount: len(events),
	}
	r.artifact.Store(artifact)

	metrics.PublishedEvents.Set(float64(len(events)))
	metrics.CacheExpiryUnix.Set(float64(artifact.Expires.Unix()))
	appLog.Info("refresh cycle published",
		"cycle", cycle,
		"events", len(events),
		"expires", artifact.Expires.Format(time.RFC3339),
	)
	return nil
}

// fetchWindow resolves and fetches a single week window, returning its
// parsed events. Any failure is logged and yields nil; a dead window must
// not take the cycle down with it.
func (r *Refresher) fetchWindow(ctx context.Context, cycle string, instant time.Time) []model.Event {
	token, err := r.client.ResolveWeek(ctx, instant)
	if err != nil {
		metrics.WindowFailures.Inc()
		appLog.Warn("week resolve failed",
			"cycle", cycle,
			"instant", instant.Format("2006-01-02"),
			"err", err,
		)
		return nil
	}
	if token == "" {
		// The portal answered but knows no week for this instant; the
		// window contributes nothing, same as a failed call.
		metrics.WindowFailures.Inc()
		appLog.Warn("no week token for instant", "cycle", cycle, "instant", instant.Format("2006-01-02"))
		return nil
	}

	blob, err := r.client.FetchWeek(ctx, token)
	if err != nil {
		metrics.WindowFailures.Inc()
		appLog.Warn("week fetch failed",
			"cycle", cycle,
			"week_token", token,
			"err", err,
		)
		return nil
	}

	events, skipped := schedule.Extract(blob)
	if skipped > 0 {
		metrics.ParseSkippedBlocks.Add(float64(skipped))
		appLog.Warn("skipped malformed event blocks",
			"cycle", cycle,
			"week_token", token,
			"skipped", skipped,
		)
	}
	return events
}

// probeInstants generates one instant per whole-week offset in
// [-WeeksBefore, +WeeksAfter] around now, earliest first, as a weekly
// recurrence series.
func (r *Refresher) probeInstants(now time.Time) []time.Time {
	count := r.opts.WeeksBefore + r.opts.WeeksAfter + 1
	start := now.AddDate(0, 0, -7*r.opts.WeeksBefore)

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.WEEKLY,
		Count:   count,
		Dtstart: start,
	})
	if err != nil {
		// Cannot happen with a plain weekly COUNT rule, but fall back to
		// direct arithmetic rather than skipping the cycle.
		instants := make([]time.Time, 0, count)
		for i := 0; i < count; i++ {
			instants = append(instants, start.AddDate(0, 0, 7*i))
		}
		return instants
	}
	return rule.All()
}

// mergeAndSort flattens per-window results into one deduplicated list
// ordered by (start, summary). First occurrence wins, in window order, so
// re-fetching overlapping weeks is idempotent.
func mergeAndSort(perWindow [][]model.Event) []model.Event {
	seen := make(map[model.Key]struct{})
	merged := make([]model.Event, 0)

	for _, events := range perWindow {
		for _, ev := range events {
			key := ev.DedupKey()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, ev)
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].Start.Equal(merged[j].Start) {
			return merged[i].Start.Before(merged[j].Start)
		}
		return merged[i].Summary < merged[j].Summary
	})

	return merged
}
