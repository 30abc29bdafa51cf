// Package retention prunes old message links on a cron schedule. The
// default relay policy is unbounded append-only storage so arbitrarily
// late replies still resolve; operators with bounded disks can opt in to
// a maximum link age instead.
package retention

import (
	"context"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog"

	"github.com/tinyland-inc/crosswire/pkg/linkstore"
)

// Sweeper deletes message records older than MaxAge whenever Schedule is
// due. Deleting a record only forgets the reply mapping; already-relayed
// messages are untouched.
type Sweeper struct {
	log      zerolog.Logger
	links    *linkstore.Store
	schedule string
	maxAge   time.Duration
	gron     *gronx.Gronx

	// tick is overridable in tests.
	tick time.Duration
}

func NewSweeper(links *linkstore.Store, schedule string, maxAge time.Duration, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		log:      log.With().Str("component", "retention").Logger(),
		links:    links,
		schedule: schedule,
		maxAge:   maxAge,
		gron:     gronx.New(),
		tick:     time.Minute,
	}
}

// Run blocks until ctx is canceled, sweeping whenever the schedule fires.
func (s *Sweeper) Run(ctx context.Context) {
	if !s.gron.IsValid(s.schedule) {
		s.log.Error().Str("schedule", s.schedule).Msg("invalid retention schedule, sweeper disabled")
		return
	}
	s.log.Info().Str("schedule", s.schedule).Dur("max_age", s.maxAge).Msg("retention sweeper running")

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due, err := s.gron.IsDue(s.schedule, now)
			if err != nil || !due {
				continue
			}
			s.Sweep(ctx, now)
		}
	}
}

// Sweep deletes records older than now minus the configured max age.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) {
	cutoff := now.Add(-s.maxAge)
	deleted, err := s.links.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.log.Error().Err(err).Msg("retention sweep failed")
		return
	}
	if deleted > 0 {
		s.log.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("pruned old message links")
	}
}
