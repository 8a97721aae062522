package conference

import (
	"context"
	"time"

	"voicebridge/internal/creds"
)

// SweepStats counts the outcome of one orphaned-conference sweep.
type SweepStats struct {
	Cleaned     int `json:"cleaned"`
	StillActive int `json:"still_active"`
	Errors      int `json:"errors"`
}

// RunSweeper periodically force-terminates conferences that outlived the
// max-duration cap without an end webhook, until ctx ends.
func (s *Scheduler) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := s.SweepOnce(ctx)
			if stats.Cleaned > 0 || stats.Errors > 0 {
				s.log.Info("conference sweep",
					"cleaned", stats.Cleaned,
					"still_active", stats.StillActive,
					"errors", stats.Errors,
				)
			}
		}
	}
}

// SweepOnce scans for conferences whose start time exceeds the max-duration
// threshold but which were never explicitly ended (a missed webhook) and
// force-terminates them via the carrier. A record disappearing or changing
// concurrently is tolerated; per-conference failures never stop the scan.
func (s *Scheduler) SweepOnce(ctx context.Context) SweepStats {
	now := s.clock().UTC()
	stats := SweepStats{}

	open, err := s.repo.ListOpenConferences(ctx, now)
	if err != nil {
		s.log.Error("conference sweep scan failed", "error", err)
		stats.Errors++
		return stats
	}

	cutoff := now.Add(-s.maxDuration)
	for _, rec := range open {
		if rec.Metadata.ConferenceStartedAt == nil {
			continue
		}
		if !rec.Metadata.ConferenceStartedAt.Before(cutoff) {
			stats.StillActive++
			continue
		}

		resolved, err := s.resolver.Resolve(ctx, creds.ResolveRequest{
			CompanyID: rec.CompanyID,
			Scope:     creds.ScopeFull,
		})
		if err != nil {
			s.log.Error("sweep credential resolution failed",
				"record_id", rec.ID, "company_id", rec.CompanyID, "error", err)
			stats.Errors++
			continue
		}

		if err := s.api.TerminateConference(ctx, resolved.Carrier, rec.Metadata.ConferenceSID); err != nil {
			s.log.Error("sweep termination failed",
				"record_id", rec.ID, "conference_sid", rec.Metadata.ConferenceSID, "error", err)
			stats.Errors++
			continue
		}

		s.log.Warn("terminated orphaned conference",
			"record_id", rec.ID,
			"conference_sid", rec.Metadata.ConferenceSID,
			"started_at", rec.Metadata.ConferenceStartedAt,
		)
		stats.Cleaned++
	}
	return stats
}
