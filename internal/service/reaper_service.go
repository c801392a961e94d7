package service

import (
	"log"
	"time"

	"turnero/internal/metrics"
)

// HoldReaper sweeps expired holds on a fixed schedule. Each sweep is
// idempotent, so overlapping runs from multiple instances are harmless.
type HoldReaper struct {
	Repo BookingStore
	Now  func() time.Time
}

func NewHoldReaper(repo BookingStore) *HoldReaper {
	return &HoldReaper{Repo: repo, Now: time.Now}
}

// Sweep cancels every hold whose TTL elapsed and returns how many rows it
// touched.
func (r *HoldReaper) Sweep() (int64, error) {
	expired, err := r.Repo.CleanupExpiredHolds(r.Now().UTC())
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		metrics.HoldsExpired.Add(float64(expired))
		log.Printf("hold reaper expired %d holds", expired)
	}
	return expired, nil
}

// Run is the cron entrypoint; it logs and swallows errors so one failed sweep
// never stops the schedule.
func (r *HoldReaper) Run() {
	if _, err := r.Sweep(); err != nil {
		log.Printf("hold reaper sweep failed: %v", err)
	}
}
