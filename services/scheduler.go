// services/scheduler.go
package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartRepairScheduler runs the duplicate-nullify and regenerate passes on a
// fixed interval. Both passes are idempotent, so an overlapping or repeated
// sweep is harmless.
func (s *RepairService) StartRepairScheduler(interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()

			nullify, regen, err := s.RunRepair(ctx)
			if err != nil {
				log.Printf("[Scheduler] Repair sweep failed: %v", err)
				return
			}
			log.Printf("✅ Repair sweep: %d nullified, %d regenerated, %d cleared, %d failed",
				nullify.Nullified, regen.Regenerated, regen.Cleared, nullify.Failed+regen.Failed)
		}),
	)
}
