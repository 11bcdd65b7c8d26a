package daemon

import (
	"context"
	"time"

	"anibridge-plex/internal/logging"
)

// pollLoop drains the queue and syncs every interval, and drains the queue
// alone whenever a webhook triggers it.
func (d *Daemon) pollLoop(ctx context.Context) {
	d.syncOnce(ctx, true)

	interval := d.interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.syncOnce(ctx, true)
		case <-d.trigger:
			d.syncOnce(ctx, false)
		}
	}
}

func (d *Daemon) syncOnce(ctx context.Context, full bool) {
	if summary, err := d.syncer.RunPending(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.WarnWithContext(d.logger, "pending sync failed", "pending_sync_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "queued items stay pending until the next cycle"),
		)
	} else if summary.Acked > 0 {
		d.logger.Debug("pending sync completed", logging.Int("acked", summary.Acked))
	}
	if !full {
		return
	}
	if _, err := d.syncer.Run(ctx); err != nil && ctx.Err() == nil {
		logging.WarnWithContext(d.logger, "section sync failed", "section_sync_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "failed sections retry from their previous checkpoint"),
		)
	}
}
