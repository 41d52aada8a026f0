// Package janitor runs the message retention sweep. Retention is a
// cron-style schedule from config; when it fires, chat messages older
// than the configured TTL are pruned.
package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/teamkard/teamkard/pkg/logger"
	"github.com/teamkard/teamkard/pkg/messenger"
)

// Janitor sweeps expired messages on a cron schedule.
type Janitor struct {
	chats    *messenger.Store
	schedule string
	ttl      time.Duration
	gron     *gronx.Gronx
}

// New validates the cron expression and builds the sweeper. ttlDays <= 0
// is rejected so a zero-valued config cannot silently delete everything.
func New(chats *messenger.Store, schedule string, ttlDays int) (*Janitor, error) {
	g := gronx.New()
	if !g.IsValid(schedule) {
		return nil, fmt.Errorf("janitor: invalid cron expression %q", schedule)
	}
	if ttlDays <= 0 {
		return nil, fmt.Errorf("janitor: message TTL must be positive, got %d days", ttlDays)
	}
	return &Janitor{
		chats:    chats,
		schedule: schedule,
		ttl:      time.Duration(ttlDays) * 24 * time.Hour,
		gron:     g,
	}, nil
}

// Run ticks once a minute and sweeps whenever the schedule is due.
// Blocks until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	logger.InfoCF("janitor", "Retention sweeper started", map[string]interface{}{
		"schedule": j.schedule,
		"ttl_days": int(j.ttl.Hours() / 24),
	})

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.InfoC("janitor", "Retention sweeper stopped")
			return
		case now := <-ticker.C:
			due, err := j.gron.IsDue(j.schedule, now)
			if err != nil {
				logger.ErrorCF("janitor", "Schedule check failed", map[string]interface{}{
					"error": err.Error(),
				})
				continue
			}
			if !due {
				continue
			}
			j.sweep(now)
		}
	}
}

func (j *Janitor) sweep(now time.Time) {
	cutoff := now.Add(-j.ttl)
	pruned, err := j.chats.PruneBefore(cutoff)
	if err != nil {
		logger.ErrorCF("janitor", "Message prune failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	logger.InfoCF("janitor", "Message prune complete", map[string]interface{}{
		"pruned": pruned,
		"cutoff": cutoff.UTC().Format(time.RFC3339),
	})
}
