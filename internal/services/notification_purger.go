package services

import (
	"context"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/sirupsen/logrus"
)

type expiredPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// NotificationPurger removes expired notifications on a cron schedule.
type NotificationPurger struct {
	target  expiredPurger
	cron    string
	now     func() time.Time
	mu      sync.Mutex
	running bool
}

func NewNotificationPurger(target expiredPurger, cron string) *NotificationPurger {
	return &NotificationPurger{
		target: target,
		cron:   cron,
		now:    time.Now,
	}
}

// Start runs the schedule loop until ctx is cancelled. An empty cron
// expression disables the purge.
func (p *NotificationPurger) Start(ctx context.Context) {
	if p.cron == "" {
		logrus.Info("notification purge disabled")
		return
	}
	logrus.WithField("cron", p.cron).Info("notification purge enabled")
	go p.scheduleLoop(ctx)
}

func (p *NotificationPurger) scheduleLoop(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(p.cron, p.now(), false)
		if err != nil {
			logrus.WithError(err).WithField("cron", p.cron).Error("notification purge next tick failed")
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait < time.Second {
			wait = time.Second
		}

		select {
		case <-time.After(wait):
			p.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce purges expired notifications unless a purge is already in flight.
// It reports whether a purge actually ran.
func (p *NotificationPurger) RunOnce(ctx context.Context) bool {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return false
	}
	p.running = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	purged, err := p.target.PurgeExpired(runCtx)
	if err != nil {
		logrus.WithError(err).Error("notification purge failed")
		return true
	}
	if purged > 0 {
		logrus.WithField("purged", purged).Info("expired notifications purged")
	}
	return true
}
