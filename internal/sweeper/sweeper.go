// Package sweeper runs the reservation expiry pass on a cron schedule.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/effectivemobile/parking/internal/parking"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultSchedule runs the sweep every five minutes.
const DefaultSchedule = "*/5 * * * *"

type Expirer interface {
	ExpireStale(ctx context.Context, now time.Time) (parking.SweepReport, error)
}

type Sweeper struct {
	expirer Expirer
	log     *logrus.Logger
	cron    *cron.Cron
	timeout time.Duration
	now     func() time.Time
}

func New(expirer Expirer, log *logrus.Logger, timeout time.Duration) *Sweeper {
	if timeout == 0 {
		timeout = time.Minute
	}
	return &Sweeper{
		expirer: expirer,
		log:     log,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		timeout: timeout,
		now:     time.Now,
	}
}

// Schedule registers the sweep under a standard five-field cron spec.
func (s *Sweeper) Schedule(spec string) error {
	if spec == "" {
		spec = DefaultSchedule
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", spec, err)
	}
	s.log.WithField("schedule", spec).Info("expiry sweep scheduled")
	return nil
}

func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.RunOnce(ctx); err != nil {
		s.log.WithError(err).Warn("expiry sweep failed")
	}
}

func (s *Sweeper) RunOnce(ctx context.Context) (parking.SweepReport, error) {
	start := s.now()
	rep, err := s.expirer.ExpireStale(ctx, start)
	s.log.WithFields(logrus.Fields{
		"bookings":      rep.Bookings,
		"subscriptions": rep.Subscriptions,
		"dur_ms":        time.Since(start).Milliseconds(),
	}).Debug("expiry sweep ran")
	return rep, err
}
