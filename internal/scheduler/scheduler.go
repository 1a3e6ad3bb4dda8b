// Package scheduler periodically notifies search targets that they should run
// a delta import, one target after another.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cybertec-postgresql/delta_notifier/internal/config"
	"github.com/cybertec-postgresql/delta_notifier/internal/marker"
	"github.com/cybertec-postgresql/delta_notifier/internal/metrics"
	"github.com/cybertec-postgresql/delta_notifier/internal/notify"
)

// Pause separates notifications of consecutive targets in one round.
const Pause = 90 * time.Second

// Sender delivers one notification
type Sender interface {
	Send(ctx context.Context, url, target string) notify.Result
}

// Recorder keeps an audit trail of notifications
type Recorder interface {
	Record(ctx context.Context, result notify.Result)
}

// Options configure a Scheduler. Zero values select the defaults.
type Options struct {
	// MarkerDir is the base directory holding one directory per target
	MarkerDir string
	// Pause between targets, Pause when zero
	Pause    time.Duration
	Sender   Sender
	Recorder Recorder
	Now      func() time.Time
}

// Scheduler runs notification rounds
type Scheduler struct {
	store  *config.Store
	opts   Options
	single bool
	logger *logrus.Entry

	sleep func(ctx context.Context, d time.Duration) error
}

// New loads the configuration and decides, once, between single and
// multi-target mode. In multi-target mode the per-target markers are
// bootstrapped. It returns a *config.Error when syncing is not enabled.
func New(ctx context.Context, store *config.Store, opts Options) (*Scheduler, error) {
	if opts.Pause == 0 {
		opts.Pause = Pause
	}
	if opts.Sender == nil {
		opts.Sender = notify.New()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Scheduler{
		store:  store,
		opts:   opts,
		logger: logrus.WithField("component", "scheduler"),
		sleep:  sleep,
	}

	err := store.Reload(ctx, true)
	metrics.RecordReload(err)
	if err != nil {
		return nil, err
	}
	snapshot := store.Snapshot()
	if !snapshot.Enabled() {
		return nil, &config.Error{Reason: fmt.Sprintf("%s is %q, scheduling requires \"1\"", config.KeySyncEnabled, snapshot.SyncEnabled)}
	}

	s.single = snapshot.SingleTarget()
	if s.single {
		s.logger.Info("Single target mode")
		return s, nil
	}

	targets := snapshot.Targets()
	s.logger.WithField("targets", targets).Info("Multi target mode")
	results := marker.Bootstrap(opts.MarkerDir, targets, opts.Now())
	for _, r := range results {
		if r.Created {
			metrics.MarkersCreatedTotal.Inc()
		}
	}
	if failed := marker.LogResults(results); failed > 0 {
		s.logger.WithField("failed", failed).Warn("Some markers could not be initialized")
	}
	return s, nil
}

// SingleTarget reports the mode decided by New
func (s *Scheduler) SingleTarget() bool {
	return s.single
}

// Tick runs one notification round against the current snapshot. It only
// returns an error when ctx ends during the round.
func (s *Scheduler) Tick(ctx context.Context) error {
	snapshot := s.store.Snapshot()

	if missing := snapshot.MissingMandatory(); missing != "" {
		s.logger.WithField("missing", missing).Warn("Insufficient information provided for data import")
		s.reload(ctx)
		metrics.RecordTick("skipped")
		return nil
	}

	if s.single {
		s.notify(ctx, snapshot, "")
		metrics.RecordTick("notified")
		return nil
	}

	targets := snapshot.Targets()
	if snapshot.Degenerate() {
		s.logger.Warn("No targets scheduled for data import")
		s.reload(ctx)
		metrics.RecordTick("skipped")
		return nil
	}

	notified := 0
	for _, target := range targets {
		if target == "" {
			continue
		}
		if notified > 0 {
			if err := s.sleep(ctx, s.opts.Pause); err != nil {
				return err
			}
		}
		s.notify(ctx, snapshot, target)
		notified++
	}
	metrics.RecordTick("notified")
	return nil
}

// Run ticks every interval until ctx is done. Rounds never overlap. Errors
// and panics of a round are logged and followed by a configuration reload.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.store.Snapshot().Interval()
	metrics.IntervalSeconds.Set(interval.Seconds())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.logger.WithField("interval", interval).Info("Scheduler started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.safeTick(ctx)
			if next := s.store.Snapshot().Interval(); next != interval {
				s.logger.WithFields(logrus.Fields{"from": interval, "to": next}).Info("Interval changed")
				interval = next
				ticker.Reset(interval)
				metrics.IntervalSeconds.Set(interval.Seconds())
			}
		}
	}
}

func (s *Scheduler) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("panic", r).Error("Notification round panicked")
			metrics.RecordTick("error")
			s.reload(ctx)
		}
	}()
	if err := s.Tick(ctx); err != nil && ctx.Err() == nil {
		s.logger.WithError(err).Error("Notification round failed")
		metrics.RecordTick("error")
		s.reload(ctx)
	}
}

func (s *Scheduler) notify(ctx context.Context, snapshot *config.Snapshot, target string) {
	logger := s.logger.WithField("target", target)
	url, err := notify.BuildURL(snapshot.Server, snapshot.Port, snapshot.Webapp, target, snapshot.Params)
	if err != nil {
		logger.WithError(err).Error("Failed to assemble notification url")
		return
	}

	result := s.opts.Sender.Send(ctx, url, target)
	metrics.RecordNotification(target, result.StatusCode, result.Err, result.Duration)
	if s.opts.Recorder != nil {
		s.opts.Recorder.Record(ctx, result)
	}
	if result.Err == nil && !result.OK() {
		logger.WithField("status_code", result.StatusCode).Info("Reloading configuration after rejected notification")
		s.reload(ctx)
	}
}

func (s *Scheduler) reload(ctx context.Context) {
	err := s.store.Reload(ctx, true)
	metrics.RecordReload(err)
	if err != nil {
		s.logger.WithError(err).Error("Failed to reload configuration")
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
