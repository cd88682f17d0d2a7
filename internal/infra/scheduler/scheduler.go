package scheduler

import (
	"context"
	"fmt"
	"time"

	"speaker_scheduler/internal/app"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type SlotMaterializer interface {
	EnsureUpcomingSlots(ctx context.Context, horizonWeeks int) (int, error)
}

type ReminderScanner interface {
	ScanReminders(ctx context.Context) (app.ScanResult, error)
}

type DigestSender interface {
	SendDigest(ctx context.Context) (*app.Digest, error)
}

// Settings holds the schedules. Specs are standard five-field cron expressions
// evaluated in Location.
type Settings struct {
	Location             *time.Location
	CronSpecMaterialize  string // e.g. "0 3 * * *"
	CronSpecDigest       string // e.g. "0 8 * * 1,3,5"
	ReminderPollInterval time.Duration
	JobTimeout           time.Duration
	HorizonWeeks         int
}

type Scheduler struct {
	cronEngine   *cron.Cron
	materializer SlotMaterializer
	reminders    ReminderScanner
	digest       DigestSender
	settings     Settings
	logger       *logrus.Entry
}

func New(
	m SlotMaterializer,
	r ReminderScanner,
	d DigestSender,
	settings Settings,
	logger *logrus.Entry,
) *Scheduler {
	loc := settings.Location
	if loc == nil {
		loc = time.Local
	}
	cl := cronLogger{logger: logger}
	return &Scheduler{
		// A panicking job is logged and the engine keeps going; a job still
		// running when its next tick arrives is skipped rather than stacked.
		cronEngine: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		materializer: m,
		reminders:    r,
		digest:       d,
		settings:     settings,
		logger:       logger,
	}
}

// Start registers the jobs, runs one materialization immediately and starts
// the engine. It returns an error if any schedule is invalid.
func (s *Scheduler) Start() error {
	s.logger.Info("Starting scheduler...")

	jobs := []struct {
		name string
		spec string
		fn   func()
	}{
		{"materialize", s.settings.CronSpecMaterialize, s.RunMaterialize},
		{"reminders", "@every " + s.settings.ReminderPollInterval.String(), s.RunReminders},
		{"digest", s.settings.CronSpecDigest, s.RunDigest},
	}
	for _, j := range jobs {
		if _, err := s.cronEngine.AddFunc(j.spec, j.fn); err != nil {
			return fmt.Errorf("add %s job (%q): %w", j.name, j.spec, err)
		}
		s.logger.WithFields(logrus.Fields{"job": j.name, "spec": j.spec}).Info("Job registered")
	}

	s.RunMaterialize()

	s.cronEngine.Start()
	s.logger.Info("Scheduler started with jobs.")
	return nil
}

func (s *Scheduler) RunMaterialize() {
	s.run("materialize", func(ctx context.Context, log *logrus.Entry) error {
		inserted, err := s.materializer.EnsureUpcomingSlots(ctx, s.settings.HorizonWeeks)
		if err != nil {
			return err
		}
		log.WithField("inserted", inserted).Debug("Materialization complete")
		return nil
	})
}

func (s *Scheduler) RunReminders() {
	s.run("reminders", func(ctx context.Context, log *logrus.Entry) error {
		res, err := s.reminders.ScanReminders(ctx)
		if err != nil {
			return err
		}
		log.WithFields(logrus.Fields{
			"scanned": res.Scanned,
			"sent":    res.Sent,
			"failed":  res.Failed,
		}).Debug("Reminder scan complete")
		return nil
	})
}

func (s *Scheduler) RunDigest() {
	s.run("digest", func(ctx context.Context, log *logrus.Entry) error {
		d, err := s.digest.SendDigest(ctx)
		if err != nil {
			return err
		}
		log.WithField("groups", d.Groups).Debug("Digest complete")
		return nil
	})
}

// run executes one job invocation under JobTimeout. Errors are logged; they
// never stop the engine.
func (s *Scheduler) run(name string, job func(ctx context.Context, log *logrus.Entry) error) {
	log := s.logger.WithFields(logrus.Fields{
		"job":    name,
		"run_id": uuid.NewString(),
	})
	log.Info("Cron job triggered")

	ctx := context.Background()
	if s.settings.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.settings.JobTimeout)
		defer cancel()
	}

	started := time.Now()
	if err := job(ctx, log); err != nil {
		log.WithError(err).WithField("took", time.Since(started).String()).Error("Cron job failed")
		return
	}
	log.WithField("took", time.Since(started).String()).Info("Cron job finished")
}

// Stop stops scheduling new runs and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler...")
	ctx := s.cronEngine.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler gracefully stopped.")
}

// cronLogger adapts logrus to cron.Logger.
type cronLogger struct {
	logger *logrus.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.WithFields(kvFields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.WithError(err).WithFields(kvFields(keysAndValues)).Error("cron: " + msg)
}

func kvFields(kv []any) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
