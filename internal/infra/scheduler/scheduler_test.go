package scheduler

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"speaker_scheduler/internal/app"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJobs struct {
	mu           sync.Mutex
	materialized []int
	scans        int
	digests      int
	deadlines    []bool

	scanErr error
	panicOn bool
}

func (f *fakeJobs) record(ctx context.Context) {
	_, ok := ctx.Deadline()
	f.deadlines = append(f.deadlines, ok)
}

func (f *fakeJobs) EnsureUpcomingSlots(ctx context.Context, horizonWeeks int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(ctx)
	f.materialized = append(f.materialized, horizonWeeks)
	return 2, nil
}

func (f *fakeJobs) ScanReminders(ctx context.Context) (app.ScanResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(ctx)
	f.scans++
	return app.ScanResult{Scanned: 1, Sent: 1}, f.scanErr
}

func (f *fakeJobs) SendDigest(ctx context.Context) (*app.Digest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(ctx)
	f.digests++
	return &app.Digest{Groups: 3}, nil
}

func testSettings() Settings {
	return Settings{
		Location:             time.UTC,
		CronSpecMaterialize:  "0 3 * * *",
		CronSpecDigest:       "0 8 * * 1,3,5",
		ReminderPollInterval: 10 * time.Minute,
		JobTimeout:           time.Minute,
		HorizonWeeks:         12,
	}
}

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestStart_MaterializesImmediately(t *testing.T) {
	jobs := &fakeJobs{}
	s := New(jobs, jobs, jobs, testSettings(), discardLogger())

	require.NoError(t, s.Start())
	defer s.Stop()

	jobs.mu.Lock()
	defer jobs.mu.Unlock()
	assert.Equal(t, []int{12}, jobs.materialized)
	assert.Len(t, s.cronEngine.Entries(), 3)
}

func TestStart_InvalidSpec(t *testing.T) {
	jobs := &fakeJobs{}
	settings := testSettings()
	settings.CronSpecDigest = "not a cron spec"
	s := New(jobs, jobs, jobs, settings, discardLogger())

	err := s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "digest")
	assert.Empty(t, jobs.materialized)
}

func TestRunJobs_UseTimeout(t *testing.T) {
	jobs := &fakeJobs{}
	s := New(jobs, jobs, jobs, testSettings(), discardLogger())

	s.RunMaterialize()
	s.RunReminders()
	s.RunDigest()

	assert.Equal(t, 1, jobs.scans)
	assert.Equal(t, 1, jobs.digests)
	assert.Equal(t, []bool{true, true, true}, jobs.deadlines)
}

func TestRun_LogsFailureWithRunID(t *testing.T) {
	logger, hook := test.NewNullLogger()
	jobs := &fakeJobs{scanErr: errors.New("db unavailable")}
	s := New(jobs, jobs, jobs, testSettings(), logrus.NewEntry(logger))

	s.RunReminders()

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "Cron job failed", entry.Message)
	assert.Equal(t, "reminders", entry.Data["job"])
	assert.NotEmpty(t, entry.Data["run_id"])
}

func TestKVFields(t *testing.T) {
	assert.Equal(t, logrus.Fields{"entry": 3, "next": "soon"}, kvFields([]any{"entry", 3, "next", "soon", "dangling"}))
}
