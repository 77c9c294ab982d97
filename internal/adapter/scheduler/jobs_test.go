package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retrycache/internal/snapshot"
)

type fakeSnapshots struct {
	rebuilds   int64
	heartbeats int64
	err        error
}

func (f *fakeSnapshots) Snapshot(_ context.Context, force bool) (snapshot.Snapshot, error) {
	if !force {
		return snapshot.Snapshot{}, errors.New("refresh must force a rebuild")
	}
	atomic.AddInt64(&f.rebuilds, 1)
	return snapshot.Snapshot{GeneratedAt: time.Now()}, f.err
}

func (f *fakeSnapshots) Heartbeat(context.Context) error {
	atomic.AddInt64(&f.heartbeats, 1)
	return nil
}

type fakePurger struct{ calls int64 }

func (f *fakePurger) Purge() int { atomic.AddInt64(&f.calls, 1); return 2 }

type fakeReloader struct{ calls int64 }

func (f *fakeReloader) Reset() { atomic.AddInt64(&f.calls, 1) }

func TestRegister_AllJobs(t *testing.T) {
	s := New(Config{JobHooks: MetricsHooks()})
	defer s.Stop()

	snaps := &fakeSnapshots{}
	purger := &fakePurger{}
	reloader := &fakeReloader{}

	err := Register(s, Schedules{
		Snapshot:  "@every 1s",
		Heartbeat: "@every 1s",
		Purge:     "@every 1s",
		Reload:    "@every 1s",
	}, Jobs{Snapshots: snaps, Purger: purger, Reloader: reloader})
	require.NoError(t, err)
	assert.Equal(t, []string{JobCachePurge, JobHeartbeat, JobSettingsReload, JobSnapshotRefresh}, s.Jobs())

	s.Start()
	waitForAtLeast(t, &snaps.rebuilds, 1, cronWait)
	waitForAtLeast(t, &snaps.heartbeats, 1, cronWait)
	waitForAtLeast(t, &purger.calls, 1, cronWait)
	waitForAtLeast(t, &reloader.calls, 1, cronWait)
}

func TestRegister_SkipsDisabledJobs(t *testing.T) {
	s := New(Config{})
	defer s.Stop()

	err := Register(s, Schedules{
		Snapshot:  "@every 1s",
		Heartbeat: "",
		Purge:     "@every 1s",
		Reload:    "@every 1s",
	}, Jobs{Snapshots: &fakeSnapshots{}})
	require.NoError(t, err)
	assert.Equal(t, []string{JobSnapshotRefresh}, s.Jobs(), "пустое расписание и nil-зависимости отключают задачи")
}

func TestRegister_BadSchedule(t *testing.T) {
	s := New(Config{})
	defer s.Stop()

	err := Register(s, Schedules{Reload: "every minute"}, Jobs{Reloader: &fakeReloader{}})
	assert.Error(t, err)
}
