package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-planner/internal/clock"
)

type armed struct {
	at      time.Time
	payload Payload
}

type fakeAlarm struct {
	mu       sync.Mutex
	exact    bool
	triggers map[TriggerID]armed
	calls    []string
	armErr   error
}

func newFakeAlarm() *fakeAlarm {
	return &fakeAlarm{exact: true, triggers: make(map[TriggerID]armed)}
}

func (f *fakeAlarm) ArmTrigger(id TriggerID, at time.Time, payload Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "arm")
	if f.armErr != nil {
		return f.armErr
	}
	f.triggers[id] = armed{at: at, payload: payload}
	return nil
}

func (f *fakeAlarm) CancelTrigger(id TriggerID, _ Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "cancel")
	delete(f.triggers, id)
	return nil
}

func (f *fakeAlarm) CanScheduleExactTriggers() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exact
}

func (f *fakeAlarm) snapshot() map[TriggerID]armed {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[TriggerID]armed, len(f.triggers))
	for k, v := range f.triggers {
		out[k] = v
	}
	return out
}

var base = time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)

func TestScheduleArmsTriggerKeyedByTask(t *testing.T) {
	alarm := newFakeAlarm()
	s := NewScheduler(alarm, clock.NewManual(base), nil)

	start := base.Add(time.Hour)
	require.NoError(t, s.Schedule(context.Background(), 42, "Write report", start))

	got := alarm.snapshot()
	require.Contains(t, got, KeyFor(42))
	assert.True(t, got[KeyFor(42)].at.Equal(start))
	assert.Equal(t, Payload{TaskID: 42, Title: "Write report"}, got[KeyFor(42)].payload)
}

func TestKeyForIsStable(t *testing.T) {
	assert.Equal(t, KeyFor(42), KeyFor(42))
	assert.NotEqual(t, KeyFor(42), KeyFor(43))
}

func TestScheduleWithoutPermission(t *testing.T) {
	alarm := newFakeAlarm()
	alarm.exact = false
	s := NewScheduler(alarm, clock.NewManual(base), nil)

	err := s.Schedule(context.Background(), 1, "t", base.Add(time.Hour))
	assert.ErrorIs(t, err, ErrPermissionNeeded)
	assert.Empty(t, alarm.snapshot())
}

func TestScheduleSkipsPastStart(t *testing.T) {
	alarm := newFakeAlarm()
	s := NewScheduler(alarm, clock.NewManual(base), nil)

	assert.NoError(t, s.Schedule(context.Background(), 1, "t", base))
	assert.NoError(t, s.Schedule(context.Background(), 1, "t", base.Add(-time.Minute)))
	assert.Empty(t, alarm.snapshot())
}

func TestScheduleWrapsAlarmError(t *testing.T) {
	alarm := newFakeAlarm()
	alarm.armErr = errors.New("backend down")
	s := NewScheduler(alarm, clock.NewManual(base), nil)

	err := s.Schedule(context.Background(), 5, "t", base.Add(time.Hour))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend down")
	assert.NotErrorIs(t, err, ErrPermissionNeeded)
}

func TestCancelIsIdempotent(t *testing.T) {
	alarm := newFakeAlarm()
	s := NewScheduler(alarm, clock.NewManual(base), nil)
	ctx := context.Background()

	require.NoError(t, s.Schedule(ctx, 9, "t", base.Add(time.Hour)))
	require.NoError(t, s.Schedule(ctx, 10, "other", base.Add(2*time.Hour)))

	require.NoError(t, s.Cancel(ctx, 9, "t"))
	once := alarm.snapshot()
	require.NoError(t, s.Cancel(ctx, 9, "t"))
	assert.Equal(t, once, alarm.snapshot())
	assert.NotContains(t, once, KeyFor(9))
	assert.Contains(t, once, KeyFor(10))

	assert.NoError(t, s.Cancel(ctx, 999, "never armed"))
}

func TestRescheduleCancelsFirst(t *testing.T) {
	alarm := newFakeAlarm()
	s := NewScheduler(alarm, clock.NewManual(base), nil)
	ctx := context.Background()

	require.NoError(t, s.Schedule(ctx, 3, "t", base.Add(time.Hour)))
	require.NoError(t, s.Reschedule(ctx, 3, "t2", base.Add(3*time.Hour)))

	assert.Equal(t, []string{"arm", "cancel", "arm"}, alarm.calls)
	got := alarm.snapshot()
	require.Len(t, got, 1)
	assert.True(t, got[KeyFor(3)].at.Equal(base.Add(3*time.Hour)))
	assert.Equal(t, "t2", got[KeyFor(3)].payload.Title)
}

type countingObserver struct {
	armed, cancelled int
	skipped          []string
}

func (c *countingObserver) ReminderArmed()            { c.armed++ }
func (c *countingObserver) ReminderCancelled()        { c.cancelled++ }
func (c *countingObserver) ReminderSkipped(r string) { c.skipped = append(c.skipped, r) }

func TestObserver(t *testing.T) {
	alarm := newFakeAlarm()
	obs := &countingObserver{}
	s := NewScheduler(alarm, clock.NewManual(base), nil).WithObserver(obs)
	ctx := context.Background()

	require.NoError(t, s.Schedule(ctx, 1, "t", base.Add(time.Hour)))
	require.NoError(t, s.Schedule(ctx, 2, "t", base.Add(-time.Hour)))
	require.NoError(t, s.Cancel(ctx, 1, "t"))

	assert.Equal(t, 1, obs.armed)
	assert.Equal(t, 1, obs.cancelled)
	assert.Equal(t, []string{"past"}, obs.skipped)
}

func TestCancelledContext(t *testing.T) {
	s := NewScheduler(newFakeAlarm(), clock.NewManual(base), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Schedule(ctx, 1, "t", base.Add(time.Hour)), context.Canceled)
	assert.ErrorIs(t, s.Cancel(ctx, 1, "t"), context.Canceled)
}
