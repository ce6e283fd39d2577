// Package reminder decides when a task's start notification fires and keeps
// arm/cancel calls against the alarm backend consistent.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	"go.uber.org/zap"

	"task-planner/internal/clock"
)

// ErrPermissionNeeded means the alarm backend cannot arm exact triggers.
// The task is still saved; only its reminder is missing.
var ErrPermissionNeeded = errors.New("reminder: permission to schedule exact triggers is missing")

// TriggerID identifies one armed trigger.
type TriggerID uint32

// KeyFor derives the trigger id of a task. The same task id always maps to
// the same trigger, so a cancel finds what a schedule armed.
func KeyFor(taskID uint) TriggerID {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strconv.FormatUint(uint64(taskID), 10)))
	return TriggerID(h.Sum32())
}

// Payload travels with a trigger and is handed back when it fires.
type Payload struct {
	TaskID uint
	Title  string
}

// Alarm is the backend that actually fires triggers.
type Alarm interface {
	// ArmTrigger arms a one-shot trigger at at, replacing the trigger armed
	// earlier for the same task.
	ArmTrigger(id TriggerID, at time.Time, payload Payload) error
	// CancelTrigger removes the trigger armed with a matching payload task id;
	// unknown triggers are ignored.
	CancelTrigger(id TriggerID, payload Payload) error
	CanScheduleExactTriggers() bool
}

// Observer is told about every successful arm and cancel. Optional.
type Observer interface {
	ReminderArmed()
	ReminderCancelled()
	ReminderSkipped(reason string)
}

type Scheduler struct {
	alarm    Alarm
	clock    clock.Clock
	logger   *zap.Logger
	observer Observer
}

func NewScheduler(alarm Alarm, clk clock.Clock, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{alarm: alarm, clock: clk, logger: logger.Named("reminder")}
}

// WithObserver attaches o and returns s.
func (s *Scheduler) WithObserver(o Observer) *Scheduler {
	s.observer = o
	return s
}

// Schedule arms the start reminder of a task. A start that is not in the
// future arms nothing.
func (s *Scheduler) Schedule(ctx context.Context, taskID uint, title string, start time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.alarm.CanScheduleExactTriggers() {
		s.logger.Warn("exact trigger permission missing", zap.Uint("task_id", taskID))
		s.skipped("permission")
		return ErrPermissionNeeded
	}
	if !start.After(s.clock.Now()) {
		s.logger.Debug("start already passed, reminder not armed",
			zap.Uint("task_id", taskID), zap.Time("start", start))
		s.skipped("past")
		return nil
	}

	id := KeyFor(taskID)
	if err := s.alarm.ArmTrigger(id, start, Payload{TaskID: taskID, Title: title}); err != nil {
		return fmt.Errorf("arm trigger for task %d: %w", taskID, err)
	}
	s.logger.Info("reminder armed",
		zap.Uint("task_id", taskID), zap.Uint32("trigger", uint32(id)), zap.Time("at", start))
	if s.observer != nil {
		s.observer.ReminderArmed()
	}
	return nil
}

// Cancel disarms the reminder of a task. Cancelling something that was
// never armed, or already fired, is a no-op.
func (s *Scheduler) Cancel(ctx context.Context, taskID uint, title string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id := KeyFor(taskID)
	if err := s.alarm.CancelTrigger(id, Payload{TaskID: taskID, Title: title}); err != nil {
		return fmt.Errorf("cancel trigger for task %d: %w", taskID, err)
	}
	s.logger.Debug("reminder cancelled",
		zap.Uint("task_id", taskID), zap.String("title", title), zap.Uint32("trigger", uint32(id)))
	if s.observer != nil {
		s.observer.ReminderCancelled()
	}
	return nil
}

// Reschedule cancels the previous trigger before arming the new one, so a
// task never holds two triggers.
func (s *Scheduler) Reschedule(ctx context.Context, taskID uint, title string, start time.Time) error {
	if err := s.Cancel(ctx, taskID, title); err != nil {
		return err
	}
	return s.Schedule(ctx, taskID, title, start)
}

func (s *Scheduler) skipped(reason string) {
	if s.observer != nil {
		s.observer.ReminderSkipped(reason)
	}
}
