package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"task-planner/internal/clock"
	"task-planner/internal/model"
	"task-planner/internal/repository"
	"task-planner/internal/schedule"
)

// Transition records a task whose derived phase changed during a tick.
type Transition struct {
	TaskID uint
	Title  string
	From   schedule.Phase
	To     schedule.Phase
}

// Snapshot is the view of one day after a tick.
type Snapshot struct {
	UserID      uint
	Date        model.Date
	At          time.Time
	Tasks       []model.Task
	Progress    map[uint]schedule.ProgressInfo
	Transitions []Transition
}

// SnapshotSink receives snapshots from the tracker goroutine. It must not
// call Watch or Stop on the same tracker.
type SnapshotSink func(Snapshot)

// TrackerObserver is told about ticks and phase changes.
type TrackerObserver interface {
	TrackerTick(elapsed time.Duration)
	StatusTransition(to schedule.Phase)
}

type nopTrackerObserver struct{}

func (nopTrackerObserver) TrackerTick(time.Duration)       {}
func (nopTrackerObserver) StatusTransition(schedule.Phase) {}

// Tracker runs the periodic status and progress loop for one viewed day.
// At most one loop runs per tracker.
type Tracker struct {
	repo     *repository.TaskRepository
	clock    clock.Clock
	interval time.Duration
	logger   *zap.Logger
	observer TrackerObserver

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	date   model.Date
}

func NewTracker(repo *repository.TaskRepository, clk clock.Clock, interval time.Duration, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Tracker{
		repo:     repo,
		clock:    clk,
		interval: interval,
		logger:   logger.Named("tracker"),
		observer: nopTrackerObserver{},
	}
}

func (t *Tracker) WithObserver(o TrackerObserver) *Tracker {
	if o != nil {
		t.observer = o
	}
	return t
}

// Watch stops the running loop, waits for it to exit and starts a new one
// for date. The loop ends on Stop or when ctx is done.
func (t *Tracker) Watch(ctx context.Context, userID uint, date model.Date, sink SnapshotSink) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()

	loopCtx, cancel := context.WithCancel(ctx)
	updates, err := t.repo.WatchDate(loopCtx, userID, date)
	if err != nil {
		cancel()
		return err
	}

	done := make(chan struct{})
	t.cancel, t.done, t.date = cancel, done, date

	log := t.logger.With(
		zap.String("session", uuid.NewString()),
		zap.Uint("user_id", userID),
		zap.Stringer("date", date))
	go t.run(loopCtx, userID, date, updates, sink, log, done)
	log.Debug("tracker started")
	return nil
}

// Stop ends the loop and returns after it exited.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// Running reports whether a loop is active and the day it watches.
func (t *Tracker) Running() (model.Date, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done == nil {
		return model.Date{}, false
	}
	select {
	case <-t.done:
		return model.Date{}, false
	default:
		return t.date, true
	}
}

func (t *Tracker) stopLocked() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	<-t.done
	t.cancel, t.done = nil, nil
}

func (t *Tracker) run(ctx context.Context, userID uint, date model.Date, updates <-chan []model.Task, sink SnapshotSink, log *zap.Logger, done chan struct{}) {
	defer close(done)
	defer log.Debug("tracker stopped")

	var tasks []model.Task
	select {
	case list, ok := <-updates:
		if !ok {
			return
		}
		tasks = list
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	tasks = t.tick(ctx, userID, date, tasks, sink, log)
	for {
		select {
		case <-ctx.Done():
			return
		case list, ok := <-updates:
			if !ok {
				return
			}
			tasks = t.tick(ctx, userID, date, list, sink, log)
		case <-ticker.C:
			tasks = t.tick(ctx, userID, date, tasks, sink, log)
		}
	}
}

// tick derives status, writes changed flags, then computes progress.
func (t *Tracker) tick(ctx context.Context, userID uint, date model.Date, tasks []model.Task, sink SnapshotSink, log *zap.Logger) []model.Task {
	started := time.Now()
	now := t.clock.Now()

	kept := tasks[:0]
	var transitions []Transition
	for _, task := range tasks {
		before := schedule.StatusOf(task)
		if schedule.DeriveStatus(task, now).Apply(&task) {
			if err := t.repo.UpdateStatus(ctx, &task); err != nil {
				if errors.Is(err, repository.ErrTaskNotFound) {
					log.Debug("task vanished", zap.Uint("task_id", task.ID))
					continue
				}
				if ctx.Err() != nil {
					return tasks
				}
				log.Warn("persist task status", zap.Uint("task_id", task.ID), zap.Error(err))
				before.Apply(&task)
			} else {
				to := schedule.StatusOf(task).Phase()
				transitions = append(transitions, Transition{
					TaskID: task.ID,
					Title:  task.Title,
					From:   before.Phase(),
					To:     to,
				})
				t.observer.StatusTransition(to)
			}
		}
		kept = append(kept, task)
	}

	progress := make(map[uint]schedule.ProgressInfo, len(kept))
	for _, task := range kept {
		progress[task.ID] = schedule.ComputeProgress(task, now)
	}

	if ctx.Err() != nil {
		return kept
	}
	if sink != nil {
		sink(Snapshot{
			UserID:      userID,
			Date:        date,
			At:          now,
			Tasks:       append([]model.Task(nil), kept...),
			Progress:    progress,
			Transitions: transitions,
		})
	}
	t.observer.TrackerTick(time.Since(started))
	return kept
}
