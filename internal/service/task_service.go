package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"task-planner/internal/clock"
	"task-planner/internal/model"
	"task-planner/internal/reminder"
	"task-planner/internal/repository"
	"task-planner/internal/schedule"
)

// TaskInput represents data required to create or edit a task.
type TaskInput struct {
	Title       string
	Description string
	Date        model.Date
	StartHour   string
	StartMinute string
	EndHour     string
	EndMinute   string
	Priority    model.Priority
	Icon        model.Icon
}

func (in TaskInput) window(date model.Date) schedule.WindowInput {
	return schedule.WindowInput{
		Date:        date,
		StartHour:   in.StartHour,
		StartMinute: in.StartMinute,
		EndHour:     in.EndHour,
		EndMinute:   in.EndMinute,
	}
}

// ReminderNotice is returned together with a saved task whose reminder
// could not be armed. The save itself succeeded.
type ReminderNotice struct {
	TaskID uint
	Err    error
}

func (n *ReminderNotice) Error() string {
	return fmt.Sprintf("task %d saved without reminder: %v", n.TaskID, n.Err)
}

func (n *ReminderNotice) Unwrap() error { return n.Err }

// PermissionNeeded reports whether the reminder was skipped for lack of permission.
func (n *ReminderNotice) PermissionNeeded() bool {
	return errors.Is(n.Err, reminder.ErrPermissionNeeded)
}

// TaskService wraps task-related business logic.
type TaskService struct {
	taskRepo  *repository.TaskRepository
	reminders *reminder.Scheduler
	clock     clock.Clock
	logger    *zap.Logger
}

func NewTaskService(taskRepo *repository.TaskRepository, reminders *reminder.Scheduler, clk clock.Clock, logger *zap.Logger) *TaskService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskService{taskRepo: taskRepo, reminders: reminders, clock: clk, logger: logger.Named("tasks")}
}

// Now exposes the service clock so callers share one notion of time.
func (s *TaskService) Now() time.Time {
	return s.clock.Now()
}

// CreateTask validates input, stores the task and arms its start reminder.
// A *ReminderNotice error comes with a non-nil task.
func (s *TaskService) CreateTask(ctx context.Context, user *model.User, input TaskInput) (*model.Task, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, schedule.EmptyTitle
	}

	now := s.clock.Now()
	date := input.Date
	if date.IsZero() {
		date = model.DateOf(now)
	}
	w, err := schedule.ValidateWindow(input.window(date), now)
	if err != nil {
		return nil, err
	}

	task := model.Task{
		UserID:      user.ID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Date:        date,
		StartTime:   w.StartMillis(),
		EndTime:     w.EndMillis(),
		Priority:    priorityOrNone(input.Priority),
		Icon:        input.Icon,
	}
	schedule.DeriveStatus(task, now).Apply(&task)

	if err := s.taskRepo.Create(ctx, &task); err != nil {
		return nil, err
	}
	s.logger.Info("task created",
		zap.Uint("task_id", task.ID), zap.Uint("user_id", user.ID), zap.Stringer("date", task.Date))

	if err := s.reminders.Schedule(ctx, task.ID, task.Title, w.Start); err != nil {
		s.logger.Warn("reminder not armed", zap.Uint("task_id", task.ID), zap.Error(err))
		return &task, &ReminderNotice{TaskID: task.ID, Err: err}
	}
	return &task, nil
}

// EditTask replaces title, description, date and time window of a task.
// A task that no longer exists yields (nil, nil). The reminder is cancelled
// and re-armed when the start time or the title changed.
func (s *TaskService) EditTask(ctx context.Context, user *model.User, taskID uint, input TaskInput) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, user.ID, taskID)
	if errors.Is(err, repository.ErrTaskNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = task.Title
	}
	date := input.Date
	if date.IsZero() {
		date = task.Date
	}

	now := s.clock.Now()
	w, err := s.validateEdit(input.window(date), task, now)
	if err != nil {
		return nil, err
	}

	startChanged := w.StartMillis() != task.StartTime
	titleChanged := title != task.Title

	task.Title = title
	if desc := strings.TrimSpace(input.Description); desc != "" {
		task.Description = desc
	}
	task.Date = date
	task.StartTime = w.StartMillis()
	task.EndTime = w.EndMillis()
	if input.Priority != "" {
		task.Priority = input.Priority
	}
	schedule.DeriveStatus(*task, now).Apply(task)

	if err := s.taskRepo.Update(ctx, task); err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			return nil, nil
		}
		return nil, err
	}
	s.logger.Info("task edited", zap.Uint("task_id", task.ID), zap.Bool("start_changed", startChanged))

	if startChanged || titleChanged {
		if err := s.reminders.Reschedule(ctx, task.ID, task.Title, w.Start); err != nil {
			s.logger.Warn("reminder not re-armed", zap.Uint("task_id", task.ID), zap.Error(err))
			return task, &ReminderNotice{TaskID: task.ID, Err: err}
		}
	}
	return task, nil
}

// validateEdit accepts a start that already passed only when it is the
// start the task already has. Other rules still apply to such an edit.
func (s *TaskService) validateEdit(in schedule.WindowInput, task *model.Task, now time.Time) (schedule.Window, error) {
	w, err := schedule.ValidateWindow(in, now)
	if !errors.Is(err, schedule.StartTimeInPast) {
		return w, err
	}
	if !sameStart(in, task, now.Location()) {
		return schedule.Window{}, err
	}
	// Validated against the kept start, the past-start rule cannot fire again.
	return schedule.ValidateWindow(in, task.Start(now.Location()))
}

// sameStart reports whether in resolves to the task's current start. Hour and
// minute are already known to parse.
func sameStart(in schedule.WindowInput, task *model.Task, loc *time.Location) bool {
	hour, _ := strconv.Atoi(in.StartHour)
	minute, _ := strconv.Atoi(in.StartMinute)
	return in.Date.At(hour, minute, loc).UnixMilli() == task.StartTime
}

// SetPriority changes only the cosmetic priority; a missing task yields (nil, nil).
func (s *TaskService) SetPriority(ctx context.Context, user *model.User, taskID uint, priority model.Priority) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, user.ID, taskID)
	if errors.Is(err, repository.ErrTaskNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	task.Priority = priorityOrNone(priority)
	if err := s.taskRepo.Update(ctx, task); err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return task, nil
}

// DeleteTask removes a task and cancels its reminder. Deleting a task that
// does not exist is a no-op.
func (s *TaskService) DeleteTask(ctx context.Context, user *model.User, taskID uint) error {
	task, err := s.taskRepo.FindByID(ctx, user.ID, taskID)
	if errors.Is(err, repository.ErrTaskNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.taskRepo.Delete(ctx, user.ID, taskID); err != nil && !errors.Is(err, repository.ErrTaskNotFound) {
		return err
	}
	s.logger.Info("task deleted", zap.Uint("task_id", taskID), zap.Uint("user_id", user.ID))

	if err := s.reminders.Cancel(ctx, task.ID, task.Title); err != nil {
		return fmt.Errorf("task deleted, reminder left armed: %w", err)
	}
	return nil
}

// GetTask returns repository.ErrTaskNotFound for unknown ids.
func (s *TaskService) GetTask(ctx context.Context, user *model.User, taskID uint) (*model.Task, error) {
	return s.taskRepo.FindByID(ctx, user.ID, taskID)
}

// ListForDate returns the tasks of a day with flags derived at the current time.
func (s *TaskService) ListForDate(ctx context.Context, user *model.User, date model.Date) ([]model.Task, error) {
	tasks, err := s.taskRepo.ListForDate(ctx, user.ID, date)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	for i := range tasks {
		schedule.DeriveStatus(tasks[i], now).Apply(&tasks[i])
	}
	return tasks, nil
}

// ReminderTask resolves the task behind a fired reminder. It returns
// repository.ErrTaskNotFound when the task is gone.
func (s *TaskService) ReminderTask(ctx context.Context, payload reminder.Payload) (*model.Task, error) {
	return s.taskRepo.GetByID(ctx, payload.TaskID)
}

// RearmPending arms reminders for every task that starts after now. Cron
// entries live in memory, so this runs once at startup.
func (s *TaskService) RearmPending(ctx context.Context) (int, error) {
	now := s.clock.Now()
	tasks, err := s.taskRepo.ListStartingAfter(ctx, now)
	if err != nil {
		return 0, err
	}
	armed := 0
	for _, task := range tasks {
		if err := s.reminders.Schedule(ctx, task.ID, task.Title, task.Start(now.Location())); err != nil {
			if errors.Is(err, reminder.ErrPermissionNeeded) {
				return armed, err
			}
			s.logger.Warn("rearm reminder", zap.Uint("task_id", task.ID), zap.Error(err))
			continue
		}
		armed++
	}
	return armed, nil
}

func priorityOrNone(p model.Priority) model.Priority {
	if p == "" {
		return model.PriorityNone
	}
	return p
}
