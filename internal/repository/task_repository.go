package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"task-planner/internal/model"
)

// ErrTaskNotFound is returned when a task id does not exist (any more).
var ErrTaskNotFound = errors.New("task not found")

// TaskRepository handles CRUD for tasks and notifies watchers on writes.
type TaskRepository struct {
	db   *gorm.DB
	feed *changeFeed
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db, feed: newChangeFeed()}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	r.feed.publish(task.UserID)
	return nil
}

// Update rewrites every editable column of an existing task.
func (r *TaskRepository) Update(ctx context.Context, task *model.Task) error {
	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND user_id = ?", task.ID, task.UserID).
		Updates(map[string]interface{}{
			"title":       task.Title,
			"description": task.Description,
			"date":        task.Date,
			"start_time":  task.StartTime,
			"end_time":    task.EndTime,
			"is_done":     task.IsDone,
			"is_started":  task.IsStarted,
			"priority":    task.Priority,
			"icon":        task.Icon,
		})
	if res.Error != nil {
		return fmt.Errorf("update task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	r.feed.publish(task.UserID)
	return nil
}

// UpdateStatus stores only the derived flags of task.
func (r *TaskRepository) UpdateStatus(ctx context.Context, task *model.Task) error {
	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ?", task.ID).
		Updates(map[string]interface{}{
			"is_done":    task.IsDone,
			"is_started": task.IsStarted,
		})
	if res.Error != nil {
		return fmt.Errorf("update task status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	r.feed.publish(task.UserID)
	return nil
}

// SyncStatuses brings the stored flags of all tasks of a user in line with
// now and returns how many rows changed.
func (r *TaskRepository) SyncStatuses(ctx context.Context, userID uint, now time.Time) (int64, error) {
	ms := now.UnixMilli()
	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("user_id = ?", userID).
		Where("(is_done <> (end_time <= ?) OR is_started <> (start_time <= ? AND end_time > ?))", ms, ms, ms).
		Updates(map[string]interface{}{
			"is_done":    gorm.Expr("end_time <= ?", ms),
			"is_started": gorm.Expr("start_time <= ? AND end_time > ?", ms, ms),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("sync task statuses: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		r.feed.publish(userID)
	}
	return res.RowsAffected, nil
}

func (r *TaskRepository) FindByID(ctx context.Context, userID, taskID uint) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, taskID).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find task: %w", err)
	}
	return &task, nil
}

// GetByID looks a task up without an owner check; used when a reminder fires.
func (r *TaskRepository) GetByID(ctx context.Context, taskID uint) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).First(&task, taskID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &task, nil
}

func (r *TaskRepository) ListForDate(ctx context.Context, userID uint, date model.Date) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ? AND date = ?", userID, date).
		Order("start_time ASC, id ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// ListUnfinishedForDate returns the tasks of date whose end is still ahead of now.
func (r *TaskRepository) ListUnfinishedForDate(ctx context.Context, userID uint, date model.Date, now time.Time) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND date = ? AND end_time > ?", userID, date, now.UnixMilli()).
		Order("start_time ASC, id ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list unfinished tasks: %w", err)
	}
	return tasks, nil
}

// ListStartingAfter returns tasks of all users that have not started at now.
func (r *TaskRepository) ListStartingAfter(ctx context.Context, now time.Time) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("start_time > ?", now.UnixMilli()).
		Order("start_time ASC, id ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list upcoming tasks: %w", err)
	}
	return tasks, nil
}

// WatchDate emits the task list of a day right away and again after every
// write for that user. The channel is closed when ctx is done.
func (r *TaskRepository) WatchDate(ctx context.Context, userID uint, date model.Date) (<-chan []model.Task, error) {
	initial, err := r.ListForDate(ctx, userID, date)
	if err != nil {
		return nil, err
	}

	subID, signal := r.feed.subscribe(userID)
	out := make(chan []model.Task)

	go func() {
		defer close(out)
		defer r.feed.unsubscribe(subID)

		pending := initial
		for {
			select {
			case out <- pending:
			case <-ctx.Done():
				return
			}
			select {
			case <-signal:
			case <-ctx.Done():
				return
			}
			tasks, err := r.ListForDate(ctx, userID, date)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				// Keep the previous list; the next write triggers another attempt.
				continue
			}
			pending = tasks
		}
	}()

	return out, nil
}

// Delete removes a task of the given user.
func (r *TaskRepository) Delete(ctx context.Context, userID, taskID uint) error {
	res := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, taskID).
		Delete(&model.Task{})
	if res.Error != nil {
		return fmt.Errorf("delete task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	r.feed.publish(userID)
	return nil
}

// PhaseCounts groups a user's tasks by stored lifecycle flags.
type PhaseCounts struct {
	Total   int64
	Done    int64
	Started int64
}

func (c PhaseCounts) Pending() int64 {
	return c.Total - c.Done - c.Started
}

func (r *TaskRepository) CountByPhase(ctx context.Context, userID uint) (PhaseCounts, error) {
	var counts PhaseCounts
	err := r.db.WithContext(ctx).Model(&model.Task{}).
		Select("COUNT(*) AS total, "+
			"COALESCE(SUM(CASE WHEN is_done = ? THEN 1 ELSE 0 END), 0) AS done, "+
			"COALESCE(SUM(CASE WHEN is_done = ? AND is_started = ? THEN 1 ELSE 0 END), 0) AS started",
			true, false, true).
		Where("user_id = ?", userID).
		Scan(&counts).Error
	if err != nil {
		return PhaseCounts{}, fmt.Errorf("count tasks by phase: %w", err)
	}
	return counts, nil
}

func (r *TaskRepository) CountByPriority(ctx context.Context, userID uint) (map[model.Priority]int64, error) {
	var rows []struct {
		Priority model.Priority
		Count    int64
	}
	err := r.db.WithContext(ctx).Model(&model.Task{}).
		Select("priority, COUNT(*) AS count").
		Where("user_id = ?", userID).
		Group("priority").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count tasks by priority: %w", err)
	}
	out := make(map[model.Priority]int64, len(rows))
	for _, row := range rows {
		out[row.Priority] += row.Count
	}
	return out, nil
}
