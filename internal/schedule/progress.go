package schedule

import (
	"time"

	"task-planner/internal/model"
)

// ProgressInfo is the live completion of one task. It is never persisted.
type ProgressInfo struct {
	TaskID          uint
	Progress        float64
	RemainingMillis int64
}

func (p ProgressInfo) Remaining() time.Duration {
	return time.Duration(p.RemainingMillis) * time.Millisecond
}

// Percent is Progress scaled to 0..100 and truncated.
func (p ProgressInfo) Percent() int {
	return int(p.Progress * 100)
}

// ComputeProgress returns how far task has run at now.
func ComputeProgress(task model.Task, now time.Time) ProgressInfo {
	ms := now.UnixMilli()
	if task.IsDone || ms >= task.EndTime {
		return ProgressInfo{TaskID: task.ID, Progress: 1, RemainingMillis: 0}
	}

	total := task.EndTime - task.StartTime
	if total < 1 {
		total = 1
	}
	elapsed := clamp(ms-task.StartTime, 0, total)
	remaining := task.EndTime - ms
	if remaining < 0 {
		remaining = 0
	}
	return ProgressInfo{
		TaskID:          task.ID,
		Progress:        float64(elapsed) / float64(total),
		RemainingMillis: remaining,
	}
}

// ComputeAll derives status before progress for every task, in order.
func ComputeAll(tasks []model.Task, now time.Time) map[uint]ProgressInfo {
	out := make(map[uint]ProgressInfo, len(tasks))
	for _, task := range tasks {
		DeriveStatus(task, now).Apply(&task)
		out[task.ID] = ComputeProgress(task, now)
	}
	return out
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
