package schedule

import (
	"time"

	"task-planner/internal/model"
)

// Phase is the lifecycle stage of a task.
type Phase int

const (
	PhasePending Phase = iota
	PhaseStarted
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseStarted:
		return "started"
	case PhaseDone:
		return "done"
	default:
		return "pending"
	}
}

// Status holds the derived flags of a task.
type Status struct {
	Done    bool
	Started bool
}

func (s Status) Phase() Phase {
	switch {
	case s.Done:
		return PhaseDone
	case s.Started:
		return PhaseStarted
	default:
		return PhasePending
	}
}

// StatusOf returns the flags currently stored on the task.
func StatusOf(task model.Task) Status {
	return Status{Done: task.IsDone, Started: task.IsStarted}
}

// DeriveStatus computes the flags of task at now.
func DeriveStatus(task model.Task, now time.Time) Status {
	ms := now.UnixMilli()
	done := ms >= task.EndTime
	return Status{
		Done:    done,
		Started: ms >= task.StartTime && ms < task.EndTime && !done,
	}
}

// Apply writes s onto task and reports whether anything changed.
func (s Status) Apply(task *model.Task) bool {
	if task.IsDone == s.Done && task.IsStarted == s.Started {
		return false
	}
	task.IsDone = s.Done
	task.IsStarted = s.Started
	return true
}
