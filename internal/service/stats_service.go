package service

import (
	"context"
	"math"

	"task-planner/internal/clock"
	"task-planner/internal/model"
	"task-planner/internal/repository"
)

// Stats summarises all tasks of a user. Percentages are fractions in [0, 1].
type Stats struct {
	Total      int64
	Completed  int64
	InProgress int64
	Pending    int64

	CompletedPercent  float64
	InProgressPercent float64
	PendingPercent    float64

	ByPriority map[model.Priority]int64
}

type StatsService struct {
	taskRepo *repository.TaskRepository
	clock    clock.Clock
}

func NewStatsService(taskRepo *repository.TaskRepository, clk clock.Clock) *StatsService {
	return &StatsService{taskRepo: taskRepo, clock: clk}
}

// Collect brings stored flags up to date and counts the user's tasks.
func (s *StatsService) Collect(ctx context.Context, user *model.User) (Stats, error) {
	if _, err := s.taskRepo.SyncStatuses(ctx, user.ID, s.clock.Now()); err != nil {
		return Stats{}, err
	}
	counts, err := s.taskRepo.CountByPhase(ctx, user.ID)
	if err != nil {
		return Stats{}, err
	}
	byPriority, err := s.taskRepo.CountByPriority(ctx, user.ID)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		Total:      counts.Total,
		Completed:  counts.Done,
		InProgress: counts.Started,
		Pending:    counts.Pending(),
		ByPriority: byPriority,
	}
	if stats.Total > 0 {
		total := float64(stats.Total)
		stats.CompletedPercent = round2(float64(stats.Completed) / total)
		stats.InProgressPercent = round2(float64(stats.InProgress) / total)
		stats.PendingPercent = round2(1 - stats.CompletedPercent - stats.InProgressPercent)
	}
	return stats, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
