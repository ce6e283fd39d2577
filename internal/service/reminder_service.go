package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"task-planner/internal/model"
	"task-planner/internal/repository"
	"task-planner/internal/schedule"
)

// ReminderService builds human-readable summaries for daily notifications.
type ReminderService struct {
	taskRepo *repository.TaskRepository
}

func NewReminderService(taskRepo *repository.TaskRepository) *ReminderService {
	return &ReminderService{taskRepo: taskRepo}
}

// DailySummary lists the tasks of now's day that have not ended yet and
// returns how many there are. Callers send the text only when count > 0.
func (s *ReminderService) DailySummary(ctx context.Context, user model.User, now time.Time) (string, int, error) {
	today := model.DateOf(now)
	tasks, err := s.taskRepo.ListUnfinishedForDate(ctx, user.ID, today, now)
	if err != nil {
		return "", 0, err
	}
	if len(tasks) == 0 {
		return "", 0, nil
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>Daily reminder</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("02.01.2006")))
	builder.WriteString(fmt.Sprintf("You have %d unfinished %s today.\n\n", len(tasks), plural(len(tasks), "task", "tasks")))

	for _, task := range tasks {
		builder.WriteString(formatTask(task, now))
	}
	return strings.TrimSpace(builder.String()), len(tasks), nil
}

func formatTask(task model.Task, now time.Time) string {
	var sb strings.Builder

	loc := now.Location()
	status := schedule.DeriveStatus(task, now)
	sb.WriteString(fmt.Sprintf("%s %s", PhaseIcon(status.Phase()), html.EscapeString(strings.TrimSpace(task.Title))))
	if task.Priority != "" && task.Priority != model.PriorityNone {
		sb.WriteString(fmt.Sprintf(" <i>(%s)</i>", strings.ToLower(string(task.Priority))))
	}
	sb.WriteString(fmt.Sprintf("\n   ⏰ %s–%s · %s",
		task.Start(loc).Format("15:04"), task.End(loc).Format("15:04"), FormatDuration(task.Duration())))

	if desc := strings.TrimSpace(task.Description); desc != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(desc)))
	}

	sb.WriteByte('\n')
	return sb.String()
}

// PhaseIcon returns the marker shown in front of a task.
func PhaseIcon(p schedule.Phase) string {
	switch p {
	case schedule.PhaseDone:
		return "✅"
	case schedule.PhaseStarted:
		return "▶️"
	default:
		return "🕒"
	}
}

// FormatDuration renders d as "Xh Ym", dropping a zero hour part.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Minute)
	hours, minutes := total/60, total%60
	if hours == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

// Greeting picks a salutation for the hour of t.
func Greeting(t time.Time) string {
	switch h := t.Hour(); {
	case h >= 5 && h < 12:
		return "Good morning"
	case h >= 12 && h < 17:
		return "Good afternoon"
	case h >= 17 && h < 21:
		return "Good evening"
	default:
		return "Good night"
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
