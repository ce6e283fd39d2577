package bot

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-planner/internal/model"
	"task-planner/internal/schedule"
	"task-planner/internal/service"
)

var (
	loc = time.FixedZone("UTC+3", 3*60*60)
	day = model.Date{Year: 2025, Month: time.March, Day: 14}
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in           string
		hour, minute string
		ok           bool
	}{
		{in: "09:30", hour: "09", minute: "30", ok: true},
		{in: " 9.05 ", hour: "9", minute: "05", ok: true},
		{in: "25:99", hour: "25", minute: "99", ok: true},
		{in: "0930"},
		{in: ":30"},
		{in: "09:"},
		{in: "1:2:3"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			hour, minute, ok := parseClock(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.hour, hour)
			assert.Equal(t, tt.minute, minute)
		})
	}
}

func TestParseDateArg(t *testing.T) {
	got, err := parseDateArg("today", day)
	require.NoError(t, err)
	assert.Equal(t, day, got)

	got, err = parseDateArg("Tomorrow", day)
	require.NoError(t, err)
	assert.Equal(t, model.Date{Year: 2025, Month: time.March, Day: 15}, got)

	got, err = parseDateArg("2025-12-31", day)
	require.NoError(t, err)
	assert.Equal(t, model.Date{Year: 2025, Month: time.December, Day: 31}, got)

	_, err = parseDateArg("31.12.2025", day)
	assert.Error(t, err)
}

func TestParsePriorityCallback(t *testing.T) {
	id, priority, err := parsePriorityCallback("prio:12:urgent")
	require.NoError(t, err)
	assert.Equal(t, uint(12), id)
	assert.Equal(t, model.PriorityUrgent, priority)

	_, _, err = parsePriorityCallback("prio:12")
	assert.Error(t, err)
	_, _, err = parsePriorityCallback("prio:x:low")
	assert.Error(t, err)
	_, _, err = parsePriorityCallback("prio:3:whatever")
	assert.Error(t, err)
}

func TestPriorityLabelRoundTrip(t *testing.T) {
	for _, p := range model.Priorities {
		parsed, err := model.ParsePriority(stripPriorityIcon(priorityLabel(p)))
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}
}

func TestValidationMessage(t *testing.T) {
	assert.Equal(t, "⚠️ End time is before start time.", validationMessage(schedule.EndTimeBeforeStart))
	assert.Equal(t, "⚠️ Title is required.", validationMessage(schedule.EmptyTitle))
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "░░░░░░░░░░", progressBar(0, 10))
	assert.Equal(t, "▓▓▓▓▓░░░░░", progressBar(0.5, 10))
	assert.Equal(t, "▓▓▓▓▓▓▓▓▓▓", progressBar(1.7, 10))
	assert.Equal(t, "░░░░", progressBar(-1, 4))
}

func TestFormatDay(t *testing.T) {
	now := day.At(10, 15, loc)
	running := model.Task{
		ID:        1,
		Title:     "write <report>",
		Date:      day,
		StartTime: day.At(10, 0, loc).UnixMilli(),
		EndTime:   day.At(10, 30, loc).UnixMilli(),
		IsStarted: true,
		Priority:  model.PriorityHigh,
	}
	done := model.Task{
		ID:        2,
		Title:     "coffee",
		Date:      day,
		StartTime: day.At(9, 0, loc).UnixMilli(),
		EndTime:   day.At(9, 15, loc).UnixMilli(),
		IsDone:    true,
	}
	tasks := []model.Task{done, running}
	snap := service.Snapshot{
		Date:     day,
		At:       now,
		Tasks:    tasks,
		Progress: schedule.ComputeAll(tasks, now),
	}

	text := formatDay(snap, loc)
	assert.Contains(t, text, "Tasks for 2025-03-14")
	assert.Contains(t, text, "▶️ <b>#1</b> Write &lt;report&gt; 🟠")
	assert.Contains(t, text, "10:00–10:30 · 30m")
	assert.Contains(t, text, "▓▓▓▓▓░░░░░ 50% · 15m left")
	assert.Contains(t, text, "✅ <b>#2</b> Coffee")
	assert.Less(t, strings.Index(text, "#2"), strings.Index(text, "#1"))

	keyboard := dayKeyboard(snap)
	require.Len(t, keyboard.InlineKeyboard, 3)
	assert.Equal(t, "refresh:2025-03-14", *keyboard.InlineKeyboard[2][0].CallbackData)
	assert.Equal(t, "delete:2", *keyboard.InlineKeyboard[0][0].CallbackData)
}

func TestFormatDayEmpty(t *testing.T) {
	snap := service.Snapshot{Date: day, At: day.At(8, 0, loc)}
	assert.Contains(t, formatDay(snap, loc), "Nothing planned")
	assert.Len(t, dayKeyboard(snap).InlineKeyboard, 1)
}

func TestFormatStats(t *testing.T) {
	text := formatStats(service.Stats{
		Total:             4,
		Completed:         1,
		InProgress:        1,
		Pending:           2,
		CompletedPercent:  0.25,
		InProgressPercent: 0.25,
		PendingPercent:    0.5,
		ByPriority:        map[model.Priority]int64{model.PriorityNone: 3, model.PriorityUrgent: 1},
	})
	assert.Contains(t, text, "Completed: 1 (25%)")
	assert.Contains(t, text, "Pending: 2 (50%)")
	assert.Contains(t, text, "none: 3")
	assert.Contains(t, text, "🔴 urgent: 1")

	assert.Contains(t, formatStats(service.Stats{}), "No tasks yet")
}

func TestFormatReminder(t *testing.T) {
	task := model.Task{
		Title:       "stand-up",
		Description: "room 4",
		StartTime:   day.At(9, 30, loc).UnixMilli(),
		EndTime:     day.At(9, 45, loc).UnixMilli(),
	}
	text := formatReminder(task, loc)
	assert.Contains(t, text, "Task started:</b> Stand-up")
	assert.Contains(t, text, "09:30–09:45 · 15m")
	assert.Contains(t, text, "room 4")
}

func TestShortTitle(t *testing.T) {
	assert.Equal(t, "Short", shortTitle("short", 10))
	assert.Equal(t, "Abcdefghi…", shortTitle("abcdefghijklmnop", 10))
	assert.Equal(t, "Two lines", shortTitle("two\nlines", 20))
}

func TestInputPredicates(t *testing.T) {
	assert.True(t, isSkipInput(btnSkip))
	assert.True(t, isSkipInput(" - "))
	assert.True(t, isConfirmInput("yes"))
	assert.True(t, isCancelInput(btnCancel))
	assert.True(t, isCancelDialogInput(btnCancelDialog))
	assert.False(t, isCancelDialogInput("cancel"))
}

func TestFinishedTransitions(t *testing.T) {
	got := finishedTransitions([]service.Transition{
		{TaskID: 1, To: schedule.PhaseStarted},
		{TaskID: 2, To: schedule.PhaseDone},
	})
	require.Len(t, got, 1)
	assert.Equal(t, uint(2), got[0].TaskID)
}
