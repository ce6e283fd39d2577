package bot

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"task-planner/internal/model"
	"task-planner/internal/schedule"
	"task-planner/internal/service"
)

const progressBarWidth = 10

func formatDay(snap service.Snapshot, loc *time.Location) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("📋 <b>Tasks for %s</b>\n", snap.Date))
	if len(snap.Tasks) == 0 {
		builder.WriteString("\nNothing planned. Add a task with /newtask.")
		return builder.String()
	}
	builder.WriteString(fmt.Sprintf("<i>as of %s</i>\n\n", snap.At.In(loc).Format("15:04:05")))
	for _, task := range snap.Tasks {
		builder.WriteString(formatTaskLine(task, snap.Progress[task.ID], loc))
	}
	return strings.TrimSpace(builder.String())
}

func formatTaskLine(task model.Task, progress schedule.ProgressInfo, loc *time.Location) string {
	var b strings.Builder
	phase := schedule.StatusOf(task).Phase()
	b.WriteString(fmt.Sprintf("%s <b>#%d</b> %s", service.PhaseIcon(phase), task.ID, escape(normalizeTitle(task.Title))))
	if task.Priority != "" && task.Priority != model.PriorityNone {
		b.WriteString(" " + priorityIcon(task.Priority))
	}
	b.WriteByte('\n')
	b.WriteString(fmt.Sprintf("   ⏰ %s–%s · %s\n",
		task.Start(loc).Format("15:04"), task.End(loc).Format("15:04"), service.FormatDuration(task.Duration())))

	switch phase {
	case schedule.PhaseStarted:
		b.WriteString(fmt.Sprintf("   %s %d%% · %s left\n",
			progressBar(progress.Progress, progressBarWidth), progress.Percent(), service.FormatDuration(progress.Remaining())))
	case schedule.PhaseDone:
		b.WriteString("   finished\n")
	}
	if task.Description != "" {
		b.WriteString(fmt.Sprintf("   📝 %s\n", escape(task.Description)))
	}
	b.WriteByte('\n')
	return b.String()
}

func progressBar(p float64, width int) string {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	filled := int(p * float64(width))
	return strings.Repeat("▓", filled) + strings.Repeat("░", width-filled)
}

func dayKeyboard(snap service.Snapshot) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, task := range snap.Tasks {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("🗑 #%d · %s", task.ID, shortTitle(task.Title, 24)), fmt.Sprintf("%s%d", cbDeletePrefix, task.ID)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔄 Refresh", cbRefreshPrefix+snap.Date.String()),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func formatStats(stats service.Stats) string {
	var b strings.Builder
	b.WriteString("📊 <b>Statistics</b>\n")
	if stats.Total == 0 {
		b.WriteString("No tasks yet.")
		return b.String()
	}
	b.WriteString(fmt.Sprintf("Total: %d\n", stats.Total))
	b.WriteString(fmt.Sprintf("✅ Completed: %d (%s)\n", stats.Completed, percent(stats.CompletedPercent)))
	b.WriteString(fmt.Sprintf("▶️ In progress: %d (%s)\n", stats.InProgress, percent(stats.InProgressPercent)))
	b.WriteString(fmt.Sprintf("🕒 Pending: %d (%s)\n", stats.Pending, percent(stats.PendingPercent)))

	var lines []string
	for _, p := range model.Priorities {
		if n := stats.ByPriority[p]; n > 0 {
			lines = append(lines, fmt.Sprintf("%s: %d", priorityLabel(p), n))
		}
	}
	if len(lines) > 0 {
		b.WriteString("\n<b>By priority</b>\n")
		b.WriteString(strings.Join(lines, "\n"))
	}
	return strings.TrimSpace(b.String())
}

func percent(fraction float64) string {
	return fmt.Sprintf("%.0f%%", fraction*100)
}

func formatReminder(task model.Task, loc *time.Location) string {
	text := fmt.Sprintf("⏰ <b>Task started:</b> %s\n%s–%s · %s",
		escape(normalizeTitle(task.Title)),
		task.Start(loc).Format("15:04"), task.End(loc).Format("15:04"), service.FormatDuration(task.Duration()))
	if task.Description != "" {
		text += fmt.Sprintf("\n📝 %s", escape(task.Description))
	}
	return text
}

func validationMessage(err schedule.ValidationError) string {
	msg := err.Error()
	if msg == "" {
		return msg
	}
	runes := []rune(msg)
	runes[0] = unicode.ToUpper(runes[0])
	return "⚠️ " + string(runes) + "."
}

func priorityIcon(p model.Priority) string {
	switch p {
	case model.PriorityCritical:
		return "🟥"
	case model.PriorityUrgent:
		return "🔴"
	case model.PriorityHigh:
		return "🟠"
	case model.PriorityMedium:
		return "🟡"
	case model.PriorityLow:
		return "🟢"
	case model.PriorityMinor:
		return "🔵"
	case model.PriorityOptional:
		return "⚪"
	case model.PriorityCustom:
		return "🟣"
	default:
		return ""
	}
}

func priorityLabel(p model.Priority) string {
	name := strings.ToLower(string(p))
	if icon := priorityIcon(p); icon != "" {
		return icon + " " + name
	}
	return name
}

func priorityNames() string {
	names := make([]string, 0, len(model.Priorities))
	for _, p := range model.Priorities {
		names = append(names, strings.ToLower(string(p)))
	}
	return strings.Join(names, ", ")
}

// stripPriorityIcon turns a keyboard label like "🟠 high" back into "high".
func stripPriorityIcon(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// parseClock splits "9:05" or "09.05" into hour and minute strings. Range
// checks are left to validation.
func parseClock(text string) (string, string, bool) {
	text = strings.TrimSpace(text)
	sep := strings.IndexAny(text, ":.")
	if sep <= 0 || sep == len(text)-1 {
		return "", "", false
	}
	hour, minute := text[:sep], text[sep+1:]
	if strings.ContainsAny(minute, ":.") {
		return "", "", false
	}
	return hour, minute, true
}

func parseDateArg(arg string, today model.Date) (model.Date, error) {
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case "today":
		return today, nil
	case "tomorrow":
		return today.AddDays(1), nil
	case "yesterday":
		return today.AddDays(-1), nil
	}
	return model.ParseDate(strings.TrimSpace(arg))
}

func parseTaskID(data, prefix string) (uint, error) {
	raw := strings.TrimPrefix(data, prefix)
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(value), nil
}

func parsePriorityCallback(data string) (uint, model.Priority, error) {
	raw := strings.TrimPrefix(data, cbPriorityPrefix)
	idPart, level, ok := strings.Cut(raw, ":")
	if !ok {
		return 0, "", fmt.Errorf("malformed priority callback %q", data)
	}
	id, err := strconv.ParseUint(idPart, 10, 64)
	if err != nil {
		return 0, "", err
	}
	priority, err := model.ParsePriority(level)
	if err != nil {
		return 0, "", err
	}
	return uint(id), priority, nil
}

func escape(s string) string {
	return html.EscapeString(s)
}

func normalizeTitle(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	runes := []rune(value)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	clean = normalizeTitle(clean)
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}
