// Package schedule holds the time rules of the planner: window validation,
// lifecycle status and progress. Everything here is pure and never blocks.
package schedule

import (
	"strconv"
	"time"

	"task-planner/internal/model"
)

// WindowInput is the raw time input of a task as typed by the user.
type WindowInput struct {
	Date        model.Date
	StartHour   string
	StartMinute string
	EndHour     string
	EndMinute   string
}

// Window is a validated pair of instants.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) StartMillis() int64 { return w.Start.UnixMilli() }

func (w Window) EndMillis() int64 { return w.End.UnixMilli() }

// ValidateWindow checks in against now and resolves it into instants in
// now's location. It returns either a window or exactly one
// ValidationError; the first failing rule wins.
func ValidateWindow(in WindowInput, now time.Time) (Window, error) {
	startHour, ok := parseInRange(in.StartHour, 23)
	if !ok {
		return Window{}, InvalidStartHour
	}
	startMinute, ok := parseInRange(in.StartMinute, 59)
	if !ok {
		return Window{}, InvalidStartMinute
	}
	endHour, ok := parseInRange(in.EndHour, 23)
	if !ok {
		return Window{}, InvalidEndHour
	}
	endMinute, ok := parseInRange(in.EndMinute, 59)
	if !ok {
		return Window{}, InvalidEndMinute
	}

	loc := now.Location()
	w := Window{
		Start: in.Date.At(startHour, startMinute, loc),
		End:   in.Date.At(endHour, endMinute, loc),
	}

	if in.Date == model.DateOf(now) && w.Start.Before(now) {
		return Window{}, StartTimeInPast
	}
	// Equal start and end is a zero-length task and is allowed.
	if w.Start.After(w.End) {
		return Window{}, EndTimeBeforeStart
	}
	return w, nil
}

func parseInRange(raw string, max int) (int, bool) {
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 || v > max {
		return 0, false
	}
	return v, true
}
