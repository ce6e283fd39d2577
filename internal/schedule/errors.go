package schedule

// ValidationError is a user-correctable problem with a proposed task.
// The zero value is not a valid error.
type ValidationError int

const (
	_ ValidationError = iota
	InvalidStartHour
	InvalidStartMinute
	InvalidEndHour
	InvalidEndMinute
	StartTimeInPast
	EndTimeBeforeStart
	EmptyTitle
)

func (e ValidationError) Error() string {
	switch e {
	case InvalidStartHour:
		return "start hour must be a number between 0 and 23"
	case InvalidStartMinute:
		return "start minute must be a number between 0 and 59"
	case InvalidEndHour:
		return "end hour must be a number between 0 and 23"
	case InvalidEndMinute:
		return "end minute must be a number between 0 and 59"
	case StartTimeInPast:
		return "start time is already in the past"
	case EndTimeBeforeStart:
		return "end time is before start time"
	case EmptyTitle:
		return "title is required"
	default:
		return "invalid task"
	}
}

// String returns the tag name, e.g. "InvalidStartHour".
func (e ValidationError) String() string {
	switch e {
	case InvalidStartHour:
		return "InvalidStartHour"
	case InvalidStartMinute:
		return "InvalidStartMinute"
	case InvalidEndHour:
		return "InvalidEndHour"
	case InvalidEndMinute:
		return "InvalidEndMinute"
	case StartTimeInPast:
		return "StartTimeInPast"
	case EndTimeBeforeStart:
		return "EndTimeBeforeStart"
	case EmptyTitle:
		return "EmptyTitle"
	default:
		return "ValidationError(?)"
	}
}
