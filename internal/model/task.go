package model

import "time"

// Task represents a single timed item in the planner.
type Task struct {
	ID          uint `gorm:"primaryKey"`
	UserID      uint `gorm:"index:idx_task_user_date"`
	Title       string
	Description string
	Date        Date     `gorm:"type:text;index:idx_task_user_date"`
	StartTime   int64    `gorm:"index"` // epoch millis
	EndTime     int64    // epoch millis
	IsDone      bool     `gorm:"default:false"`
	IsStarted   bool     `gorm:"default:false"`
	Priority    Priority `gorm:"type:text;default:'NONE'"`
	Icon        Icon     `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Start returns the start instant in loc.
func (t Task) Start(loc *time.Location) time.Time {
	return time.UnixMilli(t.StartTime).In(loc)
}

// End returns the end instant in loc.
func (t Task) End(loc *time.Location) time.Time {
	return time.UnixMilli(t.EndTime).In(loc)
}

// Duration is the length of the task window.
func (t Task) Duration() time.Duration {
	return time.Duration(t.EndTime-t.StartTime) * time.Millisecond
}
