package model

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Priority is a cosmetic importance label; it never affects scheduling.
type Priority string

const (
	PriorityNone     Priority = "NONE"
	PriorityOptional Priority = "OPTIONAL"
	PriorityMinor    Priority = "MINOR"
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityUrgent   Priority = "URGENT"
	PriorityCritical Priority = "CRITICAL"
	PriorityCustom   Priority = "CUSTOM"
)

// Priorities lists every level from least to most important, CUSTOM last.
var Priorities = []Priority{
	PriorityNone,
	PriorityOptional,
	PriorityMinor,
	PriorityLow,
	PriorityMedium,
	PriorityHigh,
	PriorityUrgent,
	PriorityCritical,
	PriorityCustom,
}

// ParsePriority accepts any letter case.
func ParsePriority(s string) (Priority, error) {
	candidate := Priority(strings.ToUpper(strings.TrimSpace(s)))
	for _, p := range Priorities {
		if p == candidate {
			return p, nil
		}
	}
	return PriorityNone, fmt.Errorf("unknown priority %q", s)
}

func (p Priority) Value() (driver.Value, error) {
	if p == "" {
		return string(PriorityNone), nil
	}
	return string(p), nil
}

func (p *Priority) Scan(value interface{}) error {
	var raw string
	switch v := value.(type) {
	case nil:
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("scan priority: unsupported type %T", value)
	}
	parsed, err := ParsePriority(raw)
	if err != nil {
		parsed = PriorityNone
	}
	*p = parsed
	return nil
}
