package model

import (
	"strings"
	"time"
)

// User is a planner owner, identified by the Telegram account that talks to
// the bot. Private chats share the account id, so TelegramID is also where
// reminders go.
type User struct {
	ID         uint   `gorm:"primaryKey"`
	TelegramID int64  `gorm:"uniqueIndex;not null"`
	FirstName  string `gorm:"size:128"`
	LastName   string `gorm:"size:128"`
	Username   string `gorm:"size:64"`
	CreatedAt  time.Time
	UpdatedAt  time.Time

	Tasks []Task `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// DisplayName prefers the first name, then the @username, then fallback.
func (u User) DisplayName(fallback string) string {
	if name := strings.TrimSpace(u.FirstName); name != "" {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return fallback
}
