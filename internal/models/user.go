package models

import "time"

// DefaultPushTime is assigned to new users until they pick their own slot.
const DefaultPushTime = "10:00"

// User represents a bot user stored in the users table. The primary key is
// the Telegram user ID, so no separate registration step exists: the row is
// created the first time the user talks to the bot.
type User struct {
	ID               int64     `json:"id"`
	Username         string    `json:"username"`
	DisplayName      string    `json:"displayName"`
	RegisteredAt     time.Time `json:"registeredAt"`
	PushTime         string    `json:"pushTime"` // "HH:MM", interpreted in the bot timezone
	PushEnabled      bool      `json:"pushEnabled"`
	LastCard         string    `json:"lastCard"`
	LastCardDate     string    `json:"lastCardDate"` // "2006-01-02"
	LastActivityDate string    `json:"lastActivityDate"`
	DrawCount        int       `json:"drawCount"`
	DailyAdviceCount int       `json:"dailyAdviceCount"`
	AdviceLastDate   string    `json:"adviceLastDate"`
	FishBalance      int       `json:"fishBalance"`
	// YearEnergyCard is write-once: empty until the user's first "Energy of
	// the Year" draw, then fixed for the lifetime of the row.
	YearEnergyCard string `json:"yearEnergyCard"`
}

// Stats is the aggregate snapshot shown to admins and exported as gauges.
type Stats struct {
	TotalUsers  int `json:"totalUsers"`
	ActiveToday int `json:"activeToday"`
	TotalDraws  int `json:"totalDraws"`
	PushEnabled int `json:"pushEnabled"`
}
