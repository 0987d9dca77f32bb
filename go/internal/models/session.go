package models

import (
	"time"
)

// SessionType distinguishes focus intervals from breaks.
type SessionType string

const (
	SessionTypeFocus SessionType = "focus"
	SessionTypeBreak SessionType = "break"
)

// Valid reports whether t is a known session type.
func (t SessionType) Valid() bool {
	return t == SessionTypeFocus || t == SessionTypeBreak
}

// Default idle durations per session type.
const (
	DefaultFocusMinutes = 25
	DefaultBreakMinutes = 5
)

// DefaultMinutes returns the default planned duration for the session type.
func (t SessionType) DefaultMinutes() int {
	if t == SessionTypeBreak {
		return DefaultBreakMinutes
	}
	return DefaultFocusMinutes
}

// Session is one timed focus or break interval, solo or room-linked.
type Session struct {
	ID              string      `json:"id"`
	UserID          int64       `json:"user_id"`
	TagID           *string     `json:"tag_id"`
	RoomID          *string     `json:"room_id"`
	StartTime       time.Time   `json:"start_time"`
	EndTime         *time.Time  `json:"end_time"`
	PlannedDuration int         `json:"planned_duration"` // minutes
	ActualDuration  int         `json:"actual_duration"`  // minutes
	Type            SessionType `json:"session_type"`
	Completed       bool        `json:"completed"`
	CreatedAt       time.Time   `json:"created_at"`
}

// StartSessionRequest is the payload for starting a session.
type StartSessionRequest struct {
	TagID           *string     `json:"tag_id,omitempty"`
	RoomID          *string     `json:"room_id,omitempty"`
	PlannedDuration int         `json:"planned_duration"`
	Type            SessionType `json:"session_type"`
}

// SessionStats holds aggregate statistics computed by the server.
type SessionStats struct {
	TotalFocusMinutes int     `json:"total_focus_minutes"`
	TotalFocusHours   float64 `json:"total_focus_hours"`
	WeeklySessions    int     `json:"weekly_sessions"`
	MonthlySessions   int     `json:"monthly_sessions"`
	CurrentStreak     int     `json:"current_streak"`
	LongestStreak     int     `json:"longest_streak"`
	Level             int     `json:"level"`
	XP                int     `json:"xp"`
}
