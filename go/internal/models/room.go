package models

import (
	"time"
)

// RoomState defines the shared timer state of a room.
type RoomState string

const (
	RoomStateIdle    RoomState = "idle"
	RoomStateRunning RoomState = "running"
	RoomStatePaused  RoomState = "paused"
	RoomStateBreak   RoomState = "break"
)

// Valid reports whether s is one of the known room states.
func (s RoomState) Valid() bool {
	switch s {
	case RoomStateIdle, RoomStateRunning, RoomStatePaused, RoomStateBreak:
		return true
	}
	return false
}

// Room duration bounds, in minutes.
const (
	MinFocusDuration = 1
	MaxFocusDuration = 180
	MinBreakDuration = 1
	MaxBreakDuration = 60
)

// RoomCodeLength is the fixed length of a shareable join code.
const RoomCodeLength = 6

// Room represents a shared focus/break timer container.
type Room struct {
	ID             string     `json:"id"`
	CreatorID      int64      `json:"creator_id"`
	Name           string     `json:"name"`
	RoomCode       string     `json:"room_code"`
	FocusDuration  int        `json:"timer_duration"` // minutes
	BreakDuration  int        `json:"break_duration"` // minutes
	IsActive       bool       `json:"is_active"`
	CurrentState   RoomState  `json:"current_state"`
	TimerStartedAt *time.Time `json:"timer_started_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// SetState replaces the current state and timer start together.
// TimerStartedAt is only kept while running; a running state without a
// start instant falls back to now.
func (r *Room) SetState(state RoomState, startedAt *time.Time, now time.Time) {
	r.CurrentState = state
	if state != RoomStateRunning {
		r.TimerStartedAt = nil
		return
	}
	if startedAt == nil {
		startedAt = &now
	}
	t := *startedAt
	r.TimerStartedAt = &t
}

// Clone returns a deep copy of the room.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	if r.TimerStartedAt != nil {
		t := *r.TimerStartedAt
		c.TimerStartedAt = &t
	}
	return &c
}

// FocusDurationTime returns the focus duration as a time.Duration.
func (r *Room) FocusDurationTime() time.Duration {
	return time.Duration(r.FocusDuration) * time.Minute
}

func (r *Room) BreakDurationTime() time.Duration {
	return time.Duration(r.BreakDuration) * time.Minute
}

// Participant is a member of a room.
type Participant struct {
	UserID    int64     `json:"id"`
	Username  string    `json:"username"`
	AvatarURL *string   `json:"avatar_url"`
	JoinedAt  time.Time `json:"joined_at"`
}
