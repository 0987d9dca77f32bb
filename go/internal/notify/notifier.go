package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Notification is a local reminder fired when a countdown ends.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	FireAt    time.Time `json:"fire_at"`
	SessionID string    `json:"session_id,omitempty"`
}

// Notifier schedules and clears completion reminders.
type Notifier interface {
	Schedule(ctx context.Context, n Notification) (string, error)
	CancelAll(ctx context.Context) error
}

const (
	TitleFocusComplete = "Focus Session Complete!"
	TitleBreakOver     = "Break Time Over!"
	BodyTimerFinished  = "Great job! Your timer has finished."
)

// LogNotifier only logs. Used when no delivery channel is configured.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Schedule(ctx context.Context, notification Notification) (string, error) {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	log.Info().
		Str("notification_id", notification.ID).
		Str("title", notification.Title).
		Time("fire_at", notification.FireAt).
		Msg("notification scheduled")
	return notification.ID, nil
}

func (n *LogNotifier) CancelAll(ctx context.Context) error {
	log.Debug().Msg("notifications cleared")
	return nil
}
