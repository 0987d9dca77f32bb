package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/focusroom/go/internal/models"
	"github.com/mcdev12/focusroom/go/internal/notify"
	"github.com/mcdev12/focusroom/go/internal/timer"
)

const completeTimeout = 15 * time.Second

// API is the session surface of the REST collaborator.
type API interface {
	StartSession(ctx context.Context, req models.StartSessionRequest) (*models.Session, error)
	CompleteSession(ctx context.Context, sessionID string) (*models.Session, error)
	CancelSession(ctx context.Context, sessionID string) error
	ListActiveSessions(ctx context.Context) ([]models.Session, error)
	GetSessionStats(ctx context.Context) (*models.SessionStats, error)
}

// StartOptions are the optional links of a new session.
type StartOptions struct {
	TagID  *string
	RoomID *string
}

// Coordinator owns the current session and keeps at most one session active
// server-side for the user.
type Coordinator struct {
	api      API
	engine   *timer.Engine
	notifier notify.Notifier
	clock    clockwork.Clock

	// startMu serializes Start and Stop.
	startMu sync.Mutex

	mu          sync.Mutex
	current     *models.Session
	sessionType models.SessionType
	minutes     int
	stats       *models.SessionStats
}

func NewCoordinator(api API, engine *timer.Engine, notifier notify.Notifier, clock clockwork.Clock) *Coordinator {
	if notifier == nil {
		notifier = notify.NewLogNotifier()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	c := &Coordinator{
		api:         api,
		engine:      engine,
		notifier:    notifier,
		clock:       clock,
		sessionType: models.SessionTypeFocus,
		minutes:     models.DefaultFocusMinutes,
	}
	engine.OnComplete(c.onTimerCompleted)
	engine.Reset(minutesToDuration(c.minutes))
	return c
}

// Start cancels any local or orphaned server-side session and starts a new
// one of the current session type. On failure the engine is left idle.
func (c *Coordinator) Start(ctx context.Context, minutes int, opts StartOptions) (*models.Session, error) {
	if minutes < models.MinFocusDuration || minutes > models.MaxFocusDuration {
		return nil, fmt.Errorf("%w: %d minutes", ErrInvalidDuration, minutes)
	}

	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	previous := c.current
	c.current = nil
	c.minutes = minutes
	sessionType := c.sessionType
	c.mu.Unlock()

	duration := minutesToDuration(minutes)
	c.engine.Reset(duration)

	cancelled := make(map[string]bool)
	if previous != nil {
		c.cancelBestEffort(ctx, previous.ID)
		cancelled[previous.ID] = true
	}

	active, err := c.api.ListActiveSessions(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to list active sessions")
	}
	for _, s := range active {
		if cancelled[s.ID] {
			continue
		}
		c.cancelBestEffort(ctx, s.ID)
		cancelled[s.ID] = true
	}

	started, err := c.api.StartSession(ctx, models.StartSessionRequest{
		TagID:           opts.TagID,
		RoomID:          opts.RoomID,
		PlannedDuration: minutes,
		Type:            sessionType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	c.mu.Lock()
	c.current = started
	c.mu.Unlock()

	c.engine.Start(duration)
	c.scheduleNotification(ctx, started, sessionType, duration)

	log.Info().
		Str("session_id", started.ID).
		Str("session_type", string(sessionType)).
		Int("minutes", minutes).
		Int("cancelled", len(cancelled)).
		Msg("session started")

	cp := *started
	return &cp, nil
}

// Stop cancels the current session and resets the timer to the full
// configured duration.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	current := c.current
	c.current = nil
	duration := minutesToDuration(c.minutes)
	c.mu.Unlock()

	if current != nil {
		c.cancelBestEffort(ctx, current.ID)
	}
	c.engine.Reset(duration)

	if err := c.notifier.CancelAll(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to clear notifications")
	}

	if current != nil {
		log.Info().Str("session_id", current.ID).Msg("session stopped")
	}
	return nil
}

// SetSessionType switches between focus and break and, when no session is
// running, resets the timer to the type's default length.
func (c *Coordinator) SetSessionType(t models.SessionType) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSessionType, t)
	}

	c.mu.Lock()
	c.sessionType = t
	c.minutes = t.DefaultMinutes()
	idle := c.current == nil
	duration := minutesToDuration(c.minutes)
	c.mu.Unlock()

	if idle {
		c.engine.Reset(duration)
	}
	return nil
}

func (c *Coordinator) SessionType() models.SessionType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionType
}

// Current returns a copy of the active session, or nil.
func (c *Coordinator) Current() *models.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	cp := *c.current
	return &cp
}

func (c *Coordinator) Stats() *models.SessionStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stats == nil {
		return nil
	}
	cp := *c.stats
	return &cp
}

func (c *Coordinator) RefreshStats(ctx context.Context) error {
	stats, err := c.api.GetSessionStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch session stats: %w", err)
	}
	c.mu.Lock()
	c.stats = stats
	c.mu.Unlock()
	return nil
}

// onTimerCompleted runs on the engine's completion path. The engine returns
// to idle afterwards whatever the server answers.
func (c *Coordinator) onTimerCompleted(completion timer.Completion) {
	c.mu.Lock()
	current := c.current
	c.current = nil
	c.mu.Unlock()

	if current == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), completeTimeout)
	defer cancel()

	if _, err := c.api.CompleteSession(ctx, current.ID); err != nil {
		log.Warn().Err(err).Str("session_id", current.ID).Msg("failed to complete session")
		return
	}
	log.Info().Str("session_id", current.ID).Uint64("run_id", completion.RunID).Msg("session completed")

	if err := c.RefreshStats(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to refresh stats after completion")
	}
}

func (c *Coordinator) cancelBestEffort(ctx context.Context, sessionID string) {
	if err := c.api.CancelSession(ctx, sessionID); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to cancel session")
	}
}

func (c *Coordinator) scheduleNotification(ctx context.Context, s *models.Session, t models.SessionType, d time.Duration) {
	title := notify.TitleFocusComplete
	if t == models.SessionTypeBreak {
		title = notify.TitleBreakOver
	}
	_, err := c.notifier.Schedule(ctx, notify.Notification{
		Title:     title,
		Body:      notify.BodyTimerFinished,
		FireAt:    c.clock.Now().Add(d),
		SessionID: s.ID,
	})
	if err != nil {
		log.Warn().Err(err).Str("session_id", s.ID).Msg("failed to schedule notification")
	}
}

func minutesToDuration(minutes int) time.Duration {
	return time.Duration(minutes) * time.Minute
}
