package timer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/focusroom/go/internal/models"
)

// State of the countdown.
type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	// StateCompleted is held only while the completion hook runs.
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Mode selects how remaining time is derived.
type Mode int

const (
	// ModeSolo decrements remaining time by one tick interval per tick.
	ModeSolo Mode = iota
	// ModeSynced recomputes remaining time from the shared start instant.
	ModeSynced
)

func (m Mode) String() string {
	if m == ModeSynced {
		return "synced"
	}
	return "solo"
}

// Completion describes a run that reached zero.
type Completion struct {
	RunID    uint64
	Mode     Mode
	Duration time.Duration
}

// CompletionHook is invoked once per completed run, outside the engine lock.
type CompletionHook func(Completion)

// Snapshot is a point-in-time view of the engine.
type Snapshot struct {
	State     string        `json:"state"`
	Mode      string        `json:"mode"`
	Duration  time.Duration `json:"duration"`
	Remaining time.Duration `json:"remaining"`
	StartedAt *time.Time    `json:"started_at,omitempty"`
	RunID     uint64        `json:"run_id"`
}

type Listener func(Snapshot)

type listenerEntry struct {
	id uint64
	fn Listener
}

// Engine is a countdown whose periodic driver runs only while the engine is
// running and attached to an owner.
type Engine struct {
	clock        clockwork.Clock
	tickInterval time.Duration

	mu              sync.Mutex
	state           State
	mode            Mode
	duration        time.Duration
	remaining       time.Duration
	startedAt       time.Time
	runID           uint64
	completedRun    uint64
	completedAnchor time.Time
	attached        bool
	backgrounded    bool
	ticker          clockwork.Ticker
	tickerStop      chan struct{}
	onComplete      CompletionHook

	listenersMu sync.RWMutex
	nextID      uint64
	listeners   []listenerEntry
}

func NewEngine(clock clockwork.Clock, tickInterval time.Duration) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if tickInterval <= 0 {
		tickInterval = time.Second
	}
	return &Engine{
		clock:        clock,
		tickInterval: tickInterval,
	}
}

// OnComplete sets the completion hook.
func (e *Engine) OnComplete(h CompletionHook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onComplete = h
}

// Start arms a solo run of the given duration.
func (e *Engine) Start(duration time.Duration) uint64 {
	e.mu.Lock()
	e.stopDriverLocked()
	e.runID++
	e.state = StateRunning
	e.mode = ModeSolo
	e.duration = duration
	e.remaining = duration
	e.startedAt = e.clock.Now()
	e.syncDriverLocked()
	runID := e.runID
	e.mu.Unlock()

	log.Debug().Uint64("run_id", runID).Dur("duration", duration).Msg("solo timer started")
	e.notify()
	return runID
}

// StartSynced arms a run anchored at startedAt. Re-arming the run already in
// progress, or one that already completed, is a no-op.
func (e *Engine) StartSynced(duration time.Duration, startedAt time.Time) uint64 {
	e.mu.Lock()
	if e.mode == ModeSynced && e.duration == duration && e.startedAt.Equal(startedAt) &&
		(e.state == StateRunning || e.state == StatePaused || e.state == StateCompleted) {
		runID := e.runID
		e.mu.Unlock()
		return runID
	}
	if e.completedAnchor.Equal(startedAt) && !startedAt.IsZero() {
		runID := e.runID
		e.mu.Unlock()
		return runID
	}

	e.stopDriverLocked()
	e.runID++
	e.mode = ModeSynced
	e.duration = duration
	e.startedAt = startedAt
	e.remaining = e.syncedRemainingLocked()
	e.state = StateRunning
	if e.backgrounded {
		e.state = StatePaused
	}
	e.syncDriverLocked()
	runID := e.runID
	hook, completion, done := e.maybeCompleteLocked()
	e.mu.Unlock()

	log.Debug().
		Uint64("run_id", runID).
		Dur("duration", duration).
		Time("started_at", startedAt).
		Msg("synced timer started")
	e.finish(hook, completion, done)
	return runID
}

// Pause freezes the countdown.
func (e *Engine) Pause() {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return
	}
	if e.mode == ModeSynced {
		e.remaining = e.syncedRemainingLocked()
	}
	e.state = StatePaused
	e.syncDriverLocked()
	e.mu.Unlock()

	e.notify()
}

// Resume continues a paused run. A synced run recomputes from the shared
// start instant and completes immediately when it has already elapsed.
func (e *Engine) Resume() {
	e.mu.Lock()
	if e.state != StatePaused {
		e.mu.Unlock()
		return
	}
	e.backgrounded = false
	if e.mode == ModeSynced {
		e.remaining = e.syncedRemainingLocked()
	}
	e.state = StateRunning
	e.syncDriverLocked()
	hook, completion, done := e.maybeCompleteLocked()
	e.mu.Unlock()

	e.finish(hook, completion, done)
}

// Reset abandons any run and returns to idle showing duration.
func (e *Engine) Reset(duration time.Duration) {
	e.mu.Lock()
	e.runID++
	e.state = StateIdle
	e.duration = duration
	e.remaining = duration
	e.startedAt = time.Time{}
	e.syncDriverLocked()
	e.mu.Unlock()

	e.notify()
}

// Sync aligns the engine with a room mirror.
func (e *Engine) Sync(room models.Room) {
	switch room.CurrentState {
	case models.RoomStateRunning:
		if room.TimerStartedAt == nil {
			return
		}
		e.StartSynced(room.FocusDurationTime(), *room.TimerStartedAt)

	case models.RoomStatePaused:
		e.mu.Lock()
		switch e.state {
		case StateRunning:
			e.mu.Unlock()
			e.Pause()
			return
		case StateIdle:
			e.mode = ModeSynced
			e.duration = room.FocusDurationTime()
			e.remaining = e.duration
			e.state = StatePaused
		}
		e.mu.Unlock()
		e.notify()

	case models.RoomStateBreak:
		e.resetSynced(room.BreakDurationTime())

	default:
		e.resetSynced(room.FocusDurationTime())
	}
}

func (e *Engine) resetSynced(duration time.Duration) {
	e.mu.Lock()
	e.mode = ModeSynced
	e.completedAnchor = time.Time{}
	e.mu.Unlock()
	e.Reset(duration)
}

// Attach arms the tick driver for an owner. Attaching twice keeps one driver.
func (e *Engine) Attach() {
	e.mu.Lock()
	e.attached = true
	e.syncDriverLocked()
	e.mu.Unlock()
}

// Detach tears the tick driver down.
func (e *Engine) Detach() {
	e.mu.Lock()
	e.attached = false
	e.syncDriverLocked()
	e.mu.Unlock()
}

// EnterBackground pauses a running countdown.
func (e *Engine) EnterBackground() {
	e.mu.Lock()
	running := e.state == StateRunning
	if running {
		e.backgrounded = true
	}
	e.mu.Unlock()

	if running {
		log.Debug().Msg("timer paused for background")
		e.Pause()
	}
}

// EnterForeground clears the background flag. Resuming is left to the caller.
func (e *Engine) EnterForeground() {
	e.mu.Lock()
	e.backgrounded = false
	e.mu.Unlock()
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Remaining returns the time left, derived from the wall clock for a
// running synced countdown.
func (e *Engine) Remaining() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateRunning && e.mode == ModeSynced {
		return e.syncedRemainingLocked()
	}
	return e.remaining
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Subscribe registers l for state changes and ticks.
func (e *Engine) Subscribe(l Listener) func() {
	e.listenersMu.Lock()
	e.nextID++
	id := e.nextID
	e.listeners = append(e.listeners, listenerEntry{id: id, fn: l})
	e.listenersMu.Unlock()

	return func() {
		e.listenersMu.Lock()
		defer e.listenersMu.Unlock()
		for i, entry := range e.listeners {
			if entry.id == id {
				e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
				return
			}
		}
	}
}

func (e *Engine) tick() {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return
	}
	switch e.mode {
	case ModeSynced:
		e.remaining = e.syncedRemainingLocked()
	default:
		e.remaining -= e.tickInterval
		if e.remaining < 0 {
			e.remaining = 0
		}
	}
	hook, completion, done := e.maybeCompleteLocked()
	e.mu.Unlock()

	e.finish(hook, completion, done)
}

// maybeCompleteLocked moves a running countdown at zero to Completed, once
// per run.
func (e *Engine) maybeCompleteLocked() (CompletionHook, Completion, bool) {
	if e.state != StateRunning || e.remaining > 0 || e.completedRun == e.runID {
		return nil, Completion{}, false
	}
	e.completedRun = e.runID
	if e.mode == ModeSynced {
		e.completedAnchor = e.startedAt
	}
	e.state = StateCompleted
	e.syncDriverLocked()
	return e.onComplete, Completion{RunID: e.runID, Mode: e.mode, Duration: e.duration}, true
}

// finish runs the hook for a completed run and then returns to idle unless
// the hook already moved the engine on.
func (e *Engine) finish(hook CompletionHook, c Completion, done bool) {
	if !done {
		e.notify()
		return
	}

	log.Info().Uint64("run_id", c.RunID).Str("mode", c.Mode.String()).Msg("timer completed")
	e.notify()
	if hook != nil {
		hook(c)
	}

	e.mu.Lock()
	idle := e.state == StateCompleted && e.runID == c.RunID
	if idle {
		e.state = StateIdle
		e.remaining = e.duration
	}
	e.mu.Unlock()

	if idle {
		e.notify()
	}
}

func (e *Engine) syncedRemainingLocked() time.Duration {
	remaining := e.duration - e.clock.Since(e.startedAt)
	if remaining < 0 {
		return 0
	}
	if remaining > e.duration {
		return e.duration
	}
	return remaining
}

// syncDriverLocked runs the driver iff the engine is running and attached.
func (e *Engine) syncDriverLocked() {
	want := e.attached && e.state == StateRunning
	switch {
	case want && e.ticker == nil:
		ticker := e.clock.NewTicker(e.tickInterval)
		stop := make(chan struct{})
		e.ticker, e.tickerStop = ticker, stop
		go func() {
			for {
				select {
				case <-stop:
					return
				case <-ticker.Chan():
					e.tick()
				}
			}
		}()
	case !want && e.ticker != nil:
		e.stopDriverLocked()
	}
}

func (e *Engine) stopDriverLocked() {
	if e.ticker == nil {
		return
	}
	e.ticker.Stop()
	close(e.tickerStop)
	e.ticker, e.tickerStop = nil, nil
}

func (e *Engine) snapshotLocked() Snapshot {
	s := Snapshot{
		State:     e.state.String(),
		Mode:      e.mode.String(),
		Duration:  e.duration,
		Remaining: e.remaining,
		RunID:     e.runID,
	}
	if e.state == StateRunning && e.mode == ModeSynced {
		s.Remaining = e.syncedRemainingLocked()
	}
	if !e.startedAt.IsZero() && e.state != StateIdle {
		t := e.startedAt
		s.StartedAt = &t
	}
	return s
}

func (e *Engine) notify() {
	snap := e.Snapshot()

	e.listenersMu.RLock()
	listeners := make([]Listener, len(e.listeners))
	for i, entry := range e.listeners {
		listeners[i] = entry.fn
	}
	e.listenersMu.RUnlock()

	for _, l := range listeners {
		l(snap)
	}
}
