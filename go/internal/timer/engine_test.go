package timer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/focusroom/go/internal/models"
)

func (e *Engine) driverActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ticker != nil
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

func blockUntil(t *testing.T, clock *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, n); err != nil {
		t.Fatalf("BlockUntilContext(%d) error = %v", n, err)
	}
}

func newTestEngine() (*Engine, *clockwork.FakeClock, *atomic.Int32) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	e := NewEngine(clock, time.Second)
	completions := &atomic.Int32{}
	e.OnComplete(func(Completion) { completions.Add(1) })
	return e, clock, completions
}

func TestEngine_SoloCountsDownAndCompletesOnce(t *testing.T) {
	e, clock, completions := newTestEngine()
	e.Attach()
	e.Start(3 * time.Second)
	blockUntil(t, clock, 1)

	for _, want := range []time.Duration{2 * time.Second, time.Second} {
		clock.Advance(time.Second)
		eventually(t, func() bool { return e.Remaining() == want }, "remaining "+want.String())
	}

	clock.Advance(time.Second)
	eventually(t, func() bool { return completions.Load() == 1 }, "completion")
	eventually(t, func() bool { return e.State() == StateIdle }, "idle after completion")

	if got := e.Remaining(); got != 3*time.Second {
		t.Errorf("Remaining() after completion = %v, want full duration", got)
	}
	if e.driverActive() {
		t.Error("driver still active after completion")
	}

	clock.Advance(5 * time.Second)
	time.Sleep(10 * time.Millisecond)
	if got := completions.Load(); got != 1 {
		t.Errorf("completions = %d, want 1", got)
	}
}

func TestEngine_PauseFreezesAndResumeContinues(t *testing.T) {
	e, clock, _ := newTestEngine()
	e.Attach()
	e.Start(10 * time.Second)
	blockUntil(t, clock, 1)

	clock.Advance(time.Second)
	eventually(t, func() bool { return e.Remaining() == 9*time.Second }, "first tick")

	e.Pause()
	if e.State() != StatePaused || e.driverActive() {
		t.Fatalf("after Pause: state = %s, driver = %v", e.State(), e.driverActive())
	}
	clock.Advance(30 * time.Second)
	if got := e.Remaining(); got != 9*time.Second {
		t.Fatalf("Remaining() while paused = %v, want 9s", got)
	}

	e.Resume()
	blockUntil(t, clock, 1)
	clock.Advance(time.Second)
	eventually(t, func() bool { return e.Remaining() == 8*time.Second }, "tick after resume")
}

func TestEngine_DriverRequiresRunningAndAttached(t *testing.T) {
	e, clock, _ := newTestEngine()

	e.Start(time.Minute)
	if e.driverActive() {
		t.Fatal("driver active while detached")
	}
	clock.Advance(5 * time.Second)
	if got := e.Remaining(); got != time.Minute {
		t.Fatalf("Remaining() while detached = %v, want 1m", got)
	}

	e.Attach()
	e.Attach()
	if !e.driverActive() {
		t.Fatal("driver inactive while running and attached")
	}
	blockUntil(t, clock, 1)
	clock.Advance(time.Second)
	eventually(t, func() bool { return e.Remaining() == 59*time.Second }, "single tick")
	time.Sleep(10 * time.Millisecond)
	if got := e.Remaining(); got != 59*time.Second {
		t.Errorf("Remaining() = %v, want 59s from one driver", got)
	}

	e.Detach()
	if e.driverActive() {
		t.Error("driver active after Detach")
	}

	e.Attach()
	e.Reset(time.Minute)
	if e.driverActive() {
		t.Error("driver active while idle")
	}
}

func TestEngine_BackgroundedSyncedRunCompletesOnResume(t *testing.T) {
	e, clock, completions := newTestEngine()
	e.Attach()

	started := clock.Now()
	e.StartSynced(1500*time.Second, started)
	if e.State() != StateRunning {
		t.Fatalf("state = %s, want running", e.State())
	}

	e.EnterBackground()
	if e.State() != StatePaused {
		t.Fatalf("state after background = %s, want paused", e.State())
	}

	clock.Advance(1500 * time.Second)
	if got := completions.Load(); got != 0 {
		t.Fatalf("completed while backgrounded: %d", got)
	}

	e.EnterForeground()
	e.Resume()

	if got := completions.Load(); got != 1 {
		t.Fatalf("completions = %d, want 1", got)
	}
	if e.State() != StateIdle {
		t.Errorf("state = %s, want idle", e.State())
	}

	e.Resume()
	e.StartSynced(1500*time.Second, started)
	e.Sync(models.Room{
		CurrentState:   models.RoomStateRunning,
		TimerStartedAt: &started,
		FocusDuration:  25,
		BreakDuration:  5,
	})
	if got := completions.Load(); got != 1 {
		t.Errorf("completions after re-arming the same run = %d, want 1", got)
	}
	if e.State() != StateIdle {
		t.Errorf("state = %s, want idle", e.State())
	}
}

func TestEngine_SyncedRemainingFollowsClock(t *testing.T) {
	e, clock, _ := newTestEngine()

	started := clock.Now().Add(-5 * time.Minute)
	e.StartSynced(25*time.Minute, started)
	if got := e.Remaining(); got != 20*time.Minute {
		t.Fatalf("Remaining() = %v, want 20m", got)
	}

	clock.Advance(time.Minute)
	if got := e.Remaining(); got != 19*time.Minute {
		t.Errorf("Remaining() = %v, want 19m", got)
	}

	runID := e.Snapshot().RunID
	if again := e.StartSynced(25*time.Minute, started); again != runID {
		t.Errorf("re-arming the active run changed run id %d -> %d", runID, again)
	}
}

func TestEngine_StartSyncedAlreadyElapsedCompletesImmediately(t *testing.T) {
	e, clock, completions := newTestEngine()

	e.StartSynced(25*time.Minute, clock.Now().Add(-time.Hour))

	if got := completions.Load(); got != 1 {
		t.Errorf("completions = %d, want 1", got)
	}
	if e.State() != StateIdle {
		t.Errorf("state = %s, want idle", e.State())
	}
}

func TestEngine_SyncFollowsRoomState(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	started := now.Add(-10 * time.Minute)

	tests := []struct {
		name          string
		state         models.RoomState
		startedAt     *time.Time
		wantState     State
		wantRemaining time.Duration
	}{
		{"running", models.RoomStateRunning, &started, StateRunning, 15 * time.Minute},
		{"paused", models.RoomStatePaused, nil, StatePaused, 25 * time.Minute},
		{"break", models.RoomStateBreak, nil, StateIdle, 5 * time.Minute},
		{"idle", models.RoomStateIdle, nil, StateIdle, 25 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := clockwork.NewFakeClockAt(now)
			e := NewEngine(clock, time.Second)
			e.Sync(models.Room{
				CurrentState:   tt.state,
				TimerStartedAt: tt.startedAt,
				FocusDuration:  25,
				BreakDuration:  5,
			})
			if got := e.State(); got != tt.wantState {
				t.Errorf("state = %s, want %s", got, tt.wantState)
			}
			if got := e.Remaining(); got != tt.wantRemaining {
				t.Errorf("Remaining() = %v, want %v", got, tt.wantRemaining)
			}
		})
	}
}

func TestEngine_SyncPausedFreezesRunningTimer(t *testing.T) {
	e, clock, _ := newTestEngine()
	started := clock.Now()
	room := models.Room{CurrentState: models.RoomStateRunning, TimerStartedAt: &started, FocusDuration: 25, BreakDuration: 5}
	e.Sync(room)

	clock.Advance(5 * time.Minute)
	room.CurrentState = models.RoomStatePaused
	room.TimerStartedAt = nil
	e.Sync(room)

	clock.Advance(5 * time.Minute)
	if got := e.Remaining(); got != 20*time.Minute {
		t.Errorf("Remaining() = %v, want 20m frozen at pause", got)
	}
}

func TestEngine_ResetInsideHookWins(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := NewEngine(clock, time.Second)
	e.OnComplete(func(Completion) { e.Reset(10 * time.Minute) })

	e.StartSynced(time.Minute, clock.Now().Add(-2*time.Minute))

	if got := e.Remaining(); got != 10*time.Minute {
		t.Errorf("Remaining() = %v, want the duration set by the hook", got)
	}
}

func TestEngine_SubscribeReceivesSnapshots(t *testing.T) {
	e, _, _ := newTestEngine()
	var states []string
	unsubscribe := e.Subscribe(func(s Snapshot) { states = append(states, s.State) })

	e.Start(time.Minute)
	e.Pause()
	unsubscribe()
	e.Resume()

	if len(states) != 2 || states[0] != "running" || states[1] != "paused" {
		t.Errorf("states = %v, want [running paused]", states)
	}
}
