package session

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/focusroom/go/internal/models"
	"github.com/mcdev12/focusroom/go/internal/notify"
	"github.com/mcdev12/focusroom/go/internal/timer"
)

type fakeAPI struct {
	mu          sync.Mutex
	next        int
	active      map[string]models.Session
	calls       []string
	startErr    error
	cancelErr   error
	listErr     error
	completeErr error
	startDelay  time.Duration
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{active: make(map[string]models.Session)}
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) ActiveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.active)
}

func (f *fakeAPI) StartSession(ctx context.Context, req models.StartSessionRequest) (*models.Session, error) {
	f.record("start")
	if f.startDelay > 0 {
		time.Sleep(f.startDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.next++
	s := models.Session{
		ID:              fmt.Sprintf("s%d", f.next),
		PlannedDuration: req.PlannedDuration,
		Type:            req.Type,
		RoomID:          req.RoomID,
	}
	f.active[s.ID] = s
	return &s, nil
}

func (f *fakeAPI) CompleteSession(ctx context.Context, sessionID string) (*models.Session, error) {
	f.record("complete:" + sessionID)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	s := f.active[sessionID]
	s.Completed = true
	delete(f.active, sessionID)
	return &s, nil
}

func (f *fakeAPI) CancelSession(ctx context.Context, sessionID string) error {
	f.record("cancel:" + sessionID)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	delete(f.active, sessionID)
	return nil
}

func (f *fakeAPI) ListActiveSessions(ctx context.Context) ([]models.Session, error) {
	f.record("list")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.Session
	for _, s := range f.active {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeAPI) GetSessionStats(ctx context.Context) (*models.SessionStats, error) {
	f.record("stats")
	return &models.SessionStats{TotalFocusMinutes: 25, CurrentStreak: 1}, nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	scheduled []notify.Notification
	cancels   int
}

func (n *fakeNotifier) Schedule(ctx context.Context, notification notify.Notification) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.scheduled = append(n.scheduled, notification)
	return "n1", nil
}

func (n *fakeNotifier) CancelAll(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancels++
	return nil
}

type harness struct {
	api      *fakeAPI
	notifier *fakeNotifier
	clock    *clockwork.FakeClock
	engine   *timer.Engine
	c        *Coordinator
}

func newHarness(tickInterval time.Duration) *harness {
	h := &harness{
		api:      newFakeAPI(),
		notifier: &fakeNotifier{},
		clock:    clockwork.NewFakeClockAt(time.Date(2025, 4, 2, 8, 0, 0, 0, time.UTC)),
	}
	h.engine = timer.NewEngine(h.clock, tickInterval)
	h.c = NewCoordinator(h.api, h.engine, h.notifier, h.clock)
	return h
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

func TestStart_CancelsLocalAndOrphanedSessionsFirst(t *testing.T) {
	h := newHarness(time.Second)
	ctx := context.Background()

	first, err := h.c.Start(ctx, 25, StartOptions{})
	if err != nil {
		t.Fatalf("first Start() error = %v", err)
	}

	h.api.mu.Lock()
	h.api.active["orphan"] = models.Session{ID: "orphan"}
	h.api.calls = nil
	h.api.mu.Unlock()

	second, err := h.c.Start(ctx, 25, StartOptions{})
	if err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	want := []string{"cancel:" + first.ID, "list", "cancel:orphan", "start"}
	if got := h.api.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if got := h.api.ActiveCount(); got != 1 {
		t.Errorf("active sessions = %d, want 1", got)
	}
	if cur := h.c.Current(); cur == nil || cur.ID != second.ID {
		t.Errorf("Current() = %+v, want %s", cur, second.ID)
	}
	if h.engine.State() != timer.StateRunning || h.engine.Remaining() != 25*time.Minute {
		t.Errorf("engine = %s %v", h.engine.State(), h.engine.Remaining())
	}
}

func TestStart_SkipsSessionAlreadyCancelled(t *testing.T) {
	h := newHarness(time.Second)
	ctx := context.Background()

	if _, err := h.c.Start(ctx, 25, StartOptions{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	h.api.mu.Lock()
	h.api.cancelErr = errors.New("server unavailable")
	h.api.calls = nil
	h.api.mu.Unlock()

	if _, err := h.c.Start(ctx, 25, StartOptions{}); err != nil {
		t.Fatalf("Start() with failing cancels error = %v", err)
	}

	want := []string{"cancel:s1", "list", "start"}
	if got := h.api.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestStart_FailureLeavesEngineIdle(t *testing.T) {
	h := newHarness(time.Second)
	ctx := context.Background()

	if _, err := h.c.Start(ctx, 25, StartOptions{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	rejected := errors.New("conflict")
	h.api.mu.Lock()
	h.api.startErr = rejected
	h.api.mu.Unlock()

	_, err := h.c.Start(ctx, 30, StartOptions{})
	if !errors.Is(err, rejected) {
		t.Fatalf("Start() error = %v, want the server rejection", err)
	}
	if h.c.Current() != nil {
		t.Error("Current() is set after a failed start")
	}
	if h.engine.State() != timer.StateIdle {
		t.Errorf("engine state = %s, want idle", h.engine.State())
	}
	if got := h.engine.Remaining(); got != 30*time.Minute {
		t.Errorf("Remaining() = %v, want 30m", got)
	}
}

func TestStart_RejectsDurationBeforeNetwork(t *testing.T) {
	h := newHarness(time.Second)

	for _, minutes := range []int{0, -5, 181} {
		if _, err := h.c.Start(context.Background(), minutes, StartOptions{}); !errors.Is(err, ErrInvalidDuration) {
			t.Errorf("Start(%d) error = %v, want ErrInvalidDuration", minutes, err)
		}
	}
	if calls := h.api.Calls(); len(calls) != 0 {
		t.Errorf("calls = %v, want none", calls)
	}
}

func TestStart_ListFailureStillStarts(t *testing.T) {
	h := newHarness(time.Second)
	h.api.listErr = errors.New("timeout")
	roomID := "room-1"

	s, err := h.c.Start(context.Background(), 25, StartOptions{RoomID: &roomID})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s.RoomID == nil || *s.RoomID != roomID {
		t.Errorf("session room = %v, want %s", s.RoomID, roomID)
	}
}

func TestStart_ConcurrentStartsKeepOneActive(t *testing.T) {
	h := newHarness(time.Second)
	h.api.startDelay = 5 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.c.Start(context.Background(), 25, StartOptions{}); err != nil {
				t.Errorf("Start() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := h.api.ActiveCount(); got != 1 {
		t.Errorf("active sessions = %d, want 1", got)
	}
}

func TestStart_SchedulesNotificationForType(t *testing.T) {
	h := newHarness(time.Second)
	if err := h.c.SetSessionType(models.SessionTypeBreak); err != nil {
		t.Fatalf("SetSessionType() error = %v", err)
	}

	if _, err := h.c.Start(context.Background(), 5, StartOptions{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if len(h.notifier.scheduled) != 1 {
		t.Fatalf("scheduled = %d, want 1", len(h.notifier.scheduled))
	}
	n := h.notifier.scheduled[0]
	if n.Title != notify.TitleBreakOver || n.Body != notify.BodyTimerFinished {
		t.Errorf("notification = %+v", n)
	}
	if want := h.clock.Now().Add(5 * time.Minute); !n.FireAt.Equal(want) {
		t.Errorf("FireAt = %v, want %v", n.FireAt, want)
	}
}

func TestStop_CancelsAndRestoresFullDuration(t *testing.T) {
	h := newHarness(time.Second)
	ctx := context.Background()

	s, err := h.c.Start(ctx, 40, StartOptions{})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	h.engine.Pause()

	if err := h.c.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	calls := h.api.Calls()
	if calls[len(calls)-1] != "cancel:"+s.ID {
		t.Errorf("last call = %s, want cancel of %s", calls[len(calls)-1], s.ID)
	}
	if h.engine.State() != timer.StateIdle || h.engine.Remaining() != 40*time.Minute {
		t.Errorf("engine = %s %v, want idle 40m", h.engine.State(), h.engine.Remaining())
	}
	if h.notifier.cancels != 1 {
		t.Errorf("notification clears = %d, want 1", h.notifier.cancels)
	}
	if h.c.Current() != nil {
		t.Error("Current() set after Stop")
	}
}

func TestCompletion_CompletesAndRefreshesStats(t *testing.T) {
	h := newHarness(time.Minute)
	h.engine.Attach()

	s, err := h.c.Start(context.Background(), 1, StartOptions{})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	blockCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.clock.BlockUntilContext(blockCtx, 1); err != nil {
		t.Fatalf("tick driver not armed: %v", err)
	}
	h.clock.Advance(time.Minute)

	eventually(t, func() bool { return h.c.Stats() != nil }, "stats refreshed")
	calls := h.api.Calls()
	if calls[len(calls)-2] != "complete:"+s.ID || calls[len(calls)-1] != "stats" {
		t.Errorf("calls = %v", calls)
	}
	eventually(t, func() bool { return h.engine.State() == timer.StateIdle }, "engine idle")
	if got := h.engine.Remaining(); got != time.Minute {
		t.Errorf("Remaining() = %v, want the full minute", got)
	}
	if h.c.Current() != nil {
		t.Error("Current() set after completion")
	}
}

func TestCompletion_ServerFailureStillGoesIdle(t *testing.T) {
	h := newHarness(time.Minute)
	h.api.completeErr = errors.New("bad gateway")
	h.engine.Attach()

	if _, err := h.c.Start(context.Background(), 1, StartOptions{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	blockCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.clock.BlockUntilContext(blockCtx, 1); err != nil {
		t.Fatalf("tick driver not armed: %v", err)
	}
	h.clock.Advance(time.Minute)

	eventually(t, func() bool { return h.engine.State() == timer.StateIdle && h.c.Current() == nil }, "idle after failed complete")
	for _, call := range h.api.Calls() {
		if call == "stats" {
			t.Error("stats refreshed after a failed complete")
		}
	}
}

func TestSetSessionType(t *testing.T) {
	h := newHarness(time.Second)

	if err := h.c.SetSessionType(models.SessionTypeBreak); err != nil {
		t.Fatalf("SetSessionType(break) error = %v", err)
	}
	if got := h.engine.Remaining(); got != 5*time.Minute {
		t.Errorf("Remaining() = %v, want 5m", got)
	}
	if err := h.c.SetSessionType(models.SessionTypeFocus); err != nil {
		t.Fatalf("SetSessionType(focus) error = %v", err)
	}
	if got := h.engine.Remaining(); got != 25*time.Minute {
		t.Errorf("Remaining() = %v, want 25m", got)
	}
	if err := h.c.SetSessionType("nap"); !errors.Is(err, ErrInvalidSessionType) {
		t.Errorf("SetSessionType(nap) error = %v", err)
	}
}
