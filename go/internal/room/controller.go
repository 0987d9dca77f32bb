package room

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/focusroom/go/clients/focus_api_client"
	"github.com/mcdev12/focusroom/go/internal/models"
	"github.com/mcdev12/focusroom/go/internal/realtime"
)

const resyncTimeout = 15 * time.Second

// API is the REST surface the controller drives.
type API interface {
	CreateRoom(ctx context.Context, req focus_api_client.CreateRoomRequest) (*models.Room, error)
	JoinRoom(ctx context.Context, roomCode string) (*models.Room, error)
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	GetParticipants(ctx context.Context, roomID string) ([]models.Participant, error)
	UpdateRoomState(ctx context.Context, roomID string, state models.RoomState) (*models.Room, error)
	LeaveRoom(ctx context.Context, roomID string) error
	KickParticipant(ctx context.Context, roomID string, userID int64) error
	DeleteRoom(ctx context.Context, roomID string) error
	GetMyRooms(ctx context.Context) ([]models.Room, error)
	GetActiveRooms(ctx context.Context) ([]models.Room, error)
}

// Connection is the realtime channel the controller binds to a joined room.
type Connection interface {
	Connect(ctx context.Context, roomID string) error
	Disconnect()
	OnMessage(h realtime.Handler) func()
	OnReconnect(h realtime.ReconnectHandler) func()
}

// Snapshot is a read-only copy of the controller's mirror.
type Snapshot struct {
	Room         *models.Room         `json:"room,omitempty"`
	Participants []models.Participant `json:"participants"`
	Joined       bool                 `json:"joined"`
}

type Listener func(Snapshot)

type listenerEntry struct {
	id uint64
	fn Listener
}

// Controller owns the room mirror. The mirror changes only through server
// responses and folded inbound messages.
type Controller struct {
	api   API
	conn  Connection
	clock clockwork.Clock

	mu          sync.Mutex
	mirror      *Mirror
	joined      bool
	unsubscribe []func()
	// Bumped by each folded message that changed the mirror, so a refresh
	// can tell what moved while its fetch was in flight.
	stateFolds       uint64
	participantFolds uint64

	listenersMu sync.RWMutex
	nextID      uint64
	listeners   []listenerEntry
}

func NewController(api API, conn Connection, clock clockwork.Clock) *Controller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Controller{
		api:   api,
		conn:  conn,
		clock: clock,
	}
}

// Create validates and creates a room. It does not join it.
func (c *Controller) Create(ctx context.Context, name string, focusMinutes, breakMinutes int) (*models.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if err := ValidateDurations(focusMinutes, breakMinutes); err != nil {
		return nil, err
	}

	room, err := c.api.CreateRoom(ctx, focus_api_client.CreateRoomRequest{
		Name:          name,
		FocusDuration: focusMinutes,
		BreakDuration: breakMinutes,
	})
	if err != nil {
		return nil, mapAPIError(err)
	}

	log.Info().
		Str("room_id", room.ID).
		Str("room_code", room.RoomCode).
		Msg("room created")
	return room, nil
}

// Join joins the room with the given code, loads its participants and opens
// the realtime channel. On failure the controller is left out of any room.
func (c *Controller) Join(ctx context.Context, roomCode string) (*models.Room, error) {
	code, err := NormalizeRoomCode(roomCode)
	if err != nil {
		return nil, err
	}

	if c.current() != "" {
		if err := c.Leave(ctx); err != nil {
			return nil, err
		}
	}

	room, err := c.api.JoinRoom(ctx, code)
	if err != nil {
		return nil, mapAPIError(err)
	}

	participants, err := c.api.GetParticipants(ctx, room.ID)
	if err != nil {
		c.bestEffortLeave(room.ID)
		return nil, fmt.Errorf("failed to load participants: %w", mapAPIError(err))
	}

	normalized := room.Clone()
	normalized.SetState(room.CurrentState, room.TimerStartedAt, c.clock.Now())

	roomID := room.ID
	c.mu.Lock()
	c.mirror = &Mirror{Room: *normalized, Participants: participants}
	c.joined = true
	c.unsubscribe = []func(){
		c.conn.OnMessage(func(msg realtime.Message) { c.apply(roomID, msg) }),
		c.conn.OnReconnect(func(id string) { c.resync(id) }),
	}
	c.mu.Unlock()

	if err := c.conn.Connect(ctx, roomID); err != nil {
		c.detach(roomID)
		c.bestEffortLeave(roomID)
		return nil, fmt.Errorf("failed to open room channel: %w", err)
	}

	log.Info().
		Str("room_id", roomID).
		Str("room_code", code).
		Int("participants", len(participants)).
		Msg("joined room")

	c.notify()
	return room, nil
}

// View loads a room and its participants without joining it. A joined
// room's mirror is left untouched.
func (c *Controller) View(ctx context.Context, roomID string) (Snapshot, error) {
	room, err := c.api.GetRoom(ctx, roomID)
	if err != nil {
		return Snapshot{}, mapAPIError(err)
	}
	participants, err := c.api.GetParticipants(ctx, roomID)
	if err != nil {
		return Snapshot{}, mapAPIError(err)
	}

	normalized := room.Clone()
	normalized.SetState(room.CurrentState, room.TimerStartedAt, c.clock.Now())
	m := &Mirror{Room: *normalized, Participants: participants}

	c.mu.Lock()
	viewing := !c.joined
	if viewing {
		c.mirror = m
	}
	c.mu.Unlock()

	if viewing {
		c.notify()
	}
	return Snapshot{Room: m.Room.Clone(), Participants: m.Clone().Participants}, nil
}

// Leave exits the current room. Local state is always cleared; the leave
// call itself is best-effort.
func (c *Controller) Leave(ctx context.Context) error {
	c.mu.Lock()
	if c.mirror == nil {
		c.mu.Unlock()
		return nil
	}
	roomID := c.mirror.Room.ID
	joined := c.joined
	c.mu.Unlock()

	if joined {
		if err := c.api.LeaveRoom(ctx, roomID); err != nil {
			log.Warn().Err(err).Str("room_id", roomID).Msg("leave call failed, clearing local room anyway")
		}
	}

	c.detach(roomID)
	log.Info().Str("room_id", roomID).Msg("left room")
	return nil
}

// UpdateState asks the server to change the shared state. The mirror only
// reflects the server's answer, never the request.
func (c *Controller) UpdateState(ctx context.Context, state models.RoomState) (*models.Room, error) {
	if !state.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidState, state)
	}

	roomID := c.current()
	if roomID == "" {
		return nil, ErrNotInRoom
	}

	room, err := c.api.UpdateRoomState(ctx, roomID, state)
	if err != nil {
		return nil, mapAPIError(err)
	}

	normalized := room.Clone()
	normalized.SetState(room.CurrentState, room.TimerStartedAt, c.clock.Now())

	c.mu.Lock()
	applied := c.mirror != nil && c.mirror.Room.ID == roomID
	if applied {
		c.mirror.Room = *normalized
	}
	c.mu.Unlock()

	if applied {
		c.notify()
	}
	return normalized.Clone(), nil
}

// Refresh replaces the mirror with the server's current room and participants.
func (c *Controller) Refresh(ctx context.Context) error {
	roomID := c.current()
	if roomID == "" {
		return ErrNotInRoom
	}

	c.mu.Lock()
	stateFolds, participantFolds := c.stateFolds, c.participantFolds
	c.mu.Unlock()

	room, err := c.api.GetRoom(ctx, roomID)
	if err != nil {
		return mapAPIError(err)
	}
	participants, err := c.api.GetParticipants(ctx, roomID)
	if err != nil {
		return mapAPIError(err)
	}

	normalized := room.Clone()
	normalized.SetState(room.CurrentState, room.TimerStartedAt, c.clock.Now())

	c.mu.Lock()
	applied := c.mirror != nil && c.mirror.Room.ID == roomID
	if applied {
		next := &Mirror{Room: *normalized, Participants: participants}
		// A message folded during the fetch is newer than the response.
		if c.stateFolds != stateFolds {
			next.Room.CurrentState = c.mirror.Room.CurrentState
			next.Room.TimerStartedAt = c.mirror.Room.TimerStartedAt
		}
		if c.participantFolds != participantFolds {
			next.Participants = c.mirror.Participants
		}
		c.mirror = next
	}
	c.mu.Unlock()

	if applied {
		c.notify()
	}
	return nil
}

// Kick removes a participant from the current room.
func (c *Controller) Kick(ctx context.Context, userID int64) error {
	roomID := c.current()
	if roomID == "" {
		return ErrNotInRoom
	}

	if err := c.api.KickParticipant(ctx, roomID, userID); err != nil {
		return mapAPIError(err)
	}

	c.mu.Lock()
	changed := c.mirror != nil && c.mirror.Room.ID == roomID && c.mirror.removeParticipant(userID)
	c.mu.Unlock()

	if changed {
		c.notify()
	}
	return nil
}

// Delete deletes a room. Deleting the current room also leaves it locally.
func (c *Controller) Delete(ctx context.Context, roomID string) error {
	if err := c.api.DeleteRoom(ctx, roomID); err != nil {
		return mapAPIError(err)
	}
	if c.current() == roomID {
		c.detach(roomID)
	}
	return nil
}

func (c *Controller) ListMine(ctx context.Context) ([]models.Room, error) {
	rooms, err := c.api.GetMyRooms(ctx)
	if err != nil {
		return nil, mapAPIError(err)
	}
	return rooms, nil
}

func (c *Controller) ListActive(ctx context.Context) ([]models.Room, error) {
	rooms, err := c.api.GetActiveRooms(ctx)
	if err != nil {
		return nil, mapAPIError(err)
	}
	return rooms, nil
}

// Snapshot returns a copy of the mirror.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers l for mirror changes and returns an unsubscribe func.
func (c *Controller) Subscribe(l Listener) func() {
	c.listenersMu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, listenerEntry{id: id, fn: l})
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		defer c.listenersMu.Unlock()
		for i, e := range c.listeners {
			if e.id == id {
				c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	if c.mirror == nil {
		return Snapshot{}
	}
	m := c.mirror.Clone()
	return Snapshot{Room: &m.Room, Participants: m.Participants, Joined: c.joined}
}

func (c *Controller) current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mirror == nil {
		return ""
	}
	return c.mirror.Room.ID
}

// apply folds an inbound message into the mirror of roomID.
func (c *Controller) apply(roomID string, msg realtime.Message) {
	c.mu.Lock()
	if c.mirror == nil || c.mirror.Room.ID != roomID {
		c.mu.Unlock()
		return
	}
	next := c.mirror.Clone()
	changed, err := Fold(next, msg, c.clock.Now())
	if err != nil {
		c.mu.Unlock()
		log.Warn().Err(err).Str("room_id", roomID).Str("type", string(msg.Type)).Msg("ignoring malformed room message")
		return
	}
	if changed {
		c.mirror = next
		switch msg.Type {
		case realtime.MessageTypeRoomState:
			c.stateFolds++
		case realtime.MessageTypeParticipantJoined, realtime.MessageTypeParticipantLeft:
			c.participantFolds++
		}
	}
	c.mu.Unlock()

	if changed {
		log.Debug().Str("room_id", roomID).Str("type", string(msg.Type)).Msg("room mirror updated")
		c.notify()
	}
}

// resync refetches authoritative state after the channel re-opens; messages
// missed during the outage are never replayed.
func (c *Controller) resync(roomID string) {
	if c.current() != roomID {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
	defer cancel()
	if err := c.Refresh(ctx); err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Msg("failed to resync room after reconnect")
		return
	}
	log.Info().Str("room_id", roomID).Msg("room resynced after reconnect")
}

// detach clears the mirror for roomID, unregisters handlers and closes the channel.
func (c *Controller) detach(roomID string) {
	c.mu.Lock()
	if c.mirror == nil || c.mirror.Room.ID != roomID {
		c.mu.Unlock()
		return
	}
	joined := c.joined
	unsubscribe := c.unsubscribe
	c.mirror = nil
	c.joined = false
	c.unsubscribe = nil
	c.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
	if joined {
		c.conn.Disconnect()
	}
	c.notify()
}

func (c *Controller) bestEffortLeave(roomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
	defer cancel()
	if err := c.api.LeaveRoom(ctx, roomID); err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Msg("failed to leave room after join failure")
	}
}

func (c *Controller) notify() {
	snap := c.Snapshot()

	c.listenersMu.RLock()
	listeners := make([]Listener, len(c.listeners))
	for i, e := range c.listeners {
		listeners[i] = e.fn
	}
	c.listenersMu.RUnlock()

	for _, l := range listeners {
		l(snap)
	}
}
