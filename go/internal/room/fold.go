package room

import (
	"fmt"
	"time"

	"github.com/mcdev12/focusroom/go/internal/models"
	"github.com/mcdev12/focusroom/go/internal/realtime"
)

// Mirror is the local copy of one room and its participant set.
type Mirror struct {
	Room         models.Room
	Participants []models.Participant
}

func (m *Mirror) Clone() *Mirror {
	c := &Mirror{Room: *m.Room.Clone()}
	c.Participants = append([]models.Participant(nil), m.Participants...)
	return c
}

func (m *Mirror) HasParticipant(userID int64) bool {
	return m.participantIndex(userID) >= 0
}

func (m *Mirror) participantIndex(userID int64) int {
	for i, p := range m.Participants {
		if p.UserID == userID {
			return i
		}
	}
	return -1
}

// Fold applies one inbound message to m and reports whether m changed.
// Unknown message types are ignored.
func Fold(m *Mirror, msg realtime.Message, now time.Time) (bool, error) {
	payload, err := realtime.ParsePayload(msg)
	if err != nil {
		return false, fmt.Errorf("failed to parse %s payload: %w", msg.Type, err)
	}

	switch p := payload.(type) {
	case realtime.RoomStatePayload:
		state := models.RoomState(p.State)
		if !state.Valid() {
			return false, fmt.Errorf("%w: %q", ErrInvalidState, p.State)
		}
		before := *m.Room.Clone()
		m.Room.SetState(state, p.TimerStartedAt, now)
		return !sameState(before, m.Room), nil

	case realtime.ParticipantJoinedPayload:
		if m.HasParticipant(p.UserID) {
			return false, nil
		}
		m.Participants = append(m.Participants, models.Participant{
			UserID:   p.UserID,
			Username: p.Username,
			JoinedAt: now,
		})
		return true, nil

	case realtime.ParticipantLeftPayload:
		return m.removeParticipant(p.UserID), nil

	default:
		return false, nil
	}
}

func (m *Mirror) removeParticipant(userID int64) bool {
	i := m.participantIndex(userID)
	if i < 0 {
		return false
	}
	m.Participants = append(m.Participants[:i:i], m.Participants[i+1:]...)
	return true
}

func sameState(a, b models.Room) bool {
	if a.CurrentState != b.CurrentState {
		return false
	}
	if a.TimerStartedAt == nil || b.TimerStartedAt == nil {
		return a.TimerStartedAt == nil && b.TimerStartedAt == nil
	}
	return a.TimerStartedAt.Equal(*b.TimerStartedAt)
}
