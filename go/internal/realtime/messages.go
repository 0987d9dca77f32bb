package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is the envelope for every frame on the room channel.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MessageType identifies the payload carried by a Message.
type MessageType string

const (
	MessageTypeRoomState         MessageType = "room_state"
	MessageTypeParticipantJoined MessageType = "participant_joined"
	MessageTypeParticipantLeft   MessageType = "participant_left"
	MessageTypeSessionCompleted  MessageType = "session_completed"
	MessageTypePing              MessageType = "ping"
	MessageTypePong              MessageType = "pong"
)

// RoomStatePayload carries a server state transition.
type RoomStatePayload struct {
	State          string     `json:"state"`
	TimerStartedAt *time.Time `json:"timer_started_at"`
}

type ParticipantJoinedPayload struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

type ParticipantLeftPayload struct {
	UserID int64 `json:"user_id"`
}

type SessionCompletedPayload struct {
	UserID    int64  `json:"user_id"`
	SessionID string `json:"session_id"`
}

// NewMessage encodes payload into an envelope of the given type.
func NewMessage(t MessageType, payload interface{}) (Message, error) {
	if payload == nil {
		payload = struct{}{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal %s payload: %w", t, err)
	}
	return Message{Type: t, Payload: data}, nil
}

// PingMessage is the heartbeat frame.
func PingMessage() Message {
	return Message{Type: MessageTypePing, Payload: json.RawMessage(`{}`)}
}

// ParsePayload decodes the payload of a known message type. Unknown types
// and payload-less types return (nil, nil).
func ParsePayload(msg Message) (interface{}, error) {
	switch msg.Type {
	case MessageTypeRoomState:
		var payload RoomStatePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case MessageTypeParticipantJoined:
		var payload ParticipantJoinedPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case MessageTypeParticipantLeft:
		var payload ParticipantLeftPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case MessageTypeSessionCompleted:
		var payload SessionCompletedPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, nil
	}
}
