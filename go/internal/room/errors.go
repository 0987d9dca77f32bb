package room

import "errors"

var (
	ErrInvalidRoomCode = errors.New("room code must be 6 letters or digits")
	ErrInvalidDuration = errors.New("duration out of range")
	ErrInvalidName     = errors.New("room name is required")
	ErrInvalidState    = errors.New("invalid room state")
	ErrNotInRoom       = errors.New("not in a room")
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomFull        = errors.New("room is full")
	ErrForbidden       = errors.New("only the room creator can do that")
)
