package focus_api_client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mcdev12/focusroom/go/clients"
	"github.com/mcdev12/focusroom/go/internal/models"
)

type CreateRoomRequest struct {
	Name          string `json:"name"`
	FocusDuration int    `json:"timer_duration"`
	BreakDuration int    `json:"break_duration"`
}

type JoinRoomRequest struct {
	RoomCode string `json:"room_code"`
}

type UpdateRoomStateRequest struct {
	State models.RoomState `json:"state"`
}

func (c *FocusApiClient) CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.Room, error) {
	var room models.Room
	if err := c.Post(ctx, RoomsEndpoint, req, &room); err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	return &room, nil
}

func (c *FocusApiClient) JoinRoom(ctx context.Context, roomCode string) (*models.Room, error) {
	var room models.Room
	if err := c.Post(ctx, JoinRoomEndpoint, JoinRoomRequest{RoomCode: roomCode}, &room); err != nil {
		return nil, fmt.Errorf("failed to join room: %w", err)
	}
	return &room, nil
}

func (c *FocusApiClient) GetActiveRooms(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	if err := c.Get(ctx, ActiveRoomsEndpoint, &rooms); err != nil {
		return nil, fmt.Errorf("failed to get active rooms: %w", err)
	}
	return rooms, nil
}

func (c *FocusApiClient) GetMyRooms(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	if err := c.Get(ctx, MyRoomsEndpoint, &rooms); err != nil {
		return nil, fmt.Errorf("failed to get my rooms: %w", err)
	}
	return rooms, nil
}

func (c *FocusApiClient) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	var room models.Room
	if err := c.Get(ctx, RoomByIDEndpoint(roomID), &room); err != nil {
		return nil, fmt.Errorf("failed to get room %s: %w", roomID, err)
	}
	return &room, nil
}

func (c *FocusApiClient) GetParticipants(ctx context.Context, roomID string) ([]models.Participant, error) {
	var participants []models.Participant
	if err := c.Get(ctx, RoomParticipantsEndpoint(roomID), &participants); err != nil {
		return nil, fmt.Errorf("failed to get participants for room %s: %w", roomID, err)
	}
	return participants, nil
}

func (c *FocusApiClient) UpdateRoomState(ctx context.Context, roomID string, state models.RoomState) (*models.Room, error) {
	var room models.Room
	if err := c.Put(ctx, RoomStateEndpoint(roomID), UpdateRoomStateRequest{State: state}, &room); err != nil {
		return nil, fmt.Errorf("failed to update room state: %w", err)
	}
	return &room, nil
}

func (c *FocusApiClient) LeaveRoom(ctx context.Context, roomID string) error {
	err := c.Do(ctx, clients.Request{Method: http.MethodPost, Endpoint: LeaveRoomEndpoint(roomID)}, nil)
	if err != nil {
		return fmt.Errorf("failed to leave room: %w", err)
	}
	return nil
}

func (c *FocusApiClient) KickParticipant(ctx context.Context, roomID string, userID int64) error {
	err := c.Do(ctx, clients.Request{Method: http.MethodPost, Endpoint: KickParticipantEndpoint(roomID, userID)}, nil)
	if err != nil {
		return fmt.Errorf("failed to kick participant %d: %w", userID, err)
	}
	return nil
}

func (c *FocusApiClient) DeleteRoom(ctx context.Context, roomID string) error {
	if err := c.Delete(ctx, RoomByIDEndpoint(roomID)); err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	return nil
}
