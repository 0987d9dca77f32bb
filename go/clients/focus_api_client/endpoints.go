package focus_api_client

import "fmt"

const (
	// Base URL
	BaseURL = "https://api.monitus.io"

	// Auth
	MeEndpoint      = "/auth/me"
	RefreshEndpoint = "/auth/refresh"

	// Rooms
	RoomsEndpoint       = "/rooms"
	JoinRoomEndpoint    = "/rooms/join"
	ActiveRoomsEndpoint = "/rooms/active"
	MyRoomsEndpoint     = "/rooms/my"

	// Sessions
	SessionsEndpoint     = "/sessions"
	SessionStatsEndpoint = "/sessions/stats"

	// Session status filter
	SessionStatusActive = "active"
)

func RoomByIDEndpoint(roomID string) string {
	return fmt.Sprintf("%s/%s", RoomsEndpoint, roomID)
}

func RoomParticipantsEndpoint(roomID string) string {
	return fmt.Sprintf("%s/%s/participants", RoomsEndpoint, roomID)
}

func RoomStateEndpoint(roomID string) string {
	return fmt.Sprintf("%s/%s/state", RoomsEndpoint, roomID)
}

func LeaveRoomEndpoint(roomID string) string {
	return fmt.Sprintf("%s/%s/leave", RoomsEndpoint, roomID)
}

func KickParticipantEndpoint(roomID string, userID int64) string {
	return fmt.Sprintf("%s/%s/kick/%d", RoomsEndpoint, roomID, userID)
}

func SessionByIDEndpoint(sessionID string) string {
	return fmt.Sprintf("%s/%s", SessionsEndpoint, sessionID)
}

func CompleteSessionEndpoint(sessionID string) string {
	return fmt.Sprintf("%s/%s/complete", SessionsEndpoint, sessionID)
}

func CancelSessionEndpoint(sessionID string) string {
	return fmt.Sprintf("%s/%s/cancel", SessionsEndpoint, sessionID)
}
