package room

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mcdev12/focusroom/go/clients"
	"github.com/mcdev12/focusroom/go/internal/models"
)

// NormalizeRoomCode uppercases code and checks its length and alphabet.
func NormalizeRoomCode(code string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if len(normalized) != models.RoomCodeLength {
		return "", fmt.Errorf("%w: got %d characters", ErrInvalidRoomCode, len(normalized))
	}
	for _, r := range normalized {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("%w: unexpected character %q", ErrInvalidRoomCode, r)
		}
	}
	return normalized, nil
}

func ValidateDurations(focusMinutes, breakMinutes int) error {
	if focusMinutes < models.MinFocusDuration || focusMinutes > models.MaxFocusDuration {
		return fmt.Errorf("%w: focus duration %d not in [%d, %d]",
			ErrInvalidDuration, focusMinutes, models.MinFocusDuration, models.MaxFocusDuration)
	}
	if breakMinutes < models.MinBreakDuration || breakMinutes > models.MaxBreakDuration {
		return fmt.Errorf("%w: break duration %d not in [%d, %d]",
			ErrInvalidDuration, breakMinutes, models.MinBreakDuration, models.MaxBreakDuration)
	}
	return nil
}

// mapAPIError translates server rejections into package errors, keeping the
// APIError in the chain.
func mapAPIError(err error) error {
	var apiErr *clients.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	switch {
	case apiErr.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrRoomNotFound, err)
	case apiErr.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %w", ErrForbidden, err)
	case apiErr.StatusCode == http.StatusConflict,
		strings.Contains(strings.ToLower(apiErr.Message), "full"):
		return fmt.Errorf("%w: %w", ErrRoomFull, err)
	default:
		return err
	}
}
