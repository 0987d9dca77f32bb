package focus_api_client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/mcdev12/focusroom/go/clients"
	"github.com/mcdev12/focusroom/go/internal/models"
)

type PaginatedSessions struct {
	Sessions []models.Session `json:"sessions"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	Limit    int              `json:"limit"`
}

func (c *FocusApiClient) StartSession(ctx context.Context, req models.StartSessionRequest) (*models.Session, error) {
	var session models.Session
	if err := c.Post(ctx, SessionsEndpoint, req, &session); err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	return &session, nil
}

func (c *FocusApiClient) CompleteSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	err := c.Do(ctx, clients.Request{Method: http.MethodPost, Endpoint: CompleteSessionEndpoint(sessionID)}, &session)
	if err != nil {
		return nil, fmt.Errorf("failed to complete session %s: %w", sessionID, err)
	}
	return &session, nil
}

func (c *FocusApiClient) CancelSession(ctx context.Context, sessionID string) error {
	err := c.Do(ctx, clients.Request{Method: http.MethodPost, Endpoint: CancelSessionEndpoint(sessionID)}, nil)
	if err != nil {
		return fmt.Errorf("failed to cancel session %s: %w", sessionID, err)
	}
	return nil
}

// ListActiveSessions asks the server for the caller's non-terminal sessions.
// Ended sessions the server lets through the filter are dropped.
func (c *FocusApiClient) ListActiveSessions(ctx context.Context) ([]models.Session, error) {
	q := url.Values{}
	q.Set("status", SessionStatusActive)

	var page PaginatedSessions
	if err := c.Get(ctx, SessionsEndpoint+"?"+q.Encode(), &page); err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}

	active := page.Sessions[:0]
	for _, s := range page.Sessions {
		if s.Completed || s.EndTime != nil {
			continue
		}
		active = append(active, s)
	}
	return active, nil
}

func (c *FocusApiClient) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	if err := c.Get(ctx, SessionByIDEndpoint(sessionID), &session); err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	return &session, nil
}

func (c *FocusApiClient) GetSessionStats(ctx context.Context) (*models.SessionStats, error) {
	var stats models.SessionStats
	if err := c.Get(ctx, SessionStatsEndpoint, &stats); err != nil {
		return nil, fmt.Errorf("failed to get session stats: %w", err)
	}
	return &stats, nil
}
