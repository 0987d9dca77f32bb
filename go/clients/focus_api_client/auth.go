package focus_api_client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mcdev12/focusroom/go/clients"
	"github.com/mcdev12/focusroom/go/internal/models"
)

type AuthToken struct {
	Token     string `json:"token"`
	ExpiredAt string `json:"expired_at"`
}

// AuthTokenResponse is not wrapped in the data envelope.
type AuthTokenResponse struct {
	Status  string    `json:"status"`
	Message string    `json:"message"`
	Token   AuthToken `json:"token"`
}

// Me fetches the current user with an explicit token, bypassing the token
// source so it can be used to validate a credential.
func (c *FocusApiClient) Me(ctx context.Context, token string) (*models.User, error) {
	status, body, err := c.MakeRequest(ctx, clients.Request{Method: http.MethodGet, Endpoint: MeEndpoint}, nil, token)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	if status != http.StatusOK {
		return nil, &clients.APIError{StatusCode: status, Endpoint: MeEndpoint, Message: string(body)}
	}

	var env struct {
		Data models.User `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	return &env.Data, nil
}

// Refresh exchanges a (possibly expired) token for a new one.
func (c *FocusApiClient) Refresh(ctx context.Context, token string) (string, error) {
	status, body, err := c.MakeRequest(ctx, clients.Request{Method: http.MethodGet, Endpoint: RefreshEndpoint}, nil, token)
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}
	if status != http.StatusOK {
		return "", &clients.APIError{StatusCode: status, Endpoint: RefreshEndpoint, Message: string(body)}
	}

	var response AuthTokenResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	if response.Token.Token == "" {
		return "", fmt.Errorf("refresh response did not contain a token")
	}
	return response.Token.Token, nil
}
