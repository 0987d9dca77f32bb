package focus_api_client

import (
	"time"

	"github.com/mcdev12/focusroom/go/clients"
)

type FocusApiClient struct {
	*clients.BaseClient
}

func NewFocusApiClient(baseURL string, tokens clients.TokenSource) *FocusApiClient {
	if baseURL == "" {
		baseURL = BaseURL
	}

	client := &FocusApiClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}

	client.SetHeader("Accept", "application/json")
	client.SetTokenSource(tokens)

	return client
}

// WithTimeout sets the per-request timeout and returns the client.
func (c *FocusApiClient) WithTimeout(timeout time.Duration) *FocusApiClient {
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return c
}
