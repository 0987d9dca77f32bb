package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TokenSource supplies bearer credentials for authenticated requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API returned status code: %d (%s): %s", e.StatusCode, e.Endpoint, e.Message)
}

// IsStatus reports whether err wraps an APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// Request describes a single API call.
type Request struct {
	Method   string
	Endpoint string
	Body     any
	Header   http.Header
	// SkipAuth disables bearer injection and the 401 refresh-and-retry.
	SkipAuth bool
}

type envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type BaseClient struct {
	baseURL string
	client  *http.Client
	headers map[string]string
	tokens  TokenSource
}

func NewBaseClient(baseURL string) *BaseClient {
	return &BaseClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

func (c *BaseClient) SetHeader(key, value string) {
	c.headers[key] = value
}

func (c *BaseClient) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

func (c *BaseClient) SetTokenSource(tokens TokenSource) {
	c.tokens = tokens
}

// Do executes the request and decodes the "data" field of the response
// envelope into out (when out is non-nil). A 401 on an authenticated request
// forces one credential refresh and one retry.
func (c *BaseClient) Do(ctx context.Context, r Request, out any) error {
	var payload []byte
	if r.Body != nil {
		b, err := json.Marshal(r.Body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = b
	}

	auth := !r.SkipAuth && c.tokens != nil
	token := ""
	if auth {
		t, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("failed to get token: %w", err)
		}
		token = t
	}

	status, body, err := c.MakeRequest(ctx, r, payload, token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && auth {
		refreshed, rerr := c.tokens.ForceRefresh(ctx)
		if rerr != nil {
			return &APIError{StatusCode: status, Endpoint: r.Endpoint, Message: "session expired, please login again"}
		}
		status, body, err = c.MakeRequest(ctx, r, payload, refreshed)
		if err != nil {
			return err
		}
	}

	if status == http.StatusTooManyRequests {
		return &APIError{StatusCode: status, Endpoint: r.Endpoint, Message: "rate limit exceeded, please try again later"}
	}

	if status < 200 || status >= 300 {
		return &APIError{StatusCode: status, Endpoint: r.Endpoint, Message: errorMessage(status, body)}
	}

	if out == nil || len(body) == 0 {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response data: %w", err)
	}
	return nil
}

// MakeRequest performs the raw HTTP exchange and returns status and body.
func (c *BaseClient) MakeRequest(ctx context.Context, r Request, payload []byte, token string) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, c.baseURL+r.Endpoint, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	for key, values := range r.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return resp.StatusCode, responseBody, nil
}

func (c *BaseClient) Get(ctx context.Context, endpoint string, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Endpoint: endpoint}, out)
}

func (c *BaseClient) Post(ctx context.Context, endpoint string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Endpoint: endpoint, Body: body}, out)
}

func (c *BaseClient) Put(ctx context.Context, endpoint string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPut, Endpoint: endpoint, Body: body}, out)
}

func (c *BaseClient) Delete(ctx context.Context, endpoint string) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Endpoint: endpoint}, nil)
}

func errorMessage(status int, body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if eb.Error != "" {
			return eb.Error
		}
		if eb.Message != "" {
			return eb.Message
		}
	}
	if len(body) > 0 {
		return string(body)
	}
	return fmt.Sprintf("request failed with status %d", status)
}
