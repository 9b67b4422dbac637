package horde

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrUnknownUser means the API key does not map to any Horde account. It can
// only be a misconfiguration, so callers treat it as fatal at startup.
var ErrUnknownUser = errors.New("horde: user not found; check the API_KEY in .env")

// FetchError is a transient failure talking to the Horde: transport errors
// and non-200 responses. The collector logs it and retries on the next tick.
type FetchError struct {
	Status int // HTTP status, 0 for transport errors
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("horde: fetch failed with status %d", e.Status)
	}
	return fmt.Sprintf("horde: fetch failed: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client fetches the kudos balance for one API key from the AI Horde
// find_user endpoint.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// New creates a Client. baseURL is the API root without trailing slash,
// e.g. https://aihorde.net/api.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type findUserResponse struct {
	Username string  `json:"username"`
	Kudos    float64 `json:"kudos"`
}

// CheckUser verifies the API key resolves to an account. 404 is fatal
// (ErrUnknownUser); other failures are transient *FetchError.
func (c *Client) CheckUser(ctx context.Context) error {
	_, err := c.findUser(ctx)
	return err
}

// Fetch returns the current kudos balance, truncated to a whole number (the
// Horde reports fractional kudos, the store keeps integers).
func (c *Client) Fetch(ctx context.Context) (int64, error) {
	resp, err := c.findUser(ctx)
	if err != nil {
		return 0, err
	}
	return int64(resp.Kudos), nil
}

func (c *Client) findUser(ctx context.Context) (*findUserResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/find_user", nil)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Client-Agent", "kudoman")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &FetchError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrUnknownUser
	case resp.StatusCode != http.StatusOK:
		return nil, &FetchError{Status: resp.StatusCode}
	}

	var out findUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &FetchError{Err: fmt.Errorf("decode response: %w", err)}
	}
	return &out, nil
}
