package luma

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"drinkPassAPI/internal/types/guest"
)

// ErrUnavailable means the provider could not be reached or answered with a
// non-2xx status. The caller may surface it for a manual re-scan; it is
// never retried automatically.
var ErrUnavailable = errors.New("luma: provider unavailable")

// Client talks to the Lu.ma public API. One request per call, bounded by
// the http.Client timeout.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// guestEnvelope mirrors the get-guest response. Every field is optional as
// far as we are concerned; absence of the email makes the guest
// unverifiable, it is not a transport error.
type guestEnvelope struct {
	Guest *guestPayload `json:"guest"`
}

type guestPayload struct {
	APIID          string `json:"api_id"`
	Email          string `json:"user_email"`
	Name           string `json:"user_name"`
	ApprovalStatus string `json:"approval_status"`
	CheckedInAt    string `json:"checked_in_at"`
	EventTicket    struct {
		Name string `json:"name"`
	} `json:"event_ticket"`
}

// GetGuestByProxyKey fetches the guest a check-in URL points at.
// Returns (nil, nil) when the provider answered but had no usable guest.
func (c *Client) GetGuestByProxyKey(ctx context.Context, eventID, publicKey string) (*guest.Identity, error) {
	params := url.Values{}
	params.Set("event_api_id", eventID)
	params.Set("proxy_key", publicKey)
	return c.getGuest(ctx, params)
}

// GetGuestByEmail looks a guest up by their registration email. Used by the
// self-service pass flow.
func (c *Client) GetGuestByEmail(ctx context.Context, eventID, email string) (*guest.Identity, string, error) {
	params := url.Values{}
	params.Set("event_api_id", eventID)
	params.Set("email", email)

	env, err := c.fetch(ctx, params)
	if err != nil {
		return nil, "", err
	}
	if env.Guest == nil || env.Guest.Email == "" {
		return nil, "", nil
	}
	return env.Guest.toIdentity(), env.Guest.APIID, nil
}

func (c *Client) getGuest(ctx context.Context, params url.Values) (*guest.Identity, error) {
	env, err := c.fetch(ctx, params)
	if err != nil {
		return nil, err
	}
	if env.Guest == nil || env.Guest.Email == "" {
		return nil, nil
	}
	return env.Guest.toIdentity(), nil
}

func (c *Client) fetch(ctx context.Context, params url.Values) (*guestEnvelope, error) {
	reqURL := fmt.Sprintf("%s/v1/event/get-guest?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("luma: build request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("x-luma-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	var env guestEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	return &env, nil
}

func (g *guestPayload) toIdentity() *guest.Identity {
	id := &guest.Identity{
		Email:          g.Email,
		Name:           g.Name,
		ApprovalStatus: g.ApprovalStatus,
		TicketName:     g.EventTicket.Name,
	}
	if g.CheckedInAt != "" {
		if t, err := time.Parse(time.RFC3339, g.CheckedInAt); err == nil {
			id.CheckedInAt = &t
		}
	}
	return id
}
