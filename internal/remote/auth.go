package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	deviceAuthPath  = "/v1/auth/device"
	deviceTokenPath = "/v1/auth/token"
)

// ErrAuthPending indicates the user has not yet approved the device code.
var ErrAuthPending = errors.New("authorization pending")

// DeviceAuth is the server's response to a device sign-in request.
type DeviceAuth struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURL string `json:"verification_url"`
	ExpiresInSec    int    `json:"expires_in"`
	IntervalSec     int    `json:"interval"`
}

// Token is an issued access token.
type Token struct {
	AccessToken string `json:"access_token"`
}

// StartDeviceAuth begins a device-code sign-in flow.
func (c *Client) StartDeviceAuth(ctx context.Context) (*DeviceAuth, error) {
	var da DeviceAuth
	if err := c.do(ctx, http.MethodPost, c.baseURL+deviceAuthPath, nil, &da); err != nil {
		return nil, fmt.Errorf("start device auth: %w", err)
	}
	if da.IntervalSec <= 0 {
		da.IntervalSec = 5
	}
	return &da, nil
}

// PollDeviceToken exchanges a device code for a token once the user has
// approved it in the web app. Returns ErrAuthPending until then.
func (c *Client) PollDeviceToken(ctx context.Context, deviceCode string) (*Token, error) {
	body, _ := json.Marshal(map[string]string{"device_code": deviceCode})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+deviceTokenPath, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		var tok Token
		if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
			return nil, fmt.Errorf("decode token: %w", err)
		}
		return &tok, nil
	case resp.StatusCode == http.StatusPreconditionRequired || resp.StatusCode == http.StatusTooEarly:
		return nil, ErrAuthPending
	default:
		return nil, fmt.Errorf("token exchange failed: status %d", resp.StatusCode)
	}
}
