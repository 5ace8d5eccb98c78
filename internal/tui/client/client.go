// Package client is the typed HTTP client for the daemon's socket API, shared
// by studyctl and studytui.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lfelipe/studyhall/internal/api"
	"github.com/lfelipe/studyhall/internal/feed"
)

// Client talks JSON over the daemon's Unix domain socket.
type Client struct {
	httpc *http.Client
}

// New returns a client dialing the given socket path.
func New(socketPath string) *Client {
	return &Client{
		httpc: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
			Timeout: 15 * time.Second,
		},
	}
}

// apiError is the {"error": "..."} shape the daemon returns on failure.
type apiError struct {
	Error string `json:"error"`
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://daemon"+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://daemon"+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("daemon request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon: %s", apiErr.Error)
		}
		return fmt.Errorf("daemon: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Status fetches the session status.
func (c *Client) Status(ctx context.Context) (*api.StatusResponse, error) {
	var st api.StatusResponse
	if err := c.get(ctx, "/v1/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Login starts a device-code sign-in and returns the challenge to display.
func (c *Client) Login(ctx context.Context) (*api.LoginResponse, error) {
	var resp api.LoginResponse
	if err := c.post(ctx, "/v1/login", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout signs the session out.
func (c *Client) Logout(ctx context.Context) error {
	return c.post(ctx, "/v1/logout", nil, nil)
}

// Groups fetches the group list view.
func (c *Client) Groups(ctx context.Context) (*feed.GroupsView, error) {
	var view feed.GroupsView
	if err := c.get(ctx, "/v1/groups", &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// JoinGroup adds the signed-in user to a group.
func (c *Client) JoinGroup(ctx context.Context, groupID string) error {
	return c.post(ctx, "/v1/groups/"+url.PathEscape(groupID)+"/join", nil, nil)
}

// Messages fetches the active chat view. A non-empty chatRef selects that
// chat first.
func (c *Client) Messages(ctx context.Context, chatRef string) (*feed.MessagesView, error) {
	path := "/v1/messages"
	if chatRef != "" {
		path += "?chat=" + url.QueryEscape(chatRef)
	}
	var view feed.MessagesView
	if err := c.get(ctx, path, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// SendResult reports how a sent message was handled.
type SendResult struct {
	ID     string `json:"id"`
	Queued bool   `json:"queued"`
}

// Send writes a message to the active chat.
func (c *Client) Send(ctx context.Context, text string) (*SendResult, error) {
	var res SendResult
	if err := c.post(ctx, "/v1/messages", api.SendRequest{Text: text}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Leaderboard fetches the global ranking view.
func (c *Client) Leaderboard(ctx context.Context) (*feed.LeaderboardView, error) {
	var view feed.LeaderboardView
	if err := c.get(ctx, "/v1/leaderboard", &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Progress fetches the progress view. A non-empty subject selects it first.
func (c *Client) Progress(ctx context.Context, subject string) (*feed.ProgressView, error) {
	path := "/v1/progress"
	if subject != "" {
		path += "?subject=" + url.QueryEscape(subject)
	}
	var view feed.ProgressView
	if err := c.get(ctx, path, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// OutboxView is the pending-write listing.
type OutboxView struct {
	Entries []api.OutboxEntry `json:"entries"`
	Pending int64             `json:"pending"`
	Failed  int64             `json:"failed"`
}

// Outbox fetches the pending offline writes.
func (c *Client) Outbox(ctx context.Context) (*OutboxView, error) {
	var view OutboxView
	if err := c.get(ctx, "/v1/outbox", &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// WatchEvent is one server-sent event from /v1/watch.
type WatchEvent struct {
	Kind string
	Data json.RawMessage
}

// Watch opens the daemon's event stream and delivers events until ctx is
// cancelled or the stream breaks. The channel is closed on exit.
func (c *Client) Watch(ctx context.Context) (<-chan WatchEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://daemon/v1/watch", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream outlives the default timeout.
	streamClient := &http.Client{Transport: c.httpc.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open watch stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("watch stream: %s", resp.Status)
	}

	events := make(chan WatchEvent, 64)
	go func() {
		defer close(events)
		defer func() { _ = resp.Body.Close() }()

		scanner := bufio.NewScanner(resp.Body)
		var evt WatchEvent
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event:"):
				evt.Kind = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				evt.Data = json.RawMessage(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			case line == "":
				if evt.Kind != "" {
					select {
					case events <- evt:
					case <-ctx.Done():
						return
					}
				}
				evt = WatchEvent{}
			}
		}
	}()
	return events, nil
}
