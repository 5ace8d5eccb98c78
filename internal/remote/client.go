package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/lfelipe/studyhall/internal/bus"
	"go.uber.org/zap"
)

const (
	subscribePath   = "/v1/subscribe"
	collectionsPath = "/v1/collections"

	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// TokenFunc supplies the current bearer token, or empty when signed out.
type TokenFunc func() string

// Client talks to the studyhall document service: live queries over
// websocket, one-shot writes over HTTP. Reconnection with backoff is handled
// here; subscribers only see update and error callbacks.
type Client struct {
	baseURL string
	token   TokenFunc
	httpc   *http.Client
	bus     *bus.Bus
	logger  *zap.Logger
}

// NewClient creates a client for the service at baseURL (http or https).
func NewClient(baseURL string, token TokenFunc, b *bus.Bus, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		bus:     b,
		logger:  logger,
	}
}

// frame is the wire format of the subscribe stream.
type frame struct {
	Type  string     `json:"type"` // snapshot | error
	Docs  []Document `json:"docs,omitempty"`
	Error string     `json:"error,omitempty"`
}

type wsSubscription struct {
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (s *wsSubscription) Close() {
	s.closeOnce.Do(s.cancel)
}

// Subscribe opens a live query. It returns immediately; the first snapshot
// arrives asynchronously. The stream reconnects with exponential backoff
// until the subscription is closed, reporting each failure via onError and
// delivering a fresh full snapshot after every successful (re)connect.
func (c *Client) Subscribe(ctx context.Context, q Query, onUpdate UpdateFunc, onError ErrorFunc) (Subscription, error) {
	if q.Collection == "" {
		return nil, fmt.Errorf("subscribe: empty collection")
	}
	ctx, cancel := context.WithCancel(ctx)
	sub := &wsSubscription{cancel: cancel}
	go c.streamLoop(ctx, q, onUpdate, onError)
	return sub, nil
}

func (c *Client) streamLoop(ctx context.Context, q Query, onUpdate UpdateFunc, onError ErrorFunc) {
	backoff := initialBackoff
	for {
		connected, err := c.stream(ctx, q, onUpdate)
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff = initialBackoff
		}
		c.logger.Warn("subscription stream failed",
			zap.String("collection", q.Collection), zap.Error(err))
		c.bus.Publish(bus.NewEvent(bus.KindRemoteDown, q.Collection))
		onError(fmt.Errorf("%w: %v", ErrUnavailable, err))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

// stream runs one websocket connection until it fails or ctx is canceled.
// Returns whether at least one snapshot was delivered on this connection.
func (c *Client) stream(ctx context.Context, q Query, onUpdate UpdateFunc) (bool, error) {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + subscribePath

	header := http.Header{}
	if tok := c.token(); tok != "" {
		header.Set("Authorization", "Bearer "+tok)
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if err := wsjson.Write(ctx, conn, q); err != nil {
		return false, fmt.Errorf("send query: %w", err)
	}

	connected := false
	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			return connected, fmt.Errorf("read: %w", err)
		}
		switch f.Type {
		case "snapshot":
			if !connected {
				connected = true
				c.bus.Publish(bus.NewEvent(bus.KindRemoteUp, q.Collection))
			}
			onUpdate(f.Docs)
		case "error":
			return connected, fmt.Errorf("query rejected: %s", f.Error)
		default:
			c.logger.Warn("unknown frame type", zap.String("type", f.Type))
		}
	}
}

// Insert appends a document to a collection and returns the server id.
func (c *Client) Insert(ctx context.Context, collection string, data any) (string, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	url := fmt.Sprintf("%s%s/%s/documents", c.baseURL, collectionsPath, collection)

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, url, body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Update applies a partial update to a document by id.
func (c *Client) Update(ctx context.Context, collection, id string, patch Patch) error {
	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}
	url := fmt.Sprintf("%s%s/%s/documents/%s", c.baseURL, collectionsPath, collection, id)
	return c.do(ctx, http.MethodPatch, url, body, nil)
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: server returned %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: %d: %s", method, url, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
