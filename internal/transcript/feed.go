package transcript

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/axtra/traincall/internal/protocol"
)

const feedWriteTimeout = 2 * time.Second

// FeedClient streams a console's transcript entries to the trainer server's
// websocket feed. It is write-only; broadcast fan-out happens server side.
type FeedClient struct {
	wsURL  string
	dialer websocket.Dialer

	mu       sync.Mutex
	conn     *websocket.Conn
	roomName string
}

func NewFeedClient(baseURL string) (*FeedClient, error) {
	wsURL, err := normalizeFeedURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &FeedClient{
		wsURL: wsURL,
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 4 * time.Second,
		},
	}, nil
}

func normalizeFeedURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("feed base url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse feed url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported feed url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/v1/transcripts/ws"
	return u.String(), nil
}

// Connect dials the feed and registers this console against roomName.
func (c *FeedClient) Connect(ctx context.Context, roomName, identity string) error {
	conn, resp, err := c.dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("feed dial failed (%s): %w", resp.Status, err)
		}
		return fmt.Errorf("feed dial failed: %w", err)
	}

	hello := protocol.ClientHello{Type: protocol.TypeClientHello, RoomName: roomName, Identity: identity}
	if err := writeFeedJSON(conn, hello); err != nil {
		_ = conn.Close()
		return fmt.Errorf("feed hello: %w", err)
	}

	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
	c.roomName = roomName
	c.mu.Unlock()
	return nil
}

// PublishEntry forwards one utterance. A nil connection is not an error so
// consoles can run without a reachable server.
func (c *FeedClient) PublishEntry(seq int, role, text, emotion string, ts time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	msg := protocol.ClientTranscript{
		Type:     protocol.TypeClientTranscript,
		RoomName: c.roomName,
		Seq:      seq,
		Role:     role,
		Text:     text,
		Emotion:  emotion,
		TSMs:     ts.UnixMilli(),
	}
	if err := writeFeedJSON(c.conn, msg); err != nil {
		return fmt.Errorf("feed publish: %w", err)
	}
	return nil
}

// Bye announces the session end and closes the connection.
func (c *FeedClient) Bye(durationSec int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	msg := protocol.ClientBye{Type: protocol.TypeClientBye, RoomName: c.roomName, DurationSec: durationSec}
	err := writeFeedJSON(c.conn, msg)
	_ = c.conn.Close()
	c.conn = nil
	if err != nil {
		return fmt.Errorf("feed bye: %w", err)
	}
	return nil
}

func (c *FeedClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func writeFeedJSON(conn *websocket.Conn, payload any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
	defer conn.SetWriteDeadline(time.Time{})
	return conn.WriteJSON(payload)
}
