package watch

import (
	"context"
	"fmt"
	"net/url"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Client is the peer side of the watch channel, used by the monitor and the CLI
type Client struct {
	conn *websocket.Conn
}

// Dial connects to a hub endpoint such as ws://localhost:8080/watch
func Dial(ctx context.Context, endpoint string, role Role, name string) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := u.Query()
	if role != "" {
		q.Set("role", string(role))
	}
	if name != "" {
		q.Set("name", name)
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", u.Redacted(), err)
	}
	conn.SetReadLimit(1 << 20)
	return &Client{conn: conn}, nil
}

// Send writes one message to the relay
func (c *Client) Send(ctx context.Context, path string, data []byte) error {
	return wsjson.Write(ctx, c.conn, Message{Path: path, Data: string(data)})
}

// Receive reads the next message addressed to a watch
func (c *Client) Receive(ctx context.Context) (Message, error) {
	var msg Message
	err := wsjson.Read(ctx, c.conn, &msg)
	return msg, err
}

// ReceiveEnvelope reads the next observer copy
func (c *Client) ReceiveEnvelope(ctx context.Context) (Envelope, error) {
	var env Envelope
	err := wsjson.Read(ctx, c.conn, &env)
	return env, err
}

// Close closes the connection normally
func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
