package signaling

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is the participant side of the relay.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	in      chan Message
	done    chan struct{}

	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// Dial connects to the relay at url authenticating with token.
func Dial(ctx context.Context, url, token string) (*Client, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial signaling %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dial signaling %s: %w", url, err)
	}

	c := &Client{
		conn: conn,
		in:   make(chan Message, 64),
		done: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.in)
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.setErr(err)
			return
		}
		select {
		case c.in <- msg:
		case <-c.done:
			return
		}
	}
}

// Messages yields inbound messages. It is closed when the connection ends.
func (c *Client) Messages() <-chan Message {
	return c.in
}

func (c *Client) Send(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	return nil
}

// SendPayload builds and sends a message in one step.
func (c *Client) SendPayload(t Type, room string, payload any) error {
	msg, err := NewMessage(t, room, payload)
	if err != nil {
		return err
	}
	return c.Send(msg)
}

func (c *Client) Join(room, userType string) error {
	return c.SendPayload(TypeJoinRoom, room, JoinPayload{UserType: userType})
}

func (c *Client) Leave(room string) error {
	return c.SendPayload(TypeLeaveRoom, room, nil)
}

// Close ends the connection. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// Err is the error that ended the read loop, if any.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Client) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}
