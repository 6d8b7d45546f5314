// Package websocket is a Socket.IO client for the controller's real-time
// channel, speaking Engine.IO v4 over a plain WebSocket transport.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"waterheater-panel/internal/channel"
	"waterheater-panel/internal/models"
)

var (
	ErrDisconnected   = errors.New("socket.io: disconnected by server")
	ErrConnectRefused = errors.New("socket.io: namespace connect refused")
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	writeWait               = 10 * time.Second
	maxMessageSize          = 1 << 20
)

// Client listens to one namespace of a Socket.IO server.
type Client struct {
	baseURL   string
	namespace string
	token     string
	dialer    *websocket.Dialer
	logger    zerolog.Logger
	onStatus  channel.StatusFunc

	mu      sync.Mutex
	conn    *websocket.Conn
	closed  bool
	writeMu sync.Mutex
}

type Option func(*Client)

// WithToken authenticates with a bearer token, sent both as an HTTP header
// and in the namespace CONNECT auth payload.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

func WithStatus(fn channel.StatusFunc) Option {
	return func(c *Client) { c.onStatus = fn }
}

func NewClient(baseURL, namespace string, opts ...Option) *Client {
	if namespace == "" {
		namespace = channel.DefaultNamespace
	}
	c := &Client{
		baseURL:   baseURL,
		namespace: namespace,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		},
		logger:   zerolog.Nop(),
		onStatus: func(bool) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("transport", "socketio").Str("namespace", c.namespace).Logger()
	return c
}

// Endpoint returns the WebSocket URL of the Engine.IO endpoint.
func (c *Client) Endpoint() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse channel url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported channel url scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/socket.io/"
	}
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Listen connects, joins the namespace and delivers its frames to h. A
// "connect" frame is delivered once the server accepts the namespace.
func (c *Client) Listen(ctx context.Context, h channel.Handler) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer c.teardown(conn)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	err = c.run(ctx, conn, h)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if c.isClosed() {
		return channel.ErrClosed
	}
	return err
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, channel.ErrClosed
	}
	c.mu.Unlock()

	endpoint, err := c.Endpoint()
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := c.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial %s: %s: %w", endpoint, resp.Status, err)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", endpoint, err)
	}
	conn.SetReadLimit(maxMessageSize)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return nil, channel.ErrClosed
	}
	c.conn = conn
	c.mu.Unlock()
	return conn, nil
}

func (c *Client) run(ctx context.Context, conn *websocket.Conn, h channel.Handler) error {
	info, err := c.handshake(conn)
	if err != nil {
		return err
	}
	timeout := info.ReadTimeout()
	connect := SocketPacket{Type: SocketConnect, Namespace: c.namespace}
	if c.token != "" {
		connect.Data, _ = json.Marshal(map[string]string{"token": c.token})
	}
	if err := c.write(conn, connect.Encode()); err != nil {
		return fmt.Errorf("send namespace connect: %w", err)
	}

	for {
		if timeout > 0 {
			conn.SetReadDeadline(time.Now().Add(timeout))
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("websocket read error")
			}
			return fmt.Errorf("websocket read: %w", err)
		}
		pkt, err := ParseEnginePacket(msg)
		if err != nil {
			c.logger.Warn().Err(err).Msg("invalid engine packet")
			continue
		}
		switch pkt.Type {
		case EnginePing:
			if err := c.write(conn, EnginePacket{Type: EnginePong, Data: pkt.Data}.Encode()); err != nil {
				return fmt.Errorf("send pong: %w", err)
			}
		case EngineClose:
			return ErrDisconnected
		case EngineMessage:
			if err := c.dispatch(ctx, pkt.Data, h); err != nil {
				return err
			}
		}
	}
}

func (c *Client) handshake(conn *websocket.Conn) (OpenInfo, error) {
	conn.SetReadDeadline(time.Now().Add(defaultHandshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return OpenInfo{}, fmt.Errorf("read open packet: %w", err)
	}
	pkt, err := ParseEnginePacket(msg)
	if err != nil {
		return OpenInfo{}, err
	}
	if pkt.Type != EngineOpen {
		return OpenInfo{}, fmt.Errorf("%w: expected open packet, got %q", ErrBadPacket, byte(pkt.Type))
	}
	info, err := ParseOpenInfo(pkt.Data)
	if err != nil {
		return OpenInfo{}, err
	}
	conn.SetReadDeadline(time.Time{})
	c.logger.Debug().Str("sid", info.SID).Int("ping_interval_ms", info.PingInterval).Msg("engine.io open")
	return info, nil
}

func (c *Client) dispatch(ctx context.Context, data string, h channel.Handler) error {
	pkt, err := ParseSocketPacket(data)
	if err != nil {
		c.logger.Warn().Err(err).Msg("invalid socket.io packet")
		return nil
	}
	if pkt.Namespace != c.namespace {
		return nil
	}
	switch pkt.Type {
	case SocketConnect:
		c.logger.Info().Msg("namespace connected")
		c.onStatus(true)
		return h(ctx, models.Frame{Namespace: c.namespace, Name: models.EventConnect, Data: pkt.Data, ReceivedAt: time.Now()})
	case SocketEvent:
		name, payload, err := pkt.Event()
		if err != nil {
			c.logger.Warn().Err(err).Msg("invalid event packet")
			return nil
		}
		return h(ctx, models.Frame{Namespace: c.namespace, Name: name, Data: payload, ReceivedAt: time.Now()})
	case SocketDisconnect:
		return ErrDisconnected
	case SocketConnectError:
		return fmt.Errorf("%w: %s", ErrConnectRefused, pkt.ErrorMessage())
	case SocketBinaryEvent, SocketBinaryAck:
		c.logger.Debug().Msg("binary packets are not supported, skipping")
	}
	return nil
}

func (c *Client) write(conn *websocket.Conn, msg []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, msg)
}

func (c *Client) teardown(conn *websocket.Conn) {
	c.onStatus(false)
	conn.Close()
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close leaves the namespace and closes the connection, ending Listen.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	_ = c.write(conn, SocketPacket{Type: SocketDisconnect, Namespace: c.namespace}.Encode())
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, strings.TrimPrefix(c.namespace, "/")+" closed"),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return conn.Close()
}

var _ channel.Channel = (*Client)(nil)
