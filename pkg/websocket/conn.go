package websocket

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrHandshakeUnauthorized means the server refused our credentials.
var ErrHandshakeUnauthorized = errors.New("websocket handshake unauthorized")

// FrameKind distinguishes data from connection state changes.
type FrameKind int

// Frame kinds.
const (
	FrameData FrameKind = iota
	FrameConnected
	FrameDisconnected
)

// Frame is one message from the stream. Seq restarts at 1 on every
// connection (Epoch); a skipped Seq means a message was dropped.
type Frame struct {
	Kind       FrameKind
	Epoch      uint64
	Seq        uint64
	Data       []byte
	Err        error // set on FrameDisconnected
	ReceivedAt time.Time
}

// Config holds connection configuration.
type Config struct {
	Name              string // channel label for logs and metrics
	URL               string
	Header            http.Header
	DialTimeout       time.Duration
	PingInterval      time.Duration
	PongTimeout       time.Duration
	MessageBufferSize int
	Retry             RetryConfig

	// Subscribe builds the payload sent after every (re)connect.
	Subscribe func() (any, error)

	Logger *zap.Logger
}

// Conn is a self-healing websocket subscription.
type Conn struct {
	cfg    Config
	logger *zap.Logger
	retry  *Retry
	frames chan Frame

	writeMu sync.Mutex
	conn    *websocket.Conn
	epoch   uint64
}

// New creates a connection. Nothing is dialed until Run.
func New(cfg Config) *Conn {
	if cfg.MessageBufferSize <= 0 {
		cfg.MessageBufferSize = 1000
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 10 * time.Second
	}

	return &Conn{
		cfg:    cfg,
		logger: cfg.Logger.With(zap.String("channel", cfg.Name)),
		retry:  NewRetry(cfg.Retry),
		frames: make(chan Frame, cfg.MessageBufferSize),
	}
}

// Frames delivers frames until Run returns, then is closed.
func (c *Conn) Frames() <-chan Frame {
	return c.frames
}

// Retry exposes the reconnect state.
func (c *Conn) Retry() *Retry {
	return c.retry
}

// Run connects and keeps the stream alive until ctx is done, the retry budget
// is exhausted or the server rejects our credentials.
func (c *Conn) Run(ctx context.Context) error {
	defer close(c.frames)

	for {
		err := c.connect(ctx)
		if err == nil {
			c.retry.Reset()
			err = c.serve(ctx)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrHandshakeUnauthorized) {
			c.logger.Error("websocket-unauthorized", zap.Error(err))
			return err
		}

		ReconnectFailuresTotal.WithLabelValues(c.cfg.Name).Inc()
		delay, retryErr := c.retry.Fail()
		if retryErr != nil {
			c.logger.Error("websocket-retries-exhausted",
				zap.Int("attempts", c.retry.Attempt()),
				zap.Error(err))
			return fmt.Errorf("%s: %w", c.cfg.Name, retryErr)
		}

		c.logger.Warn("websocket-reconnect-scheduled",
			zap.Int("attempt", c.retry.Attempt()),
			zap.Duration("backoff", delay),
			zap.Error(err))

		if err := c.retry.Wait(ctx); err != nil {
			return err
		}
		ReconnectAttemptsTotal.WithLabelValues(c.cfg.Name).Inc()
	}
}

func (c *Conn) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.DialTimeout}

	c.logger.Info("connecting-to-websocket", zap.String("url", c.cfg.URL))

	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("dial %s: status %d: %w", c.cfg.Name, resp.StatusCode, ErrHandshakeUnauthorized)
		}
		return fmt.Errorf("dial %s: %w", c.cfg.Name, err)
	}

	if c.cfg.Subscribe != nil {
		payload, err := c.cfg.Subscribe()
		if err != nil {
			conn.Close()
			return fmt.Errorf("build subscription: %w", err)
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			conn.Close()
			return fmt.Errorf("marshal subscription: %w", err)
		}
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			conn.Close()
			return fmt.Errorf("write subscription: %w", err)
		}
	}

	c.writeMu.Lock()
	c.conn = conn
	c.epoch++
	c.writeMu.Unlock()

	ActiveConnections.WithLabelValues(c.cfg.Name).Set(1)
	c.logger.Info("websocket-connected", zap.Uint64("epoch", c.epoch))

	return nil
}

// serve reads until the connection fails or ctx is done.
func (c *Conn) serve(ctx context.Context) error {
	c.writeMu.Lock()
	conn, epoch := c.conn, c.epoch
	c.writeMu.Unlock()

	started := time.Now()
	defer func() {
		conn.Close()
		ActiveConnections.WithLabelValues(c.cfg.Name).Set(0)
		ConnectionDuration.WithLabelValues(c.cfg.Name).Observe(time.Since(started).Seconds())
	}()

	if c.cfg.PongTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
		})
	}

	if !c.emit(ctx, Frame{Kind: FrameConnected, Epoch: epoch, ReceivedAt: time.Now()}) {
		return ctx.Err()
	}

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-serveCtx.Done()
		conn.Close()
	}()
	go c.pingLoop(serveCtx, conn)

	var seq uint64
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
				err = fmt.Errorf("server closed %s: %w", c.cfg.Name, ErrHandshakeUnauthorized)
			}
			c.logger.Warn("websocket-read-error", zap.Uint64("epoch", epoch), zap.Error(err))
			c.emit(ctx, Frame{Kind: FrameDisconnected, Epoch: epoch, Err: err, ReceivedAt: time.Now()})
			return err
		}

		if c.cfg.PongTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
		}
		if isHeartbeat(msg) {
			continue
		}

		seq++
		MessagesReceivedTotal.WithLabelValues(c.cfg.Name).Inc()

		select {
		case c.frames <- Frame{Kind: FrameData, Epoch: epoch, Seq: seq, Data: msg, ReceivedAt: time.Now()}:
		default:
			// The hole in Seq tells the consumer to resync.
			MessagesDroppedTotal.WithLabelValues(c.cfg.Name, "channel_full").Inc()
			c.logger.Warn("message-channel-full", zap.Uint64("seq", seq))
		}
	}
}

// emit delivers a state frame, blocking until there is room.
func (c *Conn) emit(ctx context.Context, f Frame) bool {
	select {
	case c.frames <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Conn) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
			if err == nil {
				c.writeMu.Lock()
				err = conn.WriteMessage(websocket.TextMessage, []byte("PING"))
				c.writeMu.Unlock()
			}
			if err != nil {
				c.logger.Warn("ping-error", zap.Error(err))
				return
			}
		}
	}
}

func isHeartbeat(msg []byte) bool {
	trimmed := bytes.TrimSpace(msg)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("PONG")) || bytes.Equal(trimmed, []byte("[]"))
}
