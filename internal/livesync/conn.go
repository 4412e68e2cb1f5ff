package livesync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"livetimers/timetracker/internal/observability"
	"livetimers/timetracker/internal/timers"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4 * 1024
)

type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateStreaming:
		return "STREAMING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

type TimerLister interface {
	List(ctx context.Context, userID string) ([]timers.Timer, error)
}

// Conn is one authenticated WebSocket peer. writePump owns every data write;
// readPump only turns get_timers requests into refresh signals.
type Conn struct {
	id       string
	userID   string
	ws       *websocket.Conn
	hub      *Hub
	timers   TimerLister
	interval time.Duration
	log      *slog.Logger
	metrics  *observability.Metrics
	nowFunc  func() time.Time

	state   atomic.Int32
	refresh chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (c *Conn) State() State {
	return State(c.state.Load())
}

func (c *Conn) setState(s State) {
	c.state.Store(int32(s))
}

// Close stops both pumps. Safe to call more than once and from any goroutine.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		c.cancel()
	})
}

func (c *Conn) start() {
	if !c.hub.Register(c) {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		c.Close()
		_ = c.ws.Close()
		return
	}
	c.metrics.LiveConnOpened()
	c.log.Info("live connection opened")

	go c.writePump()
	go c.readPump()
}

func (c *Conn) readPump() {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Debug("live connection read failed", "error", err)
			}
			return
		}
		if !isRefreshRequest(payload) {
			continue
		}
		select {
		case c.refresh <- struct{}{}:
		default:
		}
	}
}

func (c *Conn) writePump() {
	pushTicker := time.NewTicker(c.interval)
	pingTicker := time.NewTicker(pingPeriod)
	defer func() {
		pushTicker.Stop()
		pingTicker.Stop()
		c.Close()
		_ = c.ws.Close()
		c.hub.Unregister(c)
		c.metrics.LiveConnClosed()
		c.log.Info("live connection closed")
	}()

	if err := c.push(MessageAllTimers); err != nil {
		return
	}
	c.setState(StateStreaming)

	for {
		select {
		case <-c.ctx.Done():
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case <-c.refresh:
			if err := c.push(MessageAllTimers); err != nil {
				return
			}
		case <-pushTicker.C:
			if err := c.push(MessageActiveTimers); err != nil {
				return
			}
		case <-pingTicker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// push writes one snapshot. A store failure closes the socket with 1011.
func (c *Conn) push(kind string) error {
	snap, err := c.snapshot(kind)
	if err != nil {
		if c.ctx.Err() != nil {
			return err
		}
		c.log.Error("live snapshot failed", "type", kind, "error", err)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "internal error"),
			time.Now().Add(writeWait))
		return err
	}

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(snap); err != nil {
		c.log.Debug("live write failed", "type", kind, "error", err)
		return err
	}
	c.metrics.LiveMessage(kind)
	return nil
}

func (c *Conn) snapshot(kind string) (Snapshot, error) {
	list, err := c.timers.List(c.ctx, c.userID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list timers: %w", err)
	}
	if kind == MessageActiveTimers {
		list = timers.Filter(list, true)
	}
	return Snapshot{Type: kind, Timers: timers.Views(list, c.nowFunc())}, nil
}
