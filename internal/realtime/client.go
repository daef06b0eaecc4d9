package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gogotex/gogotex/backend/go-collab/internal/collab"
	"github.com/gogotex/gogotex/backend/go-collab/internal/config"
	"github.com/gogotex/gogotex/backend/go-collab/pkg/logger"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// opTimeout bounds how long a single join, leave or edit may wait on a room.
const opTimeout = 10 * time.Second

var errSlowConsumer = fmt.Errorf("%w: send buffer full", collab.ErrDisconnected)

// client is the websocket side of one session. It implements collab.Sink:
// frames are queued on send and written by writePump, so Deliver never
// blocks the room that calls it.
type client struct {
	id      string
	conn    *websocket.Conn
	mgr     *collab.Manager
	cfg     config.CollabConfig
	limiter *rate.Limiter
	log     *logger.Logger

	send chan []byte
	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	reason error
}

func newClient(id string, conn *websocket.Conn, mgr *collab.Manager, cfg config.CollabConfig, log *logger.Logger) *client {
	limit := rate.Inf
	if cfg.EventRPS > 0 {
		limit = rate.Limit(cfg.EventRPS)
	}
	return &client{
		id:      id,
		conn:    conn,
		mgr:     mgr,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, cfg.EventBurst),
		log:     log,
		send:    make(chan []byte, cfg.SendBuffer),
		done:    make(chan struct{}),
	}
}

// Deliver queues ev for writing. A client whose buffer is full is closed
// rather than allowed to hold the room up.
func (c *client) Deliver(ev collab.Event) bool {
	b, err := encode(ev.Name, ev.Data, ev.Ref)
	if err != nil {
		c.log.Errorf("%s: encode %s: %v", c.id, ev.Name, err)
		return false
	}
	return c.enqueue(b)
}

func (c *client) Close() error {
	c.closeWith(nil)
	return nil
}

func (c *client) enqueue(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	case <-c.done:
		return false
	default:
		c.log.Warnf("%s: send buffer full, closing", c.id)
		c.closeWith(errSlowConsumer)
		return false
	}
}

func (c *client) reply(event string, data interface{}, ref string) {
	b, err := encode(event, data, ref)
	if err != nil {
		c.log.Errorf("%s: encode %s: %v", c.id, event, err)
		return
	}
	c.enqueue(b)
}

func (c *client) replyErr(err error, ref string) {
	c.reply(collab.EventError, errorPayload(err, ref), ref)
}

func (c *client) closeWith(reason error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.reason = reason
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *client) closeReason() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// writePump owns every write on the connection except the handshake. It
// exits once the client is closed or a write fails, closing the socket.
func (c *client) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.closeWith(collab.ErrDisconnected)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closeWith(collab.ErrDisconnected)
				return
			}
		case <-c.done:
			c.flush()
			code, text := websocket.CloseNormalClosure, ""
			if reason := c.closeReason(); reason != nil {
				code, text = websocket.ClosePolicyViolation, collab.Code(reason)
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
			return
		}
	}
}

// flush writes whatever is still queued, giving up on the first error.
func (c *client) flush() {
	if errors.Is(c.closeReason(), errSlowConsumer) {
		return
	}
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

// readPump reads frames until the connection fails, then disconnects the
// session. It runs on the handler goroutine.
func (c *client) readPump() {
	ctx, cancel := context.WithCancel(context.Background())
	var readErr error
	defer func() {
		cancel()
		c.mgr.Disconnect(c.id, c.exitReason(readErr))
		c.closeWith(nil)
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		c.mgr.Heartbeat(c.id)
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warnf("%s: read: %v", c.id, err)
			}
			readErr = err
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		c.handle(ctx, msg)
	}
}

func (c *client) exitReason(err error) error {
	if reason := c.closeReason(); reason != nil {
		return reason
	}
	if err == nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return collab.ErrTimeout
	}
	return collab.ErrDisconnected
}

func (c *client) handle(ctx context.Context, msg []byte) {
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		c.replyErr(fmt.Errorf("%w: malformed frame", collab.ErrBadRequest), "")
		return
	}
	if !c.limiter.Allow() {
		c.replyErr(collab.ErrRateLimited, f.Ref)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	switch f.Event {
	case EventJoin:
		docID, err := decodeRoomID(f.Data)
		if err != nil {
			c.replyErr(err, f.Ref)
			return
		}
		// the room itself sends joined, ordered with its updates
		if _, err := c.mgr.JoinRef(ctx, c.id, docID, f.Ref); err != nil {
			c.replyErr(err, f.Ref)
		}
	case EventLeave:
		docID, err := decodeRoomID(f.Data)
		if err != nil {
			c.replyErr(err, f.Ref)
			return
		}
		if err := c.mgr.Leave(ctx, c.id, docID); err != nil {
			c.replyErr(err, f.Ref)
			return
		}
		c.reply(collab.EventLeft, LeftPayload{Room: docID}, f.Ref)
	case EventEdit:
		sub, err := decodeEdit(f.Data)
		if err != nil {
			c.replyErr(err, f.Ref)
			return
		}
		// success is acknowledged by the document_updated broadcast
		if _, err := c.mgr.Edit(ctx, c.id, sub); err != nil {
			c.replyErr(err, f.Ref)
		}
	case EventPing:
		c.mgr.Heartbeat(c.id)
		c.reply(collab.EventPong, nil, f.Ref)
	default:
		c.replyErr(fmt.Errorf("%w: unknown event %q", collab.ErrBadRequest, f.Event), f.Ref)
	}
}
