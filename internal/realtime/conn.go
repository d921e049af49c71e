// internal/realtime/conn.go
package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/markb/workhub/internal/log"
)

const (
	// Time allowed to write a message
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message
	pongWait = 30 * time.Second

	// Send pings with this period (must be less than pongWait)
	pingPeriod = 25 * time.Second

	// Room for the envelope around a body of MaxBodyBytes
	frameOverhead = 4096
)

// Conn is a websocket connection bound to one session.
type Conn struct {
	id      string
	ws      *websocket.Conn
	hub     *Hub
	session *Session
	limiter *rateLimiter

	ctx       context.Context
	cancel    context.CancelFunc
	send      chan []byte   // outbound message queue
	done      chan struct{} // closed when connection ends
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, hub *Hub) *Conn {
	cfg := hub.cfg
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		id:     uuid.New().String(),
		ws:     ws,
		hub:    hub,
		ctx:    ctx,
		cancel: cancel,
		send:   make(chan []byte, cfg.SendBufferSize),
		done:   make(chan struct{}),
	}
	if cfg.RateLimit > 0 {
		c.limiter = newRateLimiter(cfg.RateLimit, cfg.RateInterval)
	}
	return c
}

// ID returns the connection ID
func (c *Conn) ID() string {
	return c.id
}

// Deliver queues evt for the write pump. It waits for buffer space until ctx ends.
func (c *Conn) Deliver(ctx context.Context, evt Event) error {
	data, err := EventFrame(evt).Encode()
	if err != nil {
		return err
	}
	return c.enqueue(ctx, data)
}

func (c *Conn) enqueue(ctx context.Context, data []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errConnClosed
	case <-ctx.Done():
		return fmt.Errorf("send buffer full: %w", ctx.Err())
	}
}

func (c *Conn) reply(f *Frame) {
	data, err := f.Encode()
	if err != nil {
		log.Error("realtime: encode reply", "conn_id", c.id, "error", err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, writeWait)
	defer cancel()
	if err := c.enqueue(ctx, data); err != nil {
		log.Debug("realtime: reply dropped", "conn_id", c.id, "ref", f.Ref, "error", err.Error())
	}
}

// Close closes the socket and ends the session. Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
		if c.ws != nil {
			c.ws.Close()
		}
		if c.session != nil {
			c.session.Close(context.Background())
		}
	})
}

// ReadPump reads frames from the websocket and handles them in arrival order.
func (c *Conn) ReadPump() {
	defer c.Close()

	c.ws.SetReadLimit(int64(c.hub.cfg.MaxBodyBytes)*2 + frameOverhead)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("realtime: read error", "conn_id", c.id, "error", err.Error())
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))

		frame, err := DecodeFrame(data)
		if err != nil {
			log.Debug("realtime: invalid frame", "conn_id", c.id, "error", err.Error(), "len", len(data))
			c.reply(NewErrorReply("", "", CodeInvalidFrame, err.Error(), false))
			continue
		}

		if c.limiter != nil && !c.limiter.allow() {
			log.Debug("realtime: rate limited", "conn_id", c.id, "event", frame.Event)
			c.reply(NewErrorReply(frame.Topic, frame.Ref, CodeRateLimited, "too many frames", true))
			continue
		}

		c.handleFrame(frame)
	}
}

// WritePump writes queued frames and keepalive pings to the websocket.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// handleFrame routes a client frame to the session.
func (c *Conn) handleFrame(f *Frame) {
	log.Debug("realtime: handleFrame", "conn_id", c.id, "event", f.Event, "topic", f.Topic)

	switch f.Event {
	case FrameHeartbeat:
		c.reply(NewReply(f.Topic, f.Ref, nil))
	case FrameJoin:
		c.handleJoin(f)
	case FrameLeave:
		c.handleLeave(f)
	case FrameSend:
		c.handleSend(f)
	default:
		c.reply(NewErrorReply(f.Topic, f.Ref, CodeUnknownEvent, "unknown event "+f.Event, false))
	}
}

func (c *Conn) handleJoin(f *Frame) {
	if err := c.session.Join(c.ctx, f.Topic); err != nil {
		c.reply(ErrorReply(f.Topic, f.Ref, err))
		return
	}
	c.reply(NewReply(f.Topic, f.Ref, nil))
}

func (c *Conn) handleLeave(f *Frame) {
	if err := c.session.Leave(c.ctx, f.Topic); err != nil {
		c.reply(ErrorReply(f.Topic, f.Ref, err))
		return
	}
	c.reply(NewReply(f.Topic, f.Ref, nil))
}

func (c *Conn) handleSend(f *Frame) {
	msg, err := c.session.Send(c.ctx, f.Topic, f.PayloadString("body"))
	if err != nil {
		c.reply(ErrorReply(f.Topic, f.Ref, err))
		return
	}
	c.reply(NewReply(f.Topic, f.Ref, map[string]any{
		"id":        msg.ID,
		"seq":       msg.Seq,
		"timestamp": msg.CreatedAt.Format(time.RFC3339Nano),
	}))
}
