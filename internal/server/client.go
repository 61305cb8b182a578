package server

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ChamsBouzaiene/stagehand/internal/protocol"
)

// client is one websocket connection. Reads and writes each have a single
// goroutine, as gorilla/websocket requires.
type client struct {
	conn    *websocket.Conn
	handler *protocol.Handler
	logger  zerolog.Logger

	send chan protocol.Event
	done chan struct{}
}

func newClient(conn *websocket.Conn, logger zerolog.Logger) *client {
	return &client{
		conn:   conn,
		logger: logger,
		send:   make(chan protocol.Event, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// emit queues ev, blocking while the buffer is full. Events for a
// disconnected client are dropped.
func (c *client) emit(ev protocol.Event) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- ev:
	case <-c.done:
	}
}

// serve runs until the connection drops, then closes the client's sessions.
func (c *client) serve() {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump()
	}()

	c.readPump(ctx, &wg)

	cancel()
	close(c.done)
	if err := c.handler.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("close client sessions")
	}
	wg.Wait()
	c.conn.Close()
}

func (c *client) readPump(ctx context.Context, wg *sync.WaitGroup) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("websocket read")
			}
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.handler.HandleLine(ctx, msg)
		}()
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case ev := <-c.send:
			payload, err := protocol.MarshalEvent(ev)
			if err != nil {
				c.logger.Error().Err(err).Str("event", string(ev.GetType())).Msg("marshal event")
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Warn().Err(err).Msg("websocket write")
				c.conn.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}
