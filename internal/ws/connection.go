package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"connectifyr/internal/models"
)

const (
	writeWait = 10 * time.Second
	// The page pings every 30 seconds; three missed pings drop the tab.
	idleTimeout = 90 * time.Second
)

type wsConnection interface {
	Close() error
	WriteJSON(v any) error
	ReadJSON(v any) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

type eventHub interface {
	Join() (uint64, chan models.ServerEvent)
	Leave(id uint64)
}

// Connection pumps hub events to one browser tab and answers its pings.
type Connection struct {
	ws      wsConnection
	hub     eventHub
	id      uint64
	inbox   chan models.ClientMessage
	events  chan models.ServerEvent
	errorCh chan error
	now     func() time.Time
}

func NewConnection(hub eventHub, ws wsConnection) *Connection {
	id, events := hub.Join()
	return &Connection{
		ws:      ws,
		hub:     hub,
		id:      id,
		inbox:   make(chan models.ClientMessage),
		events:  events,
		errorCh: make(chan error, 2),
		now:     time.Now,
	}
}

// Handle blocks until the context ends, the tab goes away or the hub closes
// the event stream. The socket is always closed and the hub left on return.
func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		close(c.errorCh)
		c.hub.Leave(c.id)
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.readLoop(ctx)
		cancel()
	})
	wg.Go(func() {
		c.errorCh <- c.writeLoop(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
	}
	_ = c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (c *Connection) readLoop(ctx context.Context) error {
	for {
		if err := c.ws.SetReadDeadline(c.now().Add(idleTimeout)); err != nil {
			return err
		}
		var msg models.ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			return err
		}
		select {
		case c.inbox <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) writeLoop(ctx context.Context) error {
	for {
		select {
		case msg := <-c.inbox:
			if msg.Type == models.ClientMessagePing {
				if err := c.write(models.ServerEvent{Type: models.ServerEventPong}); err != nil {
					return err
				}
			}
		case event, ok := <-c.events:
			if !ok {
				return nil
			}
			if err := c.write(event); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Connection) write(event models.ServerEvent) error {
	if err := c.ws.SetWriteDeadline(c.now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(event)
}
