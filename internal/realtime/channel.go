package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"sync"
	"time"

	"checkin-sync-service/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	reconnectBase = 500 * time.Millisecond
	reconnectMax  = 30 * time.Second
)

// WSChannel is the client side of the realtime link: one websocket per open
// (class, date) view. Publishes while disconnected are dropped, not queued;
// the store already holds the local truth and the reconnect re-hydrate
// reconciles anything missed. Inbound messages with unknown types are
// ignored and malformed payloads are dropped and logged.
type WSChannel struct {
	url    string
	dialer *websocket.Dialer

	handler   func(domain.AssignmentRecord)
	onConnect func()

	writeMu sync.Mutex
	conn    *websocket.Conn

	done chan struct{}
}

// NewWSChannel builds a channel for ws(s)://host/ws keyed by class and date.
func NewWSChannel(baseURL string, classID int64, date string) *WSChannel {
	query := url.Values{}
	query.Set("classId", strconv.FormatInt(classID, 10))
	query.Set("date", date)
	return &WSChannel{
		url:    baseURL + "/ws?" + query.Encode(),
		dialer: websocket.DefaultDialer,
		done:   make(chan struct{}),
	}
}

// OnMessage registers the inbound handler. Must be set before Connect.
func (c *WSChannel) OnMessage(fn func(domain.AssignmentRecord)) { c.handler = fn }

// OnConnect registers a hook fired after every successful reconnect. It does
// not fire for the initial connection; the caller hydrates before Connect.
func (c *WSChannel) OnConnect(fn func()) { c.onConnect = fn }

// Connect dials the hub and starts the read loop. The initial dial failing
// is an error; later disconnects auto-reconnect with capped backoff.
func (c *WSChannel) Connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial realtime channel: %w", err)
	}
	c.setConn(conn)
	go c.readLoop(ctx)
	return nil
}

// Publish sends the record to all other subscribers of the room. Dropped
// silently when disconnected.
func (c *WSChannel) Publish(rec domain.AssignmentRecord) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		log.Printf("realtime channel disconnected, dropping publish for student %d", rec.StudentID)
		return
	}
	if err := c.conn.WriteJSON(domain.NewAssignmentMessage(rec)); err != nil {
		log.Printf("realtime publish: %v", err)
	}
}

// Close tears down the subscription. Safe to call more than once.
func (c *WSChannel) Close() error {
	select {
	case <-c.done:
		return nil
	default:
	}
	close(c.done)
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *WSChannel) setConn(conn *websocket.Conn) {
	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()
}

func (c *WSChannel) readLoop(ctx context.Context) {
	for {
		c.writeMu.Lock()
		conn := c.conn
		c.writeMu.Unlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			case <-ctx.Done():
				return
			default:
			}
			if !c.reconnect(ctx) {
				return
			}
			continue
		}
		c.deliver(raw)
	}
}

func (c *WSChannel) deliver(raw []byte) {
	var msg domain.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("malformed realtime message dropped: %v", err)
		return
	}
	if msg.Type != domain.MessageTypeAssignment {
		return
	}
	if c.handler != nil {
		c.handler(msg.Record())
	}
}

// reconnect retries the dial with exponential backoff until it succeeds or
// the channel is closed. Returns false when the channel is done.
func (c *WSChannel) reconnect(ctx context.Context) bool {
	c.setConn(nil)
	backoff := reconnectBase
	for {
		select {
		case <-c.done:
			return false
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}

		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err == nil {
			c.setConn(conn)
			if c.onConnect != nil {
				c.onConnect()
			}
			return true
		}
		log.Printf("realtime reconnect: %v", err)
		if backoff < reconnectMax {
			backoff *= 2
		}
	}
}
