package realtime

import (
	"fmt"
	"sync"

	"checkin-sync-service/internal/domain"
)

// RoomMarker mirrors room liveness to shared storage (Redis) so operators
// can see which class/date views are open. Best effort, never blocks fanout.
type RoomMarker interface {
	MarkActive(key string)
	ClearRoom(key string)
}

// Hub fans assignment messages out to every other subscriber of the same
// (class, date) room. There is no buffering or replay: a subscriber that
// joins late must re-hydrate from the read path, not from the hub.
type Hub struct {
	marker RoomMarker

	mu    sync.Mutex
	rooms map[string]*room
}

type room struct {
	subs map[*Subscription]struct{}
}

// Subscription is one viewer's membership in a room.
type Subscription struct {
	hub *Hub
	key string
	ch  chan domain.Message
}

func NewHub() *Hub {
	return NewHubWithMarker(nil)
}

func NewHubWithMarker(marker RoomMarker) *Hub {
	return &Hub{marker: marker, rooms: make(map[string]*room)}
}

// RoomKey names the room for one class/date view.
func RoomKey(classID int64, date string) string {
	return fmt.Sprintf("%d:%s", classID, date)
}

// Join subscribes to the room for (classID, date), creating it on demand.
func (h *Hub) Join(classID int64, date string) *Subscription {
	key := RoomKey(classID, date)

	h.mu.Lock()
	rm, ok := h.rooms[key]
	if !ok {
		rm = &room{subs: make(map[*Subscription]struct{})}
		h.rooms[key] = rm
	}
	sub := &Subscription{hub: h, key: key, ch: make(chan domain.Message, 16)}
	rm.subs[sub] = struct{}{}
	h.mu.Unlock()

	if h.marker != nil {
		h.marker.MarkActive(key)
	}
	return sub
}

// C delivers messages published by other members of the room.
func (s *Subscription) C() <-chan domain.Message { return s.ch }

// Publish fans msg out to every other subscriber of the room. Slow consumers
// lose their oldest queued message rather than blocking the broadcast.
func (s *Subscription) Publish(msg domain.Message) {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()

	rm, ok := s.hub.rooms[s.key]
	if !ok {
		return
	}
	for sub := range rm.subs {
		if sub == s {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- msg
		}
	}
}

// Leave removes the subscription and drops the room once it is empty.
func (s *Subscription) Leave() {
	s.hub.mu.Lock()
	rm, ok := s.hub.rooms[s.key]
	empty := false
	if ok {
		if _, member := rm.subs[s]; member {
			delete(rm.subs, s)
			close(s.ch)
		}
		if len(rm.subs) == 0 {
			delete(s.hub.rooms, s.key)
			empty = true
		}
	}
	s.hub.mu.Unlock()

	if empty && s.hub.marker != nil {
		s.hub.marker.ClearRoom(s.key)
	}
}
