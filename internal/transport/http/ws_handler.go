package http

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"checkin-sync-service/internal/domain"
	"checkin-sync-service/internal/realtime"
	"github.com/gorilla/websocket"
)

// WSHandler upgrades viewers into hub rooms: every assignment message a
// viewer sends is fanned out to the other subscribers of its (class, date)
// room. No replay on join; late viewers hydrate from the read path.
type WSHandler struct {
	hub      *realtime.Hub
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *realtime.Hub) *WSHandler {
	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	classID, err := strconv.ParseInt(r.URL.Query().Get("classId"), 10, 64)
	if err != nil {
		http.Error(w, "invalid classId", http.StatusBadRequest)
		return
	}
	date := r.URL.Query().Get("date")
	if date == "" {
		http.Error(w, "missing date", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub := h.hub.Join(classID, date)
	defer sub.Leave()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range sub.C() {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var msg domain.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("malformed ws message dropped: %v", err)
			continue
		}
		if msg.Type != domain.MessageTypeAssignment {
			// Unknown types are ignored, not errors.
			continue
		}
		// Pin the room key: a client cannot publish into another view.
		msg.ClassID = classID
		msg.Date = date
		sub.Publish(msg)
	}

	sub.Leave()
	<-writerDone
}
