package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"contest-engine/internal/app"
	"contest-engine/internal/domain"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	engine   *app.Engine
	upgrader websocket.Upgrader
}

func NewWSHandler(engine *app.Engine) *WSHandler {
	return &WSHandler{
		engine: engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type startPayload struct {
	Mode      domain.Mode `json:"mode"`
	ContestID string      `json:"contestId"`
}

type answerPayload struct {
	Selection int `json:"selection"`
}

type startedPayload struct {
	SessionID string `json:"sessionId"`
	Total     int    `json:"total"`
}

type syncPayload struct {
	Synced bool `json:"synced"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error(), Code: errorCode(err)}}
}

// ServeWS upgrades HTTP requests to websockets and drives the caller's play.
// Events of the play are forwarded as {type, payload} frames.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)
	if userID == "" {
		http.Error(w, "missing userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	play := h.engine.Play(userID)
	events, cancel := play.Subscribe()
	defer h.engine.Leave(userID)
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	// Only the writer goroutine touches conn for writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: string(ev.Type), Payload: ev}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "ready", Payload: play.Snapshot()}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "start":
			var payload startPayload
			if len(inbound.Payload) > 0 {
				if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
					send <- errorMessage(errors.New("invalid start payload"))
					continue
				}
			}
			if payload.Mode == "" {
				payload.Mode = domain.ModeSolo
			}
			draw, err := h.engine.StartPlay(r.Context(), userID, payload.Mode, payload.ContestID)
			if err != nil {
				send <- errorMessage(err)
				continue
			}
			send <- outboundMessage[any]{Type: "started", Payload: startedPayload{
				SessionID: draw.Session.ID,
				Total:     len(draw.Questions),
			}}
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMessage(errors.New("invalid answer payload"))
				continue
			}
			if _, err := play.Submit(app.Selection(payload.Selection)); err != nil {
				send <- errorMessage(err)
			}
		case "visibility":
			// The warning or abort reaches the client as a play event.
			_ = play.VisibilityLost()
		case "leave":
			play.Abandon()
		case "sync":
			synced, err := h.engine.Sync(r.Context(), userID)
			if err != nil {
				send <- errorMessage(err)
				continue
			}
			send <- outboundMessage[any]{Type: "sync", Payload: syncPayload{Synced: synced}}
		default:
			send <- errorMessage(errors.New("unsupported message type"))
		}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}
