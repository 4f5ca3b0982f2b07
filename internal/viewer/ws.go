package viewer

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/auricle-ai/auricle/internal/bus"
)

// subscriberBuffer is the per-client bus buffer. A client that falls further
// behind than this loses its oldest events instead of stalling the pipeline.
const subscriberBuffer = 256

// writeTimeout bounds a single WebSocket write; a client that cannot keep up
// is disconnected.
const writeTimeout = 5 * time.Second

// wsEvent is the wire form of one bus event.
type wsEvent struct {
	Kind      bus.Kind  `json:"kind"`
	SessionID string    `json:"session_id,omitempty"`
	Time      time.Time `json:"time"`
	Payload   any       `json:"payload,omitempty"`
}

// snapshot is the first message on every connection, so clients can render
// without waiting for the next event.
type snapshot struct {
	Kind      string `json:"kind"`
	State     string `json:"state"`
	SessionID string `json:"session_id,omitempty"`
}

// handleEvents upgrades the request and streams bus events as JSON text
// messages until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	sub := s.bus.Subscribe(subscriberBuffer)
	defer sub.Unsubscribe()

	s.metrics.ViewerClients.Add(r.Context(), 1)
	defer s.metrics.ViewerClients.Add(context.Background(), -1)

	// The client never sends data messages; CloseRead watches for close
	// frames and cancels the context.
	ctx := conn.CloseRead(r.Context())

	snap := snapshot{Kind: "snapshot", State: string(s.ctrl.State()), SessionID: s.ctrl.SessionID()}
	if err := writeMessage(ctx, conn, snap); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-sub.C:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "event stream closed")
				return
			}
			msg := wsEvent{Kind: ev.Kind, SessionID: ev.SessionID, Time: ev.Time, Payload: ev.Payload}
			if err := writeMessage(ctx, conn, msg); err != nil {
				if dropped := sub.Dropped(); dropped > 0 {
					s.log.Warn("viewer client disconnected", "dropped_events", dropped)
				}
				return
			}
		}
	}
}

func writeMessage(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}
