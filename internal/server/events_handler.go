package server

import (
	"fmt"
	"net/http"

	"github.com/bjarke-xyz/appstore-api/internal/domain"
	"github.com/gorilla/websocket"
)

func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	collection := r.URL.Query().Get("collection")
	if collection != "" {
		if _, ok := s.store.Collection(collection); !ok {
			s.writeError(w, r, fmt.Errorf("unknown collection %q: %w", collection, domain.ErrMalformed))
			return
		}
	}

	// Subscribe before upgrading so the client misses nothing published after
	// the handshake completes.
	client, ok := s.feed.subscribe(r.Context(), collection)
	if !ok {
		http.Error(w, "change feed unavailable", http.StatusServiceUnavailable)
		return
	}
	// Remove this client from the broker when the handler exits.
	defer s.feed.unsubscribe(client)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("error while upgrading connection", "error", err)
		return
	}
	defer conn.Close()

	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.logger.Error("failed to write feed message", "error", err)
				return
			}
		}
		// The broker closed the channel, i.e. it is shutting down.
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Error("error reading feed message", "error", err)
			}
			break
		}
	}
}
