package api

import (
	"encoding/json"
	"net/http"

	"golang.org/x/net/websocket"
)

// handleStream upgrades the request to a websocket and relays the session's
// analysis envelopes until the client disconnects or the session ends.
func (h handlers) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := pathID(r, "sessionID")
	if sessionID == "" {
		writeError(w, errSessionIDRequired)
		return
	}

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		defer func() {
			_ = conn.Close()
		}()

		subscription := h.hub.Subscribe(sessionID)
		defer subscription.Close()

		encoder := json.NewEncoder(conn)
		done := r.Context().Done()
		for {
			select {
			case envelope, ok := <-subscription.C:
				if !ok {
					return
				}
				if err := encoder.Encode(envelope); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	})
	wsHandler.ServeHTTP(w, r)
}
