// ABOUTME: Server-Sent Events stream of conversation change notifications
// ABOUTME: Serves GET /api/events, optionally filtered to one conversation

package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/2389/coven-chat/internal/conversation"
)

// keepaliveInterval is how often an idle stream gets an SSE comment line.
const keepaliveInterval = 15 * time.Second

// ChangeEventResponse is the data payload of one SSE change event.
type ChangeEventResponse struct {
	Kind           string `json:"kind"`
	ConversationID string `json:"conversation_id"`
	At             string `json:"at"`
}

// handleEvents handles GET /api/events[?conversation_id=ID].
// Each store change is sent as "event: <kind>" with a JSON payload. The
// stream ends when the client disconnects or the gateway shuts down.
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	// Check streaming support before sending (fail fast)
	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	conversationID := r.URL.Query().Get("conversation_id")
	if conversationID != "" {
		if _, exists := g.store.GetConversation(conversationID); !exists {
			g.sendJSONError(w, http.StatusNotFound, "conversation not found")
			return
		}
	}

	var events <-chan conversation.ChangeEvent
	if conversationID != "" {
		events, _ = g.store.SubscribeConversation(r.Context(), conversationID)
	} else {
		events, _ = g.store.Subscribe(r.Context())
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	g.writeSSEEvent(w, "ready", map[string]string{"conversation_id": conversationID})
	flusher.Flush()

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			_, _ = fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			g.writeSSEEvent(w, string(ev.Kind), ChangeEventResponse{
				Kind:           string(ev.Kind),
				ConversationID: ev.ConversationID,
				At:             formatTime(ev.At),
			})
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes a single SSE event to the response writer.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}
