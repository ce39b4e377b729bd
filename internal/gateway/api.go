// ABOUTME: HTTP API handlers exposing the conversation store as JSON
// ABOUTME: Covers list, get-or-create, fetch (optionally rendered), append, reply, delete

package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389/coven-chat/internal/conversation"
)

// CreateConversationRequest is the JSON request body for POST /api/conversations.
type CreateConversationRequest struct {
	UserName string `json:"user_name"`
}

// AddMessageRequest is the JSON request body for POST /api/conversations/{id}/messages.
type AddMessageRequest struct {
	Text       string `json:"text"`
	IsFromUser bool   `json:"is_from_user"`
}

// ConversationSummary is one entry of GET /api/conversations.
type ConversationSummary struct {
	ID            string `json:"id"`
	UserName      string `json:"user_name"`
	Title         string `json:"title"`
	MessageCount  int    `json:"message_count"`
	CreatedAt     string `json:"created_at"`
	LastMessageAt string `json:"last_message_at"`
}

// ListConversationsResponse is the JSON response for GET /api/conversations.
type ListConversationsResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
}

// MessageResponse is the JSON form of one message.
type MessageResponse struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
	HTML           string `json:"html,omitempty"` // only with ?format=html
	IsFromUser     bool   `json:"is_from_user"`
	Timestamp      string `json:"timestamp"`
}

// ConversationResponse is the JSON form of a full conversation.
type ConversationResponse struct {
	ID                 string            `json:"id"`
	UserName           string            `json:"user_name"`
	Title              string            `json:"title"`
	CreatedAt          string            `json:"created_at"`
	LastMessageAt      string            `json:"last_message_at"`
	PreviousResponseID string            `json:"previous_response_id,omitempty"`
	Messages           []MessageResponse `json:"messages"`
}

// maxRequestBody caps JSON request bodies.
const maxRequestBody = 1 << 20

func (g *Gateway) registerAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/conversations", g.handleListConversations)
	mux.HandleFunc("POST /api/conversations", g.handleCreateConversation)
	mux.HandleFunc("GET /api/conversations/{id}", g.handleGetConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", g.handleDeleteConversation)
	mux.HandleFunc("POST /api/conversations/{id}/messages", g.handleAddMessage)
	mux.HandleFunc("POST /api/conversations/{id}/reply", g.handleGenerateReply)
	mux.HandleFunc("GET /api/events", g.handleEvents)
}

// handleListConversations handles GET /api/conversations.
// Conversations are ordered most recently active first.
func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs := g.store.ListConversations()

	response := ListConversationsResponse{
		Conversations: make([]ConversationSummary, len(convs)),
	}
	for i, c := range convs {
		response.Conversations[i] = ConversationSummary{
			ID:            c.ID,
			UserName:      c.UserName,
			Title:         c.Title,
			MessageCount:  len(c.Messages),
			CreatedAt:     formatTime(c.CreatedAt),
			LastMessageAt: formatTime(c.LastMessageAt),
		}
	}

	g.writeJSON(w, http.StatusOK, response)
}

// handleCreateConversation handles POST /api/conversations.
// Returns 201 when a conversation was created, 200 when the user already had one.
func (g *Gateway) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.UserName = strings.TrimSpace(req.UserName)
	if req.UserName == "" {
		g.sendJSONError(w, http.StatusBadRequest, "user_name is required")
		return
	}

	conv, created := g.store.CreateOrGetConversation(req.UserName)

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	g.writeJSON(w, status, g.toConversationResponse(conv, false))
}

// handleGetConversation handles GET /api/conversations/{id}.
// ?format=html adds the markdown rendering of every message.
func (g *Gateway) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := g.store.GetConversation(r.PathValue("id"))
	if !ok {
		g.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return
	}

	withHTML := r.URL.Query().Get("format") == "html"
	g.writeJSON(w, http.StatusOK, g.toConversationResponse(conv, withHTML))
}

// handleDeleteConversation handles DELETE /api/conversations/{id}.
func (g *Gateway) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if !g.store.DeleteConversation(r.PathValue("id")) {
		g.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAddMessage handles POST /api/conversations/{id}/messages.
// In remote mode an assistant message triggers reply generation and its text is ignored.
func (g *Gateway) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	var req AddMessageRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	generates := !req.IsFromUser && g.store.Mode() == conversation.ModeRemote
	if !generates && strings.TrimSpace(req.Text) == "" {
		g.sendJSONError(w, http.StatusBadRequest, "text is required")
		return
	}

	id := r.PathValue("id")
	msg, ok := g.store.AddMessage(r.Context(), id, req.Text, req.IsFromUser)
	g.writeLatestMessage(w, id, msg, ok)
}

// handleGenerateReply handles POST /api/conversations/{id}/reply.
// The response carries the most recent message; it is the user's own message
// when the remote call failed.
func (g *Gateway) handleGenerateReply(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	msg, ok := g.store.GenerateReply(r.Context(), id)
	g.writeLatestMessage(w, id, msg, ok)
}

// writeLatestMessage reports a store result. A miss on an existing
// conversation means it has no messages yet.
func (g *Gateway) writeLatestMessage(w http.ResponseWriter, id string, msg conversation.Message, ok bool) {
	if ok {
		g.writeJSON(w, http.StatusOK, g.toMessageResponse(msg, false))
		return
	}
	if _, exists := g.store.GetConversation(id); exists {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	g.sendJSONError(w, http.StatusNotFound, "conversation not found")
}

func (g *Gateway) toConversationResponse(c conversation.Conversation, withHTML bool) ConversationResponse {
	resp := ConversationResponse{
		ID:                 c.ID,
		UserName:           c.UserName,
		Title:              c.Title,
		CreatedAt:          formatTime(c.CreatedAt),
		LastMessageAt:      formatTime(c.LastMessageAt),
		PreviousResponseID: c.PreviousResponseID,
		Messages:           make([]MessageResponse, len(c.Messages)),
	}
	for i, m := range c.Messages {
		resp.Messages[i] = g.toMessageResponse(m, withHTML)
	}
	return resp
}

func (g *Gateway) toMessageResponse(m conversation.Message, withHTML bool) MessageResponse {
	resp := MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Text:           m.Text,
		IsFromUser:     m.IsFromUser,
		Timestamp:      formatTime(m.Timestamp),
	}
	if withHTML {
		resp.HTML = g.renderMarkdown(m.Text)
	}
	return resp
}

// renderMarkdown converts message text to HTML. Raw HTML in the text is not passed through.
func (g *Gateway) renderMarkdown(text string) string {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(text), &buf); err != nil {
		g.logger.Error("failed to convert markdown", "error", err)
		return ""
	}
	return buf.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// decodeJSON parses a bounded JSON request body into v.
func decodeJSON(body io.Reader, v any) error {
	dec := json.NewDecoder(io.LimitReader(body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
