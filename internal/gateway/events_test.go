// ABOUTME: Tests for the SSE change event stream
// ABOUTME: Verifies event framing, per-conversation filtering, and stream termination

package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sseFrame struct {
	Event string
	Data  string
}

// openEventStream connects to path and returns a channel of parsed frames.
func openEventStream(t *testing.T, srv *httptest.Server, path string) <-chan sseFrame {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	frames := make(chan sseFrame, 16)
	go func() {
		defer close(frames)
		defer resp.Body.Close()

		var cur sseFrame
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				cur.Event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				cur.Data = strings.TrimPrefix(line, "data: ")
			case line == "" && cur.Event != "":
				frames <- cur
				cur = sseFrame{}
			}
		}
	}()
	return frames
}

func nextFrame(t *testing.T, frames <-chan sseFrame) sseFrame {
	t.Helper()
	select {
	case f, ok := <-frames:
		require.True(t, ok, "stream closed unexpectedly")
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SSE frame")
		return sseFrame{}
	}
}

func TestHandleEvents_StreamsStoreChanges(t *testing.T) {
	gw := newTestGateway(t, "direct", nil)
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)

	frames := openEventStream(t, srv, "/api/events")
	assert.Equal(t, "ready", nextFrame(t, frames).Event)

	conv, _ := gw.Store().CreateOrGetConversation("alice")
	gw.Store().AppendUserMessage(conv.ID, "hi")
	gw.Store().DeleteConversation(conv.ID)

	for _, want := range []string{"created", "appended", "deleted"} {
		f := nextFrame(t, frames)
		assert.Equal(t, want, f.Event)

		var payload ChangeEventResponse
		require.NoError(t, json.Unmarshal([]byte(f.Data), &payload))
		assert.Equal(t, want, payload.Kind)
		assert.Equal(t, conv.ID, payload.ConversationID)
		assert.NotEmpty(t, payload.At)
	}
}

func TestHandleEvents_FilteredByConversation(t *testing.T) {
	gw := newTestGateway(t, "direct", nil)
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)

	alice, _ := gw.Store().CreateOrGetConversation("alice")
	bob, _ := gw.Store().CreateOrGetConversation("bob")

	frames := openEventStream(t, srv, "/api/events?conversation_id="+alice.ID)
	assert.Equal(t, "ready", nextFrame(t, frames).Event)

	gw.Store().AppendUserMessage(bob.ID, "ignored")
	gw.Store().AppendUserMessage(alice.ID, "seen")

	f := nextFrame(t, frames)
	var payload ChangeEventResponse
	require.NoError(t, json.Unmarshal([]byte(f.Data), &payload))
	assert.Equal(t, alice.ID, payload.ConversationID)
}

func TestHandleEvents_UnknownConversation(t *testing.T) {
	gw := newTestGateway(t, "direct", nil)

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events?conversation_id=missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleEvents_EndsOnStoreClose(t *testing.T) {
	gw := newTestGateway(t, "direct", nil)
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)

	frames := openEventStream(t, srv, "/api/events")
	assert.Equal(t, "ready", nextFrame(t, frames).Event)

	gw.Store().Close()

	select {
	case _, ok := <-frames:
		assert.False(t, ok, "stream should end once the store closes")
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after store close")
	}
}
