// ABOUTME: Tests for gateway construction, health endpoints, and lifecycle
// ABOUTME: Covers completion client selection, tailscale resolution helpers, and Run/Shutdown

package gateway

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-chat/internal/completion"
	"github.com/2389/coven-chat/internal/config"
	"github.com/2389/coven-chat/internal/conversation"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(mode string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{HTTPAddr: "localhost:0"},
		Assistant: config.AssistantConfig{
			Mode:     mode,
			Provider: "responses",
			Model:    "gpt-test",
			Timeout:  time.Second,
		},
		Logging: config.LoggingConfig{Level: "info", Format: "text"},
	}
}

func TestNew_RemoteModeBuildsConfiguredProvider(t *testing.T) {
	tests := []struct {
		provider string
		want     any
	}{
		{provider: "responses", want: &completion.ResponsesClient{}},
		{provider: "openai", want: &completion.OpenAIClient{}},
		{provider: "anthropic", want: &completion.AnthropicClient{}},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := testConfig("remote")
			cfg.Assistant.Provider = tt.provider

			gw, err := New(cfg, discardLogger())
			require.NoError(t, err)
			t.Cleanup(func() { _ = gw.Shutdown(context.Background()) })

			assert.IsType(t, tt.want, gw.completer)
			assert.Equal(t, conversation.ModeRemote, gw.Store().Mode())
		})
	}
}

func TestNew_DirectModeHasNoCompleter(t *testing.T) {
	gw, err := New(testConfig("direct"), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Shutdown(context.Background()) })

	assert.Nil(t, gw.completer)
	assert.Equal(t, conversation.ModeDirect, gw.Store().Mode())
}

func TestNew_UnknownProvider(t *testing.T) {
	cfg := testConfig("remote")
	cfg.Assistant.Provider = "carrier-pigeon"

	_, err := New(cfg, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating completion client")
}

func TestNew_UnknownMode(t *testing.T) {
	_, err := newGateway(testConfig("psychic"), nil, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating conversation store")
}

func TestHandleHealth(t *testing.T) {
	gw := newTestGateway(t, "direct", nil)

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestHandleReady(t *testing.T) {
	gw := newTestGateway(t, "remote", &stubCompleter{})
	gw.Store().CreateOrGetConversation("alice")

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready (remote mode, 1 conversations)", rec.Body.String())
}

func TestResolveTailscaleStateDir(t *testing.T) {
	dir, err := resolveTailscaleStateDir("/var/lib/chat-ts")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/chat-ts", dir)

	home := t.TempDir()
	t.Setenv("HOME", home)
	dir, err = resolveTailscaleStateDir("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".local", "share", "coven-chat", "tailscale"), dir)
}

func TestResolveTailscaleAuthKey(t *testing.T) {
	t.Setenv("TS_AUTHKEY", "")

	key, err := resolveTailscaleAuthKey("tskey-config")
	require.NoError(t, err)
	assert.Equal(t, "tskey-config", key)

	_, err = resolveTailscaleAuthKey("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TS_AUTHKEY")

	t.Setenv("TS_AUTHKEY", "tskey-env")
	key, err = resolveTailscaleAuthKey("")
	require.NoError(t, err)
	assert.Equal(t, "tskey-env", key)
}

func TestRun_ServesUntilCanceled(t *testing.T) {
	// Reserve a free port, then hand it to the gateway.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := testConfig("direct")
	cfg.Server.HTTPAddr = addr
	gw, err := newGateway(cfg, nil, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(6 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	cfg := testConfig("direct")
	cfg.Server.HTTPAddr = ln.Addr().String()
	gw, err := newGateway(cfg, nil, discardLogger())
	require.NoError(t, err)

	err = gw.Run(t.Context())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "listening on HTTP address"))
}
