package sentinel

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentlens/sentinel/internal/config"
)

func TestAppWiresHTTPTransport(t *testing.T) {
	store := newFakeStore()
	cache := newFakeCache()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	cfg := config.Default()
	cfg.HTTP.Addr = addr

	app := NewApp(cfg, Deps{Store: store, Cache: cache})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- app.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/api/fallback/status")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("app did not shut down in time")
	}
}

func TestAppIngestorAndBusWired(t *testing.T) {
	store := newFakeStore()
	cache := newFakeCache()
	require.NoError(t, store.Init(context.Background()))

	app := NewApp(config.Default(), Deps{Store: store, Cache: cache})

	saved, err := app.Ingestor().Ingest(context.Background(), NewEvent{
		SourceApp:     "claude-code",
		SessionID:     "s1",
		HookEventType: HookSessionStart,
		Timestamp:     NowMillis(),
		Payload:       map[string]any{},
	})
	require.NoError(t, err)
	require.Equal(t, "s1", saved.SessionID)
	require.NotNil(t, app.Bus())
}
