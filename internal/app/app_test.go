package app

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"montewalk/internal/config"
	"montewalk/internal/tools"
)

func TestBuildOffline(t *testing.T) {
	t.Setenv("APCA_API_KEY_ID", "")
	t.Setenv("APCA_API_SECRET_KEY", "")
	t.Setenv("ALPACA_API_KEY", "")
	t.Setenv("ALPACA_API_SECRET", "")
	t.Setenv("REDIS_ADDR", "")

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Alpaca.APIKey, cfg.Alpaca.APISecret = "", ""
	cfg.Redis.Addr = ""
	cfg.Storage.DataDir = filepath.Join(dir, "data")
	cfg.Storage.SQLitePath = filepath.Join(dir, "db", "montewalk.db")

	a, err := Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	assert.Nil(t, a.Upstream)
	assert.Equal(t, "simulator", a.Broker.Name())
	assert.Len(t, a.Tools.List(), 22)

	ctx := context.Background()
	_, err = a.Tools.Call(ctx, "add_to_watchlist", json.RawMessage(`{"symbol":"msft"}`))
	require.NoError(t, err)
	resp, err := a.Tools.Call(ctx, "get_watchlist", nil)
	require.NoError(t, err)
	wl := resp.(*tools.WatchlistResponse)
	require.Len(t, wl.Symbols, 1)
	assert.Equal(t, "MSFT", wl.Symbols[0].Symbol)

	pos, err := a.Tools.Call(ctx, "get_positions", nil)
	require.NoError(t, err)
	assert.InDelta(t, cfg.Trading.StartingCash, pos.(*tools.PositionsResponse).Cash, 1e-9)
}
