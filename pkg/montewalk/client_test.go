package montewalk

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	c := NewClient("http://localhost:8080/")
	assert.Equal(t, "http://localhost:8080", c.baseURL)
	require.NotNil(t, c.httpClient)

	hc := &http.Client{}
	assert.Same(t, hc, NewClient("x", WithHTTPClient(hc)).httpClient)
}

func newServer(t *testing.T) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("GET /api/tools", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"tools":[{"name":"volatility","description":"vol"}]}`))
	})
	mux.HandleFunc("POST /api/tools/{name}", func(w http.ResponseWriter, r *http.Request) {
		var args map[string]any
		_ = json.NewDecoder(r.Body).Decode(&args)
		if r.PathValue("name") != "volatility" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"unknown tool","kind":"UnknownTool"}`))
			return
		}
		if args["symbol"] == "ZZZ" {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"data unavailable","kind":"DataUnavailableError","subject":"ZZZ"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"tool":   "volatility",
			"result": map[string]any{"symbol": args["symbol"], "annualized_volatility": 0.2},
		})
	})
	mux.HandleFunc("POST /api/charts/backtest", func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("\x89PNGdata"))
	})
	mux.HandleFunc("POST /api/charts/simulation", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL)
}

func TestClient(t *testing.T) {
	c := newServer(t)
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))

	tools, err := c.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "volatility", tools[0].Name)

	var vol struct {
		Symbol     string  `json:"symbol"`
		Volatility float64 `json:"annualized_volatility"`
	}
	require.NoError(t, c.Call(ctx, "volatility", map[string]string{"symbol": "AAA"}, &vol))
	assert.Equal(t, "AAA", vol.Symbol)
	assert.InDelta(t, 0.2, vol.Volatility, 1e-12)

	png, err := c.BacktestChart(ctx, map[string]string{"symbol": "AAA"})
	require.NoError(t, err)
	assert.Equal(t, "\x89PNGdata", string(png))
}

func TestClientErrors(t *testing.T) {
	c := newServer(t)
	ctx := context.Background()

	err := c.Call(ctx, "volatility", map[string]string{"symbol": "ZZZ"}, nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "DataUnavailableError", apiErr.Kind)
	assert.Equal(t, "ZZZ", apiErr.Subject)

	err = c.Call(ctx, "nope", nil, nil)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "UnknownTool", apiErr.Kind)

	_, err = c.SimulationChart(ctx, map[string]any{})
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "boom", apiErr.Message)
}
