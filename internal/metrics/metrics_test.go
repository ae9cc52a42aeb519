package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.ObserveTool("var", "ok", 10*time.Millisecond)
	r.ObserveTool("var", "ok", 20*time.Millisecond)
	r.ObserveTool("get_price", "DataUnavailableError", time.Millisecond)
	r.AddSimulatedPaths(5000)
	r.ObserveHTTP("/api/tools/:name", "POST", "200")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.toolCalls.WithLabelValues("var", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.providerErrors.WithLabelValues("get_price")))
	assert.Equal(t, 5000.0, testutil.ToFloat64(r.simulatedPaths))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.httpRequests.WithLabelValues("/api/tools/:name", "POST", "200")))

	n, err := testutil.GatherAndCount(reg, "montewalk_tool_duration_seconds")
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.ObserveTool("var", "ok", time.Second)
	r.AddSimulatedPaths(1)
	r.ObserveHTTP("/", "GET", "200")
}
