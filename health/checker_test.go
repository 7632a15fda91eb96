package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/docstore/memstore"
	"github.com/c360/docstore/metric"
)

func failing(msg string) PingFunc {
	return func(context.Context) error { return fmt.Errorf("%s", msg) }
}

func TestChecker_Aggregation(t *testing.T) {
	tests := []struct {
		name   string
		probes map[string]Pinger
		want   State
	}{
		{"no backends", map[string]Pinger{}, StateHealthy},
		{"all reachable", map[string]Pinger{"memory": memstore.New(), "other": memstore.New()}, StateHealthy},
		{"some reachable", map[string]Pinger{"memory": memstore.New(), "etcd": failing("refused")}, StateDegraded},
		{"none reachable", map[string]Pinger{"nats": failing("refused"), "etcd": failing("refused")}, StateUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker("docstore")
			for name, p := range tt.probes {
				c.Add(name, p)
			}
			status := c.Check(context.Background())
			assert.Equal(t, tt.want, status.Status)
			assert.Len(t, status.Backends, len(tt.probes))
		})
	}
}

func TestChecker_ProbeTimeout(t *testing.T) {
	c := NewChecker("docstore", WithProbeTimeout(20*time.Millisecond))
	c.Add("slow", PingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	start := time.Now()
	status := c.Check(context.Background())
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, status.IsUnhealthy())

	last, ok := c.Last("slow")
	require.True(t, ok)
	assert.Contains(t, last.Message, "deadline exceeded")
}

func TestChecker_AddReplacesAndRemove(t *testing.T) {
	c := NewChecker("docstore")
	c.Add("memory", failing("down"))
	c.Add("memory", memstore.New())

	assert.True(t, c.Check(context.Background()).IsHealthy())

	c.Remove("memory")
	_, ok := c.Last("memory")
	assert.False(t, ok)
	assert.Empty(t, c.Check(context.Background()).Backends)
}

func TestChecker_RecordsMetrics(t *testing.T) {
	registry := metric.NewRegistry()
	core := registry.Core()

	c := NewChecker("docstore", WithCheckerMetrics(core))
	c.Add("memory", memstore.New())
	c.Add("etcd", failing("refused"))
	c.Check(context.Background())

	assert.Equal(t, 1.0, testutil.ToFloat64(core.Health.WithLabelValues("docstore")))
	assert.Equal(t, 2.0, testutil.ToFloat64(core.Health.WithLabelValues("memory")))
	assert.Equal(t, 0.0, testutil.ToFloat64(core.Health.WithLabelValues("etcd")))
	assert.Equal(t, 2, testutil.CollectAndCount(core.ProbeDuration))
}

func TestChecker_HTTPStatus(t *testing.T) {
	c := NewChecker("docstore")
	c.Add("memory", memstore.New())

	code, body := c.HTTPStatus(context.Background())
	assert.Equal(t, http.StatusOK, code)

	var decoded Status
	require.NoError(t, json.Unmarshal([]byte(body), &decoded))
	assert.Equal(t, StateHealthy, decoded.Status)
	require.Len(t, decoded.Backends, 1)
	assert.Equal(t, "memory", decoded.Backends[0].Component)

	c.Add("memory", failing("refused"))
	code, _ = c.HTTPStatus(context.Background())
	assert.Equal(t, http.StatusServiceUnavailable, code)
}
