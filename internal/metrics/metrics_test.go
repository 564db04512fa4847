package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilRecordersAreNoops(t *testing.T) {
	var g *Gateway
	g.Dial(true)
	g.RetryScheduled()
	g.Frame(false)
	g.State("open", []string{"open"})
	g.Toast()
	g.Mutation("mark_read", false)

	var r *Relay
	r.Connected()
	r.Disconnected()
	r.Published()
	r.Dropped()
	r.Rejected()
}

func TestGatewayCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	g := NewGateway(reg)

	g.Dial(true)
	g.Dial(false)
	g.Dial(false)
	g.Frame(false)
	g.State("backing_off", []string{"open", "backing_off"})

	require.Equal(t, 2.0, testutil.ToFloat64(g.dials.WithLabelValues("error")))
	require.Equal(t, 1.0, testutil.ToFloat64(g.dials.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(g.frames.WithLabelValues("malformed")))
	require.Equal(t, 1.0, testutil.ToFloat64(g.state.WithLabelValues("backing_off")))
	require.Equal(t, 0.0, testutil.ToFloat64(g.state.WithLabelValues("open")))
}
