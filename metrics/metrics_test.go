package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func gaugeValue(req *require.Assertions, g prometheus.Gauge) float64 {
	var m dto.Metric
	req.NoError(g.Write(&m))
	return m.GetGauge().GetValue()
}

func counterValue(req *require.Assertions, c prometheus.Counter) float64 {
	var m dto.Metric
	req.NoError(c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestMetrics_GaugesTrackLatestValue(t *testing.T) {
	req := require.New(t)

	m := New(prometheus.NewRegistry())
	m.SetRoomsActive(3)
	m.SetClientsConnected(7)

	req.Equal(float64(3), gaugeValue(req, m.roomsActive))
	req.Equal(float64(7), gaugeValue(req, m.clientsConnected))
}

func TestMetrics_CountersAccumulate(t *testing.T) {
	req := require.New(t)

	m := New(prometheus.NewRegistry())
	m.ObserveTriggered("room-1", "chat.message")
	m.ObserveTriggered("room-1", "chat.message")
	req.Equal(float64(2), counterValue(req, m.eventsTriggered))

	m.ObserveRejected("room-1", "event_not_allowed")
	m.Dispatcher().ObserveRejected("room_not_found")

	var m1, m2 dto.Metric
	req.NoError(m.eventsRejected.WithLabelValues("event_not_allowed").Write(&m1))
	req.Equal(float64(1), m1.GetCounter().GetValue())
	req.NoError(m.eventsRejected.WithLabelValues("room_not_found").Write(&m2))
	req.Equal(float64(1), m2.GetCounter().GetValue())

	m.ObserveHistoryEvicted(5)
	req.Equal(float64(5), counterValue(req, m.historyEvicted))
}
