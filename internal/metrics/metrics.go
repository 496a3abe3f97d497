// Package metrics holds the node's counters (spec §6 "GET /metrics"),
// backed by prometheus/client_golang so the same counters could be scraped
// in Prometheus exposition format if a promhttp handler is mounted
// alongside the JSON one spec §6 names. Grounded on dittofs's
// pkg/metrics/prometheus construction style (promauto.With(registry)).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics is the node-wide counter set (spec §6 GET /metrics response shape).
type Metrics struct {
	registry *prometheus.Registry

	activePeers       prometheus.Gauge
	cdmsAnnounced     prometheus.Counter
	cdmsWithdrawn     prometheus.Counter
	messagesSent      prometheus.Counter
	messagesReceived  prometheus.Counter
	errors            prometheus.Counter
	duplicatesDropped prometheus.Counter
	queueOverflow     prometheus.Counter
}

// New constructs a Metrics instance registered against a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	return &Metrics{
		registry: reg,
		activePeers: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "spacecomms_active_peers",
			Help: "Peers currently in the Active session state.",
		}),
		cdmsAnnounced: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "spacecomms_cdms_announced_total",
			Help: "CDM announcements committed to this node's store, local or from peers.",
		}),
		cdmsWithdrawn: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "spacecomms_cdms_withdrawn_total",
			Help: "CDM withdrawals committed to this node's store, local or from peers.",
		}),
		messagesSent: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "spacecomms_messages_sent_total",
			Help: "Envelopes forwarded or re-announced to peers; HELLO and HEARTBEAT are not counted.",
		}),
		messagesReceived: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "spacecomms_messages_received_total",
			Help: "Envelopes received from peers on Active sessions; HELLO, HEARTBEAT and ERROR are not counted.",
		}),
		errors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "spacecomms_errors_total",
			Help: "Envelopes the routing engine rejected on structural checks or failed to commit.",
		}),
		duplicatesDropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "spacecomms_duplicates_dropped_total",
			Help: "Envelopes dropped due to a previously-seen message_id.",
		}),
		// Nothing calls IncQueueOverflow: session.Send logs outbound-queue
		// drops without counting them, so this counter stays at 0.
		queueOverflow: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "spacecomms_queue_overflow_total",
			Help: "Envelopes dropped due to a saturated per-peer outbound queue.",
		}),
	}
}

func (m *Metrics) SetActivePeers(n int)  { m.activePeers.Set(float64(n)) }
func (m *Metrics) IncCDMsAnnounced()     { m.cdmsAnnounced.Inc() }
func (m *Metrics) IncCDMsWithdrawn()     { m.cdmsWithdrawn.Inc() }
func (m *Metrics) IncMessagesSent()      { m.messagesSent.Inc() }
func (m *Metrics) IncMessagesReceived()  { m.messagesReceived.Inc() }
func (m *Metrics) IncErrors()            { m.errors.Inc() }
func (m *Metrics) IncDuplicatesDropped() { m.duplicatesDropped.Inc() }
func (m *Metrics) IncQueueOverflow()     { m.queueOverflow.Inc() }

// Snapshot is the spec §6 "GET /metrics" response shape.
type Snapshot struct {
	ActivePeers       int64   `json:"active_peers"`
	CDMsAnnounced     uint64  `json:"cdms_announced"`
	CDMsWithdrawn     uint64  `json:"cdms_withdrawn"`
	MessagesSent      uint64  `json:"messages_sent"`
	MessagesReceived  uint64  `json:"messages_received"`
	Errors            uint64  `json:"errors"`
	DuplicatesDropped uint64  `json:"duplicates_dropped"`
	QueueOverflow     uint64  `json:"queue_overflow"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// Snapshot reads the current counter values by gathering the registry,
// avoiding a second set of plain integers that could drift from what
// Prometheus would report if this registry is ever scraped directly.
func (m *Metrics) Snapshot(uptimeSeconds float64) Snapshot {
	families, err := m.registry.Gather()
	if err != nil {
		return Snapshot{UptimeSeconds: uptimeSeconds}
	}

	snap := Snapshot{UptimeSeconds: uptimeSeconds}
	for _, f := range families {
		switch f.GetName() {
		case "spacecomms_active_peers":
			snap.ActivePeers = int64(gaugeValue(f))
		case "spacecomms_cdms_announced_total":
			snap.CDMsAnnounced = uint64(counterValue(f))
		case "spacecomms_cdms_withdrawn_total":
			snap.CDMsWithdrawn = uint64(counterValue(f))
		case "spacecomms_messages_sent_total":
			snap.MessagesSent = uint64(counterValue(f))
		case "spacecomms_messages_received_total":
			snap.MessagesReceived = uint64(counterValue(f))
		case "spacecomms_errors_total":
			snap.Errors = uint64(counterValue(f))
		case "spacecomms_duplicates_dropped_total":
			snap.DuplicatesDropped = uint64(counterValue(f))
		case "spacecomms_queue_overflow_total":
			snap.QueueOverflow = uint64(counterValue(f))
		}
	}
	return snap
}

func counterValue(f *dto.MetricFamily) float64 {
	if len(f.Metric) == 0 || f.Metric[0].Counter == nil {
		return 0
	}
	return f.Metric[0].Counter.GetValue()
}

func gaugeValue(f *dto.MetricFamily) float64 {
	if len(f.Metric) == 0 || f.Metric[0].Gauge == nil {
		return 0
	}
	return f.Metric[0].Gauge.GetValue()
}

// Registry exposes the underlying Prometheus registry, for mounting a
// promhttp handler alongside the JSON one spec §6 names.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
