package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/parrotchat/parrot/pkg/metrics"
)

// replicationMetrics is the Prometheus implementation of
// metrics.ReplicationMetrics.
type replicationMetrics struct {
	updatesSent   *prometheus.CounterVec
	roundDuration prometheus.Histogram
	peerDeaths    *prometheus.CounterVec
	livePeers     prometheus.Gauge
	heartbeats    *prometheus.CounterVec
	elections     prometheus.Counter
	electedID     prometheus.Gauge
	promotions    prometheus.Counter
	isPrimary     prometheus.Gauge
}

// NewReplicationMetrics creates a new Prometheus-backed ReplicationMetrics
// instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewReplicationMetrics() metrics.ReplicationMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &replicationMetrics{
		updatesSent: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "parrot_replication_updates_sent_total",
				Help: "Total number of update frames broadcast to backups by update operation",
			},
			[]string{"op"},
		),
		roundDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "parrot_replication_round_duration_milliseconds",
				Help: "Duration of one broadcast round (send plus ACK across all live backups)",
				Buckets: []float64{
					0.1,
					0.5,
					1,
					5,
					10,
					50,
					100, // dead peer detection via TCP error
				},
			},
		),
		peerDeaths: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "parrot_replication_peer_deaths_total",
				Help: "Total number of peer link failures by peer id",
			},
			[]string{"peer_id"},
		),
		livePeers: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "parrot_replication_live_peers",
				Help: "Number of live peer links (excluding self)",
			},
		),
		heartbeats: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "parrot_heartbeats_total",
				Help: "Total number of heartbeats sent to the primary by outcome",
			},
			[]string{"outcome"}, // "ok", "failed"
		),
		elections: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "parrot_elections_total",
				Help: "Total number of elections run by this replica",
			},
		),
		electedID: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "parrot_elected_primary_id",
				Help: "Replica id produced by the most recent election",
			},
		),
		promotions: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "parrot_promotions_total",
				Help: "Total number of times this replica promoted itself to primary",
			},
		),
		isPrimary: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "parrot_is_primary",
				Help: "1 when this replica is the primary, 0 when it is a backup",
			},
		),
	}
}

func (m *replicationMetrics) RecordUpdateSent(op string) {
	m.updatesSent.WithLabelValues(op).Inc()
}

func (m *replicationMetrics) RecordRound(duration time.Duration) {
	m.roundDuration.Observe(float64(duration.Microseconds()) / 1000.0)
}

func (m *replicationMetrics) RecordPeerDeath(peerID int) {
	m.peerDeaths.WithLabelValues(strconv.Itoa(peerID)).Inc()
}

func (m *replicationMetrics) SetLivePeers(count int) {
	m.livePeers.Set(float64(count))
}

func (m *replicationMetrics) RecordHeartbeat(success bool) {
	outcome := "ok"
	if !success {
		outcome = "failed"
	}
	m.heartbeats.WithLabelValues(outcome).Inc()
}

func (m *replicationMetrics) RecordElection(primaryID int) {
	m.elections.Inc()
	m.electedID.Set(float64(primaryID))
}

func (m *replicationMetrics) RecordPromotion() {
	m.promotions.Inc()
}

func (m *replicationMetrics) SetPrimary(isPrimary bool) {
	if isPrimary {
		m.isPrimary.Set(1)
	} else {
		m.isPrimary.Set(0)
	}
}
