package metrics

import (
	"time"
)

// ReplicationMetrics provides observability for the replication layer:
// update broadcasts, heartbeats, elections, and peer liveness.
//
// Like ChatMetrics, a nil value disables collection with zero overhead.
type ReplicationMetrics interface {
	// RecordUpdateSent increments the replicated-update counter for the
	// given update operation name.
	RecordUpdateSent(op string)

	// RecordRound records the duration of one full broadcast round
	// (send plus acknowledgement read across all live backups).
	RecordRound(duration time.Duration)

	// RecordPeerDeath increments the dead-peer counter. Called whenever a
	// peer link fails and the peer is dropped from the live set.
	RecordPeerDeath(peerID int)

	// SetLivePeers updates the live peer gauge (peers, not counting self).
	SetLivePeers(count int)

	// RecordHeartbeat records one heartbeat attempt toward the primary.
	RecordHeartbeat(success bool)

	// RecordElection records a completed election and the id it produced.
	RecordElection(primaryID int)

	// RecordPromotion increments the promotion counter. Called when this
	// replica takes over as primary.
	RecordPromotion()

	// SetPrimary sets the role gauge: 1 when this replica is the primary,
	// 0 when it is a backup.
	SetPrimary(isPrimary bool)
}

// NewReplicationMetrics creates a new Prometheus-backed ReplicationMetrics
// instance, or nil when metrics are disabled.
func NewReplicationMetrics() ReplicationMetrics {
	if !IsEnabled() || newPrometheusReplicationMetrics == nil {
		return nil
	}
	return newPrometheusReplicationMetrics()
}

// newPrometheusReplicationMetrics is implemented in
// pkg/metrics/prometheus/replication.go.
var newPrometheusReplicationMetrics func() ReplicationMetrics

// RegisterReplicationMetricsConstructor registers the Prometheus replication
// metrics constructor. Called by pkg/metrics/prometheus during package init.
func RegisterReplicationMetricsConstructor(constructor func() ReplicationMetrics) {
	newPrometheusReplicationMetrics = constructor
}
