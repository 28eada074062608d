package ringtcp

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ringtcp/ringtcp/internal/interfaces"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds.
// Buckets cover from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks performance and operational statistics for one Engine.
type Metrics struct {
	AcceptOps   atomic.Uint64
	ReceiveOps  atomic.Uint64
	SendOps     atomic.Uint64
	TeardownOps atomic.Uint64

	ReceiveBytes atomic.Uint64
	SendBytes    atomic.Uint64

	AcceptErrors  atomic.Uint64
	ReceiveErrors atomic.Uint64
	SendErrors    atomic.Uint64

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	// Each bucket[i] holds the count of operations with latency <= LatencyBuckets[i].
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	queueDepthMu sync.Mutex
	queueDepth   map[string]*queueDepthStats

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

type queueDepthStats struct {
	total atomic.Uint64
	count atomic.Uint64
	max   atomic.Uint32
}

// NewMetrics creates a new, running metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{queueDepth: make(map[string]*queueDepthStats)}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordAccept records an accept completion.
func (m *Metrics) RecordAccept(latencyNs uint64, success bool) {
	m.AcceptOps.Add(1)
	if !success {
		m.AcceptErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordReceive records a receive completion.
func (m *Metrics) RecordReceive(bytes, latencyNs uint64, success bool) {
	m.ReceiveOps.Add(1)
	if success {
		m.ReceiveBytes.Add(bytes)
	} else {
		m.ReceiveErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordSend records a send completion.
func (m *Metrics) RecordSend(bytes, latencyNs uint64, success bool) {
	m.SendOps.Add(1)
	if success {
		m.SendBytes.Add(bytes)
	} else {
		m.SendErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordTeardown records a connection teardown.
func (m *Metrics) RecordTeardown(latencyNs uint64) {
	m.TeardownOps.Add(1)
	m.recordLatency(latencyNs)
}

// RecordQueueDepth records a depth sample for the named queue kind (e.g.
// "inbound", "return", "flush").
func (m *Metrics) RecordQueueDepth(kind string, depth uint32) {
	m.queueDepthMu.Lock()
	s, ok := m.queueDepth[kind]
	if !ok {
		s = &queueDepthStats{}
		m.queueDepth[kind] = s
	}
	m.queueDepthMu.Unlock()

	s.total.Add(uint64(depth))
	s.count.Add(1)
	for {
		current := s.max.Load()
		if depth <= current {
			break
		}
		if s.max.CompareAndSwap(current, depth) {
			break
		}
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the engine as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// QueueDepthSnapshot is a point-in-time summary for one queue kind.
type QueueDepthSnapshot struct {
	Kind    string
	Avg     float64
	Max     uint32
	Samples uint64
}

// MetricsSnapshot is a point-in-time summary of Metrics.
type MetricsSnapshot struct {
	AcceptOps   uint64
	ReceiveOps  uint64
	SendOps     uint64
	TeardownOps uint64

	ReceiveBytes uint64
	SendBytes    uint64

	AcceptErrors  uint64
	ReceiveErrors uint64
	SendErrors    uint64

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	QueueDepths []QueueDepthSnapshot

	AcceptIOPS  float64
	ReceiveIOPS float64
	Bandwidth   float64
	TotalOps    uint64
	TotalBytes  uint64
	ErrorRate   float64
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		AcceptOps:     m.AcceptOps.Load(),
		ReceiveOps:    m.ReceiveOps.Load(),
		SendOps:       m.SendOps.Load(),
		TeardownOps:   m.TeardownOps.Load(),
		ReceiveBytes:  m.ReceiveBytes.Load(),
		SendBytes:     m.SendBytes.Load(),
		AcceptErrors:  m.AcceptErrors.Load(),
		ReceiveErrors: m.ReceiveErrors.Load(),
		SendErrors:    m.SendErrors.Load(),
	}

	snap.TotalOps = snap.AcceptOps + snap.ReceiveOps + snap.SendOps + snap.TeardownOps
	snap.TotalBytes = snap.ReceiveBytes + snap.SendBytes

	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = m.TotalLatencyNs.Load() / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		uptimeSeconds := float64(snap.UptimeNs) / 1e9
		snap.AcceptIOPS = float64(snap.AcceptOps) / uptimeSeconds
		snap.ReceiveIOPS = float64(snap.ReceiveOps) / uptimeSeconds
		snap.Bandwidth = float64(snap.TotalBytes) / uptimeSeconds
	}

	totalErrors := snap.AcceptErrors + snap.ReceiveErrors + snap.SendErrors
	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(totalErrors) / float64(snap.TotalOps) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	m.queueDepthMu.Lock()
	for kind, s := range m.queueDepth {
		count := s.count.Load()
		var avg float64
		if count > 0 {
			avg = float64(s.total.Load()) / float64(count)
		}
		snap.QueueDepths = append(snap.QueueDepths, QueueDepthSnapshot{
			Kind:    kind,
			Avg:     avg,
			Max:     s.max.Load(),
			Samples: count,
		})
	}
	m.queueDepthMu.Unlock()

	return snap
}

// calculatePercentile estimates the latency at the given percentile (0.0-1.0)
// using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeroes all counters, for test harnesses that reuse one Metrics
// instance across cases.
func (m *Metrics) Reset() {
	m.AcceptOps.Store(0)
	m.ReceiveOps.Store(0)
	m.SendOps.Store(0)
	m.TeardownOps.Store(0)
	m.ReceiveBytes.Store(0)
	m.SendBytes.Store(0)
	m.AcceptErrors.Store(0)
	m.ReceiveErrors.Store(0)
	m.SendErrors.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.queueDepthMu.Lock()
	m.queueDepth = make(map[string]*queueDepthStats)
	m.queueDepthMu.Unlock()
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer is the public alias of the internal event-observer interface,
// implemented by anything that wants a callback per reactor/acceptor
// event: Engine's Options.Observer field takes this type directly.
type Observer = interfaces.Observer

// NoOpObserver is a no-op Observer for callers that want no metrics. An
// unset Options.Observer gets a MetricsObserver, not this type.
type NoOpObserver struct{}

func (NoOpObserver) ObserveAccept(uint64, bool)          {}
func (NoOpObserver) ObserveReceive(uint64, uint64, bool) {}
func (NoOpObserver) ObserveSend(uint64, uint64, bool)    {}
func (NoOpObserver) ObserveTeardown(uint64)              {}
func (NoOpObserver) ObserveQueueDepth(string, uint32)    {}

// MetricsObserver implements Observer by recording into a Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveAccept(latencyNs uint64, success bool) {
	o.metrics.RecordAccept(latencyNs, success)
}

func (o *MetricsObserver) ObserveReceive(bytes, latencyNs uint64, success bool) {
	o.metrics.RecordReceive(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveSend(bytes, latencyNs uint64, success bool) {
	o.metrics.RecordSend(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveTeardown(latencyNs uint64) {
	o.metrics.RecordTeardown(latencyNs)
}

func (o *MetricsObserver) ObserveQueueDepth(kind string, depth uint32) {
	o.metrics.RecordQueueDepth(kind, depth)
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
