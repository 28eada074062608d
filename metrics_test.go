package ringtcp

import (
	"testing"
	"time"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	snap := m.Snapshot()
	if snap.TotalOps != 0 {
		t.Errorf("Expected 0 initial ops, got %d", snap.TotalOps)
	}

	m.RecordReceive(1024, 1000000, true)  // 1KB receive, 1ms latency, success
	m.RecordSend(2048, 2000000, true)     // 2KB send, 2ms latency, success
	m.RecordReceive(512, 500000, false)   // 512B receive, 0.5ms latency, error

	snap = m.Snapshot()

	if snap.ReceiveOps != 2 {
		t.Errorf("Expected 2 receive ops, got %d", snap.ReceiveOps)
	}
	if snap.SendOps != 1 {
		t.Errorf("Expected 1 send op, got %d", snap.SendOps)
	}

	if snap.ReceiveBytes != 1024 {
		t.Errorf("Expected 1024 receive bytes, got %d", snap.ReceiveBytes)
	}
	if snap.SendBytes != 2048 {
		t.Errorf("Expected 2048 send bytes, got %d", snap.SendBytes)
	}

	if snap.ReceiveErrors != 1 {
		t.Errorf("Expected 1 receive error, got %d", snap.ReceiveErrors)
	}
	if snap.SendErrors != 0 {
		t.Errorf("Expected 0 send errors, got %d", snap.SendErrors)
	}

	expectedErrorRate := float64(1) / float64(3) * 100.0
	if snap.ErrorRate < expectedErrorRate-0.1 || snap.ErrorRate > expectedErrorRate+0.1 {
		t.Errorf("Expected error rate ~%.1f%%, got %.1f%%", expectedErrorRate, snap.ErrorRate)
	}
}

func TestMetricsQueueDepth(t *testing.T) {
	m := NewMetrics()

	m.RecordQueueDepth("inbound", 10)
	m.RecordQueueDepth("inbound", 20)
	m.RecordQueueDepth("inbound", 15)
	m.RecordQueueDepth("return", 3)

	snap := m.Snapshot()

	var inbound *QueueDepthSnapshot
	for i := range snap.QueueDepths {
		if snap.QueueDepths[i].Kind == "inbound" {
			inbound = &snap.QueueDepths[i]
		}
	}
	if inbound == nil {
		t.Fatal("expected an \"inbound\" queue depth entry")
	}

	if inbound.Max != 20 {
		t.Errorf("Expected max queue depth 20, got %d", inbound.Max)
	}

	expectedAvg := float64(10+20+15) / 3.0
	if inbound.Avg < expectedAvg-0.1 || inbound.Avg > expectedAvg+0.1 {
		t.Errorf("Expected avg queue depth %.1f, got %.1f", expectedAvg, inbound.Avg)
	}

	if len(snap.QueueDepths) != 2 {
		t.Errorf("Expected 2 queue kinds tracked, got %d", len(snap.QueueDepths))
	}
}

func TestMetricsLatency(t *testing.T) {
	m := NewMetrics()

	m.RecordReceive(1024, 1000000, true) // 1ms
	m.RecordSend(1024, 2000000, true)    // 2ms

	snap := m.Snapshot()

	expectedAvgNs := uint64(1500000) // 1.5ms in nanoseconds
	if snap.AvgLatencyNs != expectedAvgNs {
		t.Errorf("Expected avg latency %d ns, got %d ns", expectedAvgNs, snap.AvgLatencyNs)
	}
}

func TestMetricsUptime(t *testing.T) {
	m := NewMetrics()

	time.Sleep(10 * time.Millisecond)

	snap := m.Snapshot()
	if snap.UptimeNs < 10*1000000 {
		t.Errorf("Expected uptime >= 10ms, got %d ns", snap.UptimeNs)
	}

	m.Stop()
	time.Sleep(5 * time.Millisecond)

	snap2 := m.Snapshot()
	if snap2.UptimeNs > snap.UptimeNs+2*1000000 {
		t.Errorf("Uptime increased too much after stop: %d -> %d", snap.UptimeNs, snap2.UptimeNs)
	}
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()

	m.RecordReceive(1024, 1000000, true)
	m.RecordSend(2048, 2000000, true)
	m.RecordQueueDepth("inbound", 10)

	snap := m.Snapshot()
	if snap.TotalOps == 0 {
		t.Error("Expected some operations before reset")
	}

	m.Reset()

	snap = m.Snapshot()
	if snap.TotalOps != 0 {
		t.Errorf("Expected 0 ops after reset, got %d", snap.TotalOps)
	}
	if snap.TotalBytes != 0 {
		t.Errorf("Expected 0 bytes after reset, got %d", snap.TotalBytes)
	}
	if len(snap.QueueDepths) != 0 {
		t.Errorf("Expected no queue depth entries after reset, got %d", len(snap.QueueDepths))
	}
}

func TestObserver(t *testing.T) {
	observer := &NoOpObserver{}
	observer.ObserveAccept(1000000, true)
	observer.ObserveReceive(1024, 1000000, true)
	observer.ObserveSend(1024, 1000000, true)
	observer.ObserveTeardown(1000000)
	observer.ObserveQueueDepth("inbound", 10)

	m := NewMetrics()
	metricsObserver := NewMetricsObserver(m)

	metricsObserver.ObserveReceive(1024, 1000000, true)
	metricsObserver.ObserveSend(2048, 2000000, true)

	snap := m.Snapshot()
	if snap.ReceiveOps != 1 {
		t.Errorf("Expected 1 receive op from observer, got %d", snap.ReceiveOps)
	}
	if snap.SendOps != 1 {
		t.Errorf("Expected 1 send op from observer, got %d", snap.SendOps)
	}
	if snap.ReceiveBytes != 1024 {
		t.Errorf("Expected 1024 receive bytes from observer, got %d", snap.ReceiveBytes)
	}
	if snap.SendBytes != 2048 {
		t.Errorf("Expected 2048 send bytes from observer, got %d", snap.SendBytes)
	}
}

func TestMetricsRates(t *testing.T) {
	m := NewMetrics()

	startTime := time.Now()
	m.StartTime.Store(startTime.UnixNano())

	m.RecordReceive(1024, 1000000, true)
	m.RecordSend(2048, 2000000, true)

	stopTime := startTime.Add(1 * time.Second)
	m.StopTime.Store(stopTime.UnixNano())

	snap := m.Snapshot()

	if snap.ReceiveIOPS < 0.9 || snap.ReceiveIOPS > 1.1 {
		t.Errorf("Expected ReceiveIOPS ~1.0, got %.2f", snap.ReceiveIOPS)
	}

	if snap.Bandwidth < 3000 || snap.Bandwidth > 3100 {
		t.Errorf("Expected Bandwidth ~3072, got %.2f", snap.Bandwidth)
	}
}

func TestMetricsHistogram(t *testing.T) {
	m := NewMetrics()

	for i := 0; i < 50; i++ {
		m.RecordReceive(1024, 500_000, true) // 500us
	}
	for i := 0; i < 49; i++ {
		m.RecordSend(1024, 5_000_000, true) // 5ms
	}
	m.RecordSend(1024, 50_000_000, true) // 50ms (the single slowest op)

	snap := m.Snapshot()

	if snap.TotalOps != 100 {
		t.Errorf("Expected 100 total ops, got %d", snap.TotalOps)
	}

	if snap.LatencyP50Ns < 100_000 || snap.LatencyP50Ns > 1_000_000 {
		t.Errorf("Expected P50 in 100us-1ms range, got %d ns", snap.LatencyP50Ns)
	}

	if snap.LatencyP99Ns < 5_000_000 || snap.LatencyP99Ns > 100_000_000 {
		t.Errorf("Expected P99 in 5ms-100ms range, got %d ns", snap.LatencyP99Ns)
	}

	totalInBuckets := uint64(0)
	for i := 0; i < len(snap.LatencyHistogram); i++ {
		totalInBuckets += snap.LatencyHistogram[i]
	}
	if totalInBuckets == 0 {
		t.Error("Expected histogram buckets to be populated")
	}
}
