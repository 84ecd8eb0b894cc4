package observability

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"chat-presence/domain"
	"chat-presence/domain/event"
)

// Stats is the wire form served by the stats endpoint.
type Stats struct {
	UptimeSeconds     int64  `json:"uptime_seconds"`
	Connections       int64  `json:"connections"`
	TextMessages      uint64 `json:"text_messages"`
	FileMessages      uint64 `json:"file_messages"`
	SystemMessages    uint64 `json:"system_messages"`
	EvictedConns      uint64 `json:"evicted_connections"`
	Goroutines        int    `json:"goroutines"`
	HeapAllocBytes    uint64 `json:"heap_alloc_bytes"`
	TotalAllocBytes   uint64 `json:"total_alloc_bytes"`
	GCCycles          uint32 `json:"gc_cycles"`
	LastSampleUnixUTC int64  `json:"last_sample_unix_utc"`
}

// Metrics counts gateway traffic with lock-free atomics. It is fed room
// messages as a permanent sink and connection changes by the gateway.
type Metrics struct {
	startedAt time.Time

	connections    atomic.Int64
	textMessages   atomic.Uint64
	fileMessages   atomic.Uint64
	systemMessages atomic.Uint64
	evictedConns   atomic.Uint64
}

func NewMetrics() *Metrics {
	return &Metrics{startedAt: time.Now()}
}

// Consume tallies every room message exactly once.
func (m *Metrics) Consume(_ context.Context, e event.Event) error {
	broadcast, ok := e.(event.MessageBroadcast)
	if !ok {
		return nil
	}
	switch broadcast.Message.Type {
	case domain.MessageText:
		m.textMessages.Add(1)
	case domain.MessageFile:
		m.fileMessages.Add(1)
	case domain.MessageSystem:
		m.systemMessages.Add(1)
	}
	return nil
}

func (m *Metrics) ConnectionOpened() {
	m.connections.Add(1)
}

func (m *Metrics) ConnectionClosed() {
	m.connections.Add(-1)
}

func (m *Metrics) ConnectionEvicted() {
	m.evictedConns.Add(1)
}

// Snapshot samples the counters together with runtime memory stats.
func (m *Metrics) Snapshot() Stats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return Stats{
		UptimeSeconds:     int64(time.Since(m.startedAt).Seconds()),
		Connections:       m.connections.Load(),
		TextMessages:      m.textMessages.Load(),
		FileMessages:      m.fileMessages.Load(),
		SystemMessages:    m.systemMessages.Load(),
		EvictedConns:      m.evictedConns.Load(),
		Goroutines:        runtime.NumGoroutine(),
		HeapAllocBytes:    mem.HeapAlloc,
		TotalAllocBytes:   mem.TotalAlloc,
		GCCycles:          mem.NumGC,
		LastSampleUnixUTC: time.Now().UTC().Unix(),
	}
}
