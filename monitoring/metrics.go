package monitoring

import (
	"runtime"
	"sync"
	"time"
)

// Collector 推理服务指标收集器
type Collector struct {
	mu sync.Mutex

	startTime    time.Time
	served       int64
	failed       int64
	totalLatency time.Duration
	maxLatency   time.Duration
	lastServed   time.Time
}

// Snapshot 指标快照
type Snapshot struct {
	Served        int64     `json:"predictions_served"`
	Failed        int64     `json:"predictions_failed"`
	AvgLatencyMs  float64   `json:"avg_latency_ms"`
	MaxLatencyMs  float64   `json:"max_latency_ms"`
	LastServedAt  time.Time `json:"last_served_at"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	Goroutines    int       `json:"goroutines"`
	AllocBytes    uint64    `json:"alloc_bytes"`
}

func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// RecordSuccess 记录一次成功推理及其耗时
func (c *Collector) RecordSuccess(latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.served++
	c.totalLatency += latency
	if latency > c.maxLatency {
		c.maxLatency = latency
	}
	c.lastServed = time.Now()
}

// RecordFailure 记录一次失败推理
func (c *Collector) RecordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed++
}

// Snapshot 返回当前指标快照
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	snapshot := Snapshot{
		Served:        c.served,
		Failed:        c.failed,
		MaxLatencyMs:  float64(c.maxLatency.Microseconds()) / 1000,
		LastServedAt:  c.lastServed,
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
		AllocBytes:    memStats.Alloc,
	}
	if c.served > 0 {
		snapshot.AvgLatencyMs = float64(c.totalLatency.Microseconds()) / float64(c.served) / 1000
	}
	return snapshot
}
