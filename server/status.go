package server

import (
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostStats is one sample of the daemon host's resource usage
type HostStats struct {
	CPUPercent float64   `json:"cpu_percent"`
	MemUsed    uint64    `json:"mem_used"`
	MemTotal   uint64    `json:"mem_total"`
	MemPercent float64   `json:"mem_percent"`
	Load1      float64   `json:"load1"`
	Load5      float64   `json:"load5"`
	Load15     float64   `json:"load15"`
	Uptime     uint64    `json:"uptime_seconds"`
	NumCPU     int       `json:"num_cpu"`
	Goroutines int       `json:"goroutines"`
	SampledAt  time.Time `json:"sampled_at"`
}

// statsCollector samples host statistics on a ticker so status
// requests never block on gopsutil probes.
type statsCollector struct {
	mu       sync.RWMutex
	stats    HostStats
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newStatsCollector(interval time.Duration) *statsCollector {
	return &statsCollector{
		interval: interval,
		stopCh:   make(chan struct{}),
		stats:    HostStats{NumCPU: runtime.NumCPU()},
	}
}

// Start samples once immediately, then keeps sampling until Stop
func (sc *statsCollector) Start() {
	sc.collect()
	go func() {
		ticker := time.NewTicker(sc.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sc.collect()
			case <-sc.stopCh:
				return
			}
		}
	}()
}

func (sc *statsCollector) Stop() {
	sc.stopOnce.Do(func() { close(sc.stopCh) })
}

// Get returns the most recent sample
func (sc *statsCollector) Get() HostStats {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.stats
}

// collect gathers one sample. Probe failures leave the previous value
// in place rather than zeroing it out.
func (sc *statsCollector) collect() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		sc.stats.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		sc.stats.MemUsed = vm.Used
		sc.stats.MemTotal = vm.Total
		sc.stats.MemPercent = vm.UsedPercent
	}
	if avg, err := load.Avg(); err == nil {
		sc.stats.Load1 = avg.Load1
		sc.stats.Load5 = avg.Load5
		sc.stats.Load15 = avg.Load15
	}
	if up, err := host.Uptime(); err == nil {
		sc.stats.Uptime = up
	}
	sc.stats.NumCPU = runtime.NumCPU()
	sc.stats.Goroutines = runtime.NumGoroutine()
	sc.stats.SampledAt = time.Now()
}
