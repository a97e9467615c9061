// Package memory returns idle heap to the OS more aggressively than the
// runtime's default pacing. Under container memory limits the default
// release cadence keeps pages resident long after a large request body
// (a base64 photo, a big provider response) has been processed, which
// reads as a leak to the orchestrator.
package memory

import (
	"os"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adamtbull/friction-ai/internal/logger"
)

// Config tunes the background reclaim loop.
type Config struct {
	// TargetHeapRetention is the share of extra heap the process may keep
	// beyond what is in use, e.g. 0.2 allows retained ≈ heapInuse * 1.2.
	// Above that, FreeOSMemory runs.
	TargetHeapRetention float64
	// FreeOSMemoryInterval is the monitor tick.
	FreeOSMemoryInterval time.Duration
	// ForceGCThreshold triggers a GC once HeapAlloc passes it. Zero derives
	// a default from the memory limit, or disables the check without one.
	ForceGCThreshold int64
}

const (
	defaultTargetHeapRetention  = 0.2
	defaultFreeOSMemoryInterval = 5 * time.Second

	defaultLargeRequestThreshold = int64(1 << 20)
	defaultAggressiveLimitFrac   = 0.8

	// Absolute floor below which returning memory is not worth the churn.
	defaultMinIdleReclaimBytes = int64(8 << 20)
	defaultMinReclaimInterval  = 2 * time.Second
	defaultMinGCInterval       = 750 * time.Millisecond
)

type reclaimSignal struct {
	reason         string
	allocatedBytes int64
}

type manager struct {
	cfg Config

	largeRequestThreshold int64
	aggressiveLimitFrac   float64

	memLimitBytes       int64
	minIdleReclaimBytes int64
	minReclaimInterval  time.Duration
	minGCInterval       time.Duration

	lastReclaimUnixNano atomic.Int64
	lastGCUnixNano      atomic.Int64

	mu sync.Mutex
	ch chan reclaimSignal
}

var (
	once sync.Once
	mgr  *manager
)

func Init() {
	once.Do(func() {
		cfg := defaultConfig()

		// Learn the effective GOMEMLIMIT so the thresholds below can key
		// off it. GOMEMLIMIT=auto (or unset) derives one from the cgroup.
		memLimitBytes, ok := parseByteSize(os.Getenv("GOMEMLIMIT"))
		if !ok || memLimitBytes <= 0 {
			if strings.EqualFold(strings.TrimSpace(os.Getenv("GOMEMLIMIT")), "auto") || os.Getenv("GOMEMLIMIT") == "" {
				if cgroupLimit, ok2 := detectCgroupMemoryLimit(); ok2 && cgroupLimit > 0 {
					autoLimit := (cgroupLimit * 8) / 10
					if autoLimit > 0 {
						_ = debug.SetMemoryLimit(autoLimit)
						memLimitBytes = autoLimit
					}
				}
			}
		}

		if cfg.ForceGCThreshold <= 0 && memLimitBytes > 0 {
			cfg.ForceGCThreshold = (memLimitBytes * 7) / 10
		}

		if cfg.TargetHeapRetention <= 0 || cfg.TargetHeapRetention >= 1 {
			cfg.TargetHeapRetention = defaultTargetHeapRetention
		}
		if cfg.FreeOSMemoryInterval <= 0 {
			cfg.FreeOSMemoryInterval = defaultFreeOSMemoryInterval
		}

		mgr = &manager{
			cfg:                   cfg,
			largeRequestThreshold: defaultLargeRequestThreshold,
			aggressiveLimitFrac:   defaultAggressiveLimitFrac,
			memLimitBytes:         memLimitBytes,
			minIdleReclaimBytes:   defaultMinIdleReclaimBytes,
			minReclaimInterval:    defaultMinReclaimInterval,
			minGCInterval:         defaultMinGCInterval,
			ch:                    make(chan reclaimSignal, 1),
		}

		go mgr.run()
	})
}

func defaultConfig() Config {
	return Config{
		TargetHeapRetention:  defaultTargetHeapRetention,
		FreeOSMemoryInterval: defaultFreeOSMemoryInterval,
		ForceGCThreshold:     0,
	}
}

// AfterLargeRequest schedules an asynchronous reclaim once a request that
// allocated heavily has finished. Call it with defer; it never runs GC on
// the caller's goroutine.
func AfterLargeRequest(allocatedBytes int64) {
	Init()
	m := mgr
	if m == nil {
		return
	}
	if allocatedBytes < m.largeRequestThreshold {
		return
	}
	select {
	case m.ch <- reclaimSignal{reason: "after_large_request", allocatedBytes: allocatedBytes}:
	default:
		// A reclaim is already queued.
	}
}

func (m *manager) run() {
	ticker := time.NewTicker(m.cfg.FreeOSMemoryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.onTick()
		case sig := <-m.ch:
			// Very large requests may bypass the reclaim rate limit.
			force := sig.allocatedBytes >= 16*m.largeRequestThreshold
			m.freeOSMemory(force, sig.reason)
		}
	}
}

func (m *manager) onTick() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	heapAlloc := int64(ms.HeapAlloc)
	if m.cfg.ForceGCThreshold > 0 && heapAlloc >= m.cfg.ForceGCThreshold {
		m.forceGC(false, "heap_alloc_threshold")
	}

	heapInuse := int64(ms.HeapInuse)
	retained := int64(ms.HeapSys) - int64(ms.HeapReleased)
	if retained < 0 {
		retained = 0
	}
	idleRetained := retained - heapInuse
	if idleRetained < 0 {
		idleRetained = 0
	}

	shouldFree := false
	if heapInuse > 0 && m.cfg.TargetHeapRetention > 0 {
		maxRetained := heapInuse + int64(float64(heapInuse)*m.cfg.TargetHeapRetention)
		if retained > maxRetained && idleRetained >= m.minIdleReclaimBytes {
			shouldFree = true
		}
	}

	if m.memLimitBytes > 0 && m.aggressiveLimitFrac > 0 {
		aggressiveAt := int64(float64(m.memLimitBytes) * m.aggressiveLimitFrac)
		if aggressiveAt > 0 && heapAlloc >= aggressiveAt {
			shouldFree = true
		}
	}

	if shouldFree {
		m.freeOSMemory(false, "monitor")
	}
}

func (m *manager) forceGC(force bool, reason string) {
	now := time.Now()
	last := time.Unix(0, m.lastGCUnixNano.Load())
	if !force && now.Sub(last) < m.minGCInterval {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	last = time.Unix(0, m.lastGCUnixNano.Load())
	if !force && now.Sub(last) < m.minGCInterval {
		return
	}

	runtime.GC()
	m.lastGCUnixNano.Store(now.UnixNano())

	logger.Debug("memory: runtime.GC reason=%s", reason)
}

func (m *manager) freeOSMemory(force bool, reason string) {
	now := time.Now()
	last := time.Unix(0, m.lastReclaimUnixNano.Load())
	if !force && now.Sub(last) < m.minReclaimInterval {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	last = time.Unix(0, m.lastReclaimUnixNano.Load())
	if !force && now.Sub(last) < m.minReclaimInterval {
		return
	}

	logEnabled := logger.GetLevel() >= logger.LogLow
	var before runtime.MemStats
	if logEnabled {
		runtime.ReadMemStats(&before)
	}

	debug.FreeOSMemory()
	m.lastReclaimUnixNano.Store(now.UnixNano())

	if logEnabled {
		var after runtime.MemStats
		runtime.ReadMemStats(&after)
		logger.Debug(
			"memory: FreeOSMemory reason=%s heapAlloc=%s->%s retained=%s->%s",
			reason,
			formatBytes(before.HeapAlloc),
			formatBytes(after.HeapAlloc),
			formatBytes(retainedBytes(before)),
			formatBytes(retainedBytes(after)),
		)
	}
}

func retainedBytes(ms runtime.MemStats) uint64 {
	if ms.HeapSys < ms.HeapReleased {
		return 0
	}
	return ms.HeapSys - ms.HeapReleased
}

func formatBytes(b uint64) string {
	const mib = 1024 * 1024
	if b < mib {
		return strconv.FormatUint(b, 10) + "B"
	}
	return strconv.FormatFloat(float64(b)/mib, 'f', 1, 64) + "MiB"
}

func detectCgroupMemoryLimit() (int64, bool) {
	// cgroups v2
	if b, err := os.ReadFile("/sys/fs/cgroup/memory.max"); err == nil {
		s := strings.TrimSpace(string(b))
		if s != "" && s != "max" {
			if v, err := strconv.ParseInt(s, 10, 64); err == nil && v > 0 && v < (1<<62) {
				return v, true
			}
		}
	}
	// cgroups v1; some environments report "no limit" as a huge number.
	if b, err := os.ReadFile("/sys/fs/cgroup/memory/memory.limit_in_bytes"); err == nil {
		s := strings.TrimSpace(string(b))
		if s != "" {
			if v, err := strconv.ParseInt(s, 10, 64); err == nil && v > 0 && v < (1<<62) {
				if v > (1 << 60) {
					return 0, false
				}
				return v, true
			}
		}
	}
	return 0, false
}

func parseByteSize(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	i := 0
	for i < len(s) {
		c := s[i]
		if (c >= '0' && c <= '9') || c == '.' {
			i++
			continue
		}
		break
	}
	if i == 0 {
		return 0, false
	}

	numStr := strings.TrimSpace(s[:i])
	unitStr := strings.TrimSpace(s[i:])
	if unitStr == "" {
		unitStr = "B"
	}

	n, err := strconv.ParseFloat(numStr, 64)
	if err != nil || n <= 0 {
		return 0, false
	}

	mult, ok := byteSizeMultiplier(unitStr)
	if !ok {
		return 0, false
	}
	v := n * float64(mult)
	if v <= 0 {
		return 0, false
	}
	if v > float64(int64(^uint64(0)>>1)) {
		return 0, false
	}
	return int64(v), true
}

func byteSizeMultiplier(unit string) (int64, bool) {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "b":
		return 1, true
	case "k", "kb":
		return 1000, true
	case "m", "mb":
		return 1000 * 1000, true
	case "g", "gb":
		return 1000 * 1000 * 1000, true
	case "t", "tb":
		return 1000 * 1000 * 1000 * 1000, true
	case "kib":
		return 1024, true
	case "mib":
		return 1024 * 1024, true
	case "gib":
		return 1024 * 1024 * 1024, true
	case "tib":
		return 1024 * 1024 * 1024 * 1024, true
	default:
		return 0, false
	}
}
