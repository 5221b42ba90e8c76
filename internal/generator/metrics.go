package generator

import (
	"sort"
	"sync"
	"time"

	"github.com/maauso/listingvideo-api/internal/cache"
)

// DefaultMetricsWindow is how long a provider's stats survive without activity.
const DefaultMetricsWindow = time.Hour

// ProviderStats summarizes recent dispatch attempts against one provider.
type ProviderStats struct {
	Provider    string        `json:"provider"`
	Attempts    int           `json:"attempts"`
	Successes   int           `json:"successes"`
	Failures    int           `json:"failures"`
	LastError   string        `json:"last_error,omitempty"`
	LastLatency time.Duration `json:"last_latency_ns"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Metrics keeps per-provider stats in a TTL cache; a provider idle for longer
// than the window starts again from zero. A nil *Metrics records nothing.
type Metrics struct {
	mu    sync.Mutex
	stats *cache.TTLCache[string, ProviderStats]
	now   func() time.Time
}

// NewMetrics creates metrics with the given rolling window.
func NewMetrics(window time.Duration) *Metrics {
	if window <= 0 {
		window = DefaultMetricsWindow
	}
	return &Metrics{
		stats: cache.New[string, ProviderStats](cache.WithDefaultTTL(window), cache.WithMaxSize(64)),
		now:   time.Now,
	}
}

// Record adds one attempt against provider.
func (m *Metrics) Record(provider string, latency time.Duration, err error) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, _ := m.stats.Get(provider)
	s.Provider = provider
	s.Attempts++
	if err != nil {
		s.Failures++
		s.LastError = err.Error()
	} else {
		s.Successes++
	}
	s.LastLatency = latency
	s.UpdatedAt = m.now()
	m.stats.Set(provider, s)
}

// Get returns the stats of one provider.
func (m *Metrics) Get(provider string) (ProviderStats, bool) {
	if m == nil {
		return ProviderStats{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats.Get(provider)
}

// Snapshot returns the stats of every provider seen within the window, by name.
func (m *Metrics) Snapshot() []ProviderStats {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ProviderStats, 0, m.stats.Len())
	for _, k := range m.stats.Keys() {
		if s, ok := m.stats.Get(k); ok {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}
