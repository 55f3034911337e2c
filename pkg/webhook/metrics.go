package webhook

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/alexdong/quinn/internal/metrics"
)

// MetricsTracker keeps per-route request statistics and mirrors them to Prometheus
type MetricsTracker struct {
	metrics map[string]*WebhookMetrics
	prom    *metrics.Metrics
	mu      sync.RWMutex
}

// NewMetricsTracker creates a tracker; prom may be nil
func NewMetricsTracker(prom *metrics.Metrics) *MetricsTracker {
	return &MetricsTracker{
		metrics: make(map[string]*WebhookMetrics),
		prom:    prom,
	}
}

// Track records one request. Status codes below 400 count as success.
func (mt *MetricsTracker) Track(path, method string, status int, durationMs float64) {
	mt.prom.RecordWebhook(path, strconv.Itoa(status))

	mt.mu.Lock()
	defer mt.mu.Unlock()

	key := method + ":" + path
	m, exists := mt.metrics[key]
	if !exists {
		m = &WebhookMetrics{Path: path, Method: method}
		mt.metrics[key] = m
	}

	m.TotalRequests++
	if status < 400 {
		m.SuccessCount++
	} else {
		m.FailureCount++
	}

	// running average
	m.AverageResponseTime = (m.AverageResponseTime*float64(m.TotalRequests-1) + durationMs) / float64(m.TotalRequests)
	m.LastStatus = status
	m.LastRequestAt = time.Now().UnixMilli()
}

// GetMetrics returns all routes sorted by path then method
func (mt *MetricsTracker) GetMetrics() []WebhookMetrics {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	result := make([]WebhookMetrics, 0, len(mt.metrics))
	for _, m := range mt.metrics {
		result = append(result, *m)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Path != result[j].Path {
			return result[i].Path < result[j].Path
		}
		return result[i].Method < result[j].Method
	})
	return result
}

// GetMetricsForWebhook returns a copy of one route's metrics, or nil
func (mt *MetricsTracker) GetMetricsForWebhook(path, method string) *WebhookMetrics {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	m, exists := mt.metrics[method+":"+path]
	if !exists {
		return nil
	}
	result := *m
	return &result
}
