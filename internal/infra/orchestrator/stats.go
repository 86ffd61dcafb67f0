package orchestrator

import (
	"fmt"
	"sync"

	"mcpscene/internal/domain"
)

type statsCounter struct {
	mu    sync.Mutex
	stats domain.Stats
}

func (c *statsCounter) generation() {
	c.mu.Lock()
	c.stats.TotalGenerations++
	c.mu.Unlock()
}

func (c *statsCounter) batch(succeeded, failed, cacheHits int) {
	c.mu.Lock()
	c.stats.ToolCallsTriggered++
	c.stats.SuccessfulCalls += int64(succeeded)
	c.stats.FailedCalls += int64(failed)
	c.stats.CacheHits += int64(cacheHits)
	c.mu.Unlock()
}

func (c *statsCounter) reset() {
	c.mu.Lock()
	c.stats = domain.Stats{}
	c.mu.Unlock()
}

func (c *statsCounter) snapshot() domain.Stats {
	c.mu.Lock()
	out := c.stats
	c.mu.Unlock()
	out.SuccessRate = successRate(out.SuccessfulCalls, out.FailedCalls)
	return out
}

func successRate(succeeded, failed int64) string {
	total := succeeded + failed
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", float64(succeeded)/float64(total)*100)
}
