package telemetry

import (
	"sort"
	"sync"
	"time"
)

// HealthTracker aggregates heartbeats from background loops.
type HealthTracker struct {
	mu    sync.Mutex
	beats map[string]*Heartbeat
	now   func() time.Time
}

// Heartbeat is one registered background loop.
type Heartbeat struct {
	tracker *HealthTracker
	name    string
	stale   time.Duration
	last    time.Time
}

type HealthCheck struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	LastBeat string `json:"lastBeat,omitempty"`
}

type HealthReport struct {
	Status string        `json:"status"`
	Checks []HealthCheck `json:"checks,omitempty"`
}

func NewHealthTracker() *HealthTracker {
	return &HealthTracker{beats: make(map[string]*Heartbeat), now: time.Now}
}

// Register adds a heartbeat that is considered stale after staleAfter without a Beat.
func (t *HealthTracker) Register(name string, staleAfter time.Duration) *Heartbeat {
	t.mu.Lock()
	defer t.mu.Unlock()
	hb := &Heartbeat{tracker: t, name: name, stale: staleAfter, last: t.now()}
	t.beats[name] = hb
	return hb
}

func (h *Heartbeat) Beat() {
	h.tracker.mu.Lock()
	h.last = h.tracker.now()
	h.tracker.mu.Unlock()
}

func (h *Heartbeat) Stop() {
	h.tracker.mu.Lock()
	if current, ok := h.tracker.beats[h.name]; ok && current == h {
		delete(h.tracker.beats, h.name)
	}
	h.tracker.mu.Unlock()
}

func (t *HealthTracker) Report() HealthReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	report := HealthReport{Status: "ok"}
	now := t.now()
	for _, hb := range t.beats {
		check := HealthCheck{Name: hb.name, Status: "ok", LastBeat: hb.last.UTC().Format(time.RFC3339)}
		if hb.stale > 0 && now.Sub(hb.last) > hb.stale {
			check.Status = "stale"
			report.Status = "degraded"
		}
		report.Checks = append(report.Checks, check)
	}
	sort.Slice(report.Checks, func(i, j int) bool { return report.Checks[i].Name < report.Checks[j].Name })
	return report
}
