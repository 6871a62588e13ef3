package watchdog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/NexusBot-official/Nexus/internal/logging"
)

// Probe returns the last time a component showed signs of life. A zero time
// means it has not started yet and is not judged.
type Probe func() time.Time

type Watchdog struct {
	mu            sync.Mutex
	components    map[string]*ComponentHealth
	checkInterval time.Duration
	now           func() time.Time
}

type ComponentHealth struct {
	Name      string
	Probe     Probe
	Threshold time.Duration
	Healthy   bool
	LastSeen  time.Time
}

func NewWatchdog(checkInterval time.Duration, now func() time.Time) *Watchdog {
	if checkInterval <= 0 {
		checkInterval = 5 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &Watchdog{
		components:    make(map[string]*ComponentHealth),
		checkInterval: checkInterval,
		now:           now,
	}
}

func (w *Watchdog) RegisterComponent(name string, threshold time.Duration, probe Probe) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.components[name] = &ComponentHealth{
		Name:      name,
		Probe:     probe,
		Threshold: threshold,
		Healthy:   true,
	}
}

// Run checks every component each interval until ctx is done.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Check()
		}
	}
}

// Check probes every component once and logs health transitions.
func (w *Watchdog) Check() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	for name, comp := range w.components {
		last := comp.Probe()
		if last.IsZero() {
			continue
		}
		comp.LastSeen = last

		elapsed := now.Sub(last)
		healthy := elapsed <= comp.Threshold
		switch {
		case comp.Healthy && !healthy:
			logging.Error("[WATCHDOG] %s unhealthy (no sign of life for %v)", name, elapsed.Round(time.Millisecond))
		case !comp.Healthy && healthy:
			logging.Info("[WATCHDOG] %s recovered", name)
		}
		comp.Healthy = healthy
	}
}

func (w *Watchdog) IsHealthy(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if comp, exists := w.components[name]; exists {
		return comp.Healthy
	}
	return false
}

// Unhealthy lists the components currently failing, sorted by name.
func (w *Watchdog) Unhealthy() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var names []string
	for name, comp := range w.components {
		if !comp.Healthy {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
