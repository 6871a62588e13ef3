package correlator

import (
	"context"
	"time"

	"github.com/NexusBot-official/Nexus/internal/logging"
	"github.com/NexusBot-official/Nexus/internal/state"
)

const DefaultSweepInterval = 30 * time.Second

// Sweep expires idle tracker windows, lets quiet Monitoring guilds decay and
// refreshes the tracking gauges.
func (c *Correlator) Sweep() {
	removed := c.tracker.Sweep()
	decayed := c.engine.Decay()

	_, windows := c.tracker.Size()
	locked := len(c.engine.States().Guilds(state.StatusLockdown))
	c.metrics.SetTracked(windows, locked)
	c.lastSweep.Store(time.Now().UnixNano())

	if removed > 0 || decayed > 0 {
		logging.Debug("[CORRELATOR] Sweep removed %d windows, %d guilds back to normal", removed, decayed)
	}
}

// LastSweep is when Sweep last completed, zero before the first run.
func (c *Correlator) LastSweep() time.Time {
	ns := c.lastSweep.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (c *Correlator) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// ForgetGuild drops everything tracked for a guild the bot has left. A
// locked guild keeps its security state so rejoining does not lift it.
func (c *Correlator) ForgetGuild(guildID string) {
	c.tracker.ResetGuild(guildID)
	c.resolver.Forget(guildID)
	logging.Info("[CORRELATOR] Forgot guild %s", guildID)
}
