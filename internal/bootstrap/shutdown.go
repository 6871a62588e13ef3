package bootstrap

import (
	"github.com/NexusBot-official/Nexus/internal/logging"
)

// Shutdown stops intake first, then drains background attribution and
// notifications before the stores they write to are closed.
func Shutdown(c *Components) error {
	if c == nil {
		return nil
	}
	logging.Info("Starting graceful shutdown...")

	if c.cancel != nil {
		c.cancel()
	}

	logging.Info("Closing gateway session...")
	if err := c.Session.Close(); err != nil {
		logging.Warn("Gateway close failed: %v", err)
	}

	logging.Info("Stopping correlator...")
	c.Correlator.Close()

	logging.Info("Draining notifications...")
	c.Sinks.Wait()

	if c.Exporter != nil {
		if err := c.Exporter.Shutdown(); err != nil {
			logging.Warn("Metrics exporter shutdown failed: %v", err)
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logging.Warn("Redis close failed: %v", err)
		}
	}

	err := c.Database.Close()
	logging.Info("Graceful shutdown complete")
	return err
}
