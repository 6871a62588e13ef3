package forensics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sony/gobreaker"

	"github.com/NexusBot-official/Nexus/internal/logging"
	"github.com/NexusBot-official/Nexus/internal/metrics"
)

// AuditLogSource is the audit-log endpoint. *discordgo.Session implements it.
type AuditLogSource interface {
	GuildAuditLog(guildID, userID, beforeID string, actionType, limit int, options ...discordgo.RequestOption) (*discordgo.GuildAuditLog, error)
}

// AuditLogFetcher queries the audit log behind one circuit breaker per guild,
// so a guild that denies VIEW_AUDIT_LOG or keeps timing out stops costing a
// request per event.
type AuditLogFetcher struct {
	src     AuditLogSource
	limit   int
	metrics *metrics.Metrics

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	open     map[string]bool
}

func NewAuditLogFetcher(src AuditLogSource, limit int, m *metrics.Metrics) *AuditLogFetcher {
	if limit <= 0 {
		limit = 10
	}
	return &AuditLogFetcher{
		src:      src,
		limit:    limit,
		metrics:  m,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		open:     make(map[string]bool),
	}
}

func (f *AuditLogFetcher) breaker(guildID string) *gobreaker.CircuitBreaker {
	f.mu.Lock()
	defer f.mu.Unlock()

	if cb, ok := f.breakers[guildID]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "audit:" + guildID,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn("[AUDIT] Breaker %s: %s -> %s", name, from, to)
			f.setOpen(guildID, to == gobreaker.StateOpen)
		},
	})
	f.breakers[guildID] = cb
	return cb
}

// setOpen runs from OnStateChange, which gobreaker calls without f.mu held.
func (f *AuditLogFetcher) setOpen(guildID string, open bool) {
	f.mu.Lock()
	if open {
		f.open[guildID] = true
	} else {
		delete(f.open, guildID)
	}
	n := len(f.open)
	f.mu.Unlock()

	f.metrics.SetOpenBreakers(n)
}

// FetchByAction returns the newest audit entries of one action type.
func (f *AuditLogFetcher) FetchByAction(ctx context.Context, guildID string, action discordgo.AuditLogAction) ([]*discordgo.AuditLogEntry, error) {
	res, err := f.breaker(guildID).Execute(func() (interface{}, error) {
		audit, err := f.src.GuildAuditLog(guildID, "", "", int(action), f.limit, discordgo.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		if audit == nil {
			return []*discordgo.AuditLogEntry(nil), nil
		}
		return audit.AuditLogEntries, nil
	})
	if err != nil {
		return nil, fmt.Errorf("audit log %s action %d: %w", guildID, action, err)
	}
	return res.([]*discordgo.AuditLogEntry), nil
}

// Forget drops the guild's breaker, e.g. after the bot leaves the guild.
func (f *AuditLogFetcher) Forget(guildID string) {
	f.mu.Lock()
	delete(f.breakers, guildID)
	_, wasOpen := f.open[guildID]
	delete(f.open, guildID)
	n := len(f.open)
	f.mu.Unlock()

	if wasOpen {
		f.metrics.SetOpenBreakers(n)
	}
}
