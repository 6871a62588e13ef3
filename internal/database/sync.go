package database

import (
	"context"
	"fmt"
	"time"

	"github.com/NexusBot-official/Nexus/internal/config"
	"github.com/NexusBot-official/Nexus/internal/logging"
	"github.com/NexusBot-official/Nexus/internal/state"
)

// Override converts stored limits into a policy override.
func (l *GuildLimits) Override() *config.PolicyOverride {
	if l == nil {
		return nil
	}
	return &config.PolicyOverride{
		SoftThreshold:         l.SoftThreshold,
		SoftWindow:            time.Duration(l.SoftWindowMs) * time.Millisecond,
		HardThreshold:         l.HardThreshold,
		HardWindow:            time.Duration(l.HardWindowMs) * time.Millisecond,
		UnattributedThreshold: l.UnattributedThreshold,
		UnattributedWindow:    time.Duration(l.UnattributedWindowMs) * time.Millisecond,
		MonitoringCooldown:    time.Duration(l.MonitoringCooldownMs) * time.Millisecond,
		InstantPatterns:       append([]string(nil), l.InstantPatterns...),
		BanOnLockdown:         l.BanOnLockdown,
	}
}

// SyncGuild loads one guild's config, limits and whitelist into the store.
func (d *Database) SyncGuild(ctx context.Context, store *config.ProfileStore, guildID string) error {
	cfg, err := d.GetGuildConfig(ctx, guildID)
	if err != nil {
		return err
	}
	limits, err := d.GetGuildLimits(ctx, guildID)
	if err != nil {
		return err
	}
	whitelist, err := d.GetWhitelist(ctx, guildID)
	if err != nil {
		return err
	}

	store.Update(guildID, func(p *config.GuildProfile) {
		if cfg != nil {
			p.Enabled = cfg.Enabled
			p.Sensitivity = config.ParseSensitivity(cfg.Sensitivity)
			if cfg.OwnerID != "" {
				p.OwnerID = cfg.OwnerID
			}
			p.LogChannelID = cfg.LogChannelID
			if cfg.MemberCount > 0 {
				p.MemberCount = cfg.MemberCount
			}
		}
		p.Override = limits.Override()
		p.Whitelist = make(map[string]struct{}, len(whitelist))
		for _, w := range whitelist {
			p.Whitelist[w.UserID] = struct{}{}
		}
	})
	return nil
}

// SyncProfiles loads every guild known to the database into the store.
func (d *Database) SyncProfiles(ctx context.Context, store *config.ProfileStore) (int, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT guild_id FROM guild_config
		 UNION SELECT guild_id FROM guild_limits
		 UNION SELECT guild_id FROM whitelist`)
	if err != nil {
		return 0, fmt.Errorf("failed to query guilds: %w", err)
	}

	var guildIDs []string
	for rows.Next() {
		var guildID string
		if err := rows.Scan(&guildID); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan guild ID: %w", err)
		}
		guildIDs = append(guildIDs, guildID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	synced := 0
	for _, guildID := range guildIDs {
		if err := d.SyncGuild(ctx, store, guildID); err != nil {
			logging.Warn("[DATABASE] Failed to sync guild %s: %v", guildID, err)
			continue
		}
		synced++
	}
	logging.Info("[DATABASE] Synced %d guild profiles", synced)
	return synced, nil
}

// RestoreLockdowns reinstalls persisted lockdowns so a restart never
// silently lifts one.
func (d *Database) RestoreLockdowns(ctx context.Context, states *state.SecurityStore) (int, error) {
	lockdowns, err := d.LoadLockdowns(ctx)
	if err != nil {
		return 0, err
	}
	for _, st := range lockdowns {
		states.Restore(st)
		logging.Warn("[DATABASE] Guild %s is still in lockdown since %s", st.GuildID, st.LockdownStartedAt.Format(time.RFC3339))
	}
	return len(lockdowns), nil
}
