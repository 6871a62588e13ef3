package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/NexusBot-official/Nexus/internal/models"
	"github.com/NexusBot-official/Nexus/internal/state"
)

// Database is the SQLite store for guild policies, the whitelist, the
// mitigation trail and persisted lockdowns.
type Database struct {
	db *sql.DB
}

// Open creates or opens the database at path and migrates the schema.
func Open(path string) (*Database, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	d := &Database{db: db}
	if err := d.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return d, nil
}

func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS guild_config (
		guild_id TEXT PRIMARY KEY,
		enabled INTEGER NOT NULL DEFAULT 1,
		sensitivity TEXT NOT NULL DEFAULT 'normal',
		owner_id TEXT NOT NULL DEFAULT '',
		log_channel_id TEXT NOT NULL DEFAULT '',
		member_count INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS guild_limits (
		guild_id TEXT PRIMARY KEY,
		soft_threshold INTEGER NOT NULL DEFAULT 0,
		soft_window_ms INTEGER NOT NULL DEFAULT 0,
		hard_threshold INTEGER NOT NULL DEFAULT 0,
		hard_window_ms INTEGER NOT NULL DEFAULT 0,
		unattributed_threshold INTEGER NOT NULL DEFAULT 0,
		unattributed_window_ms INTEGER NOT NULL DEFAULT 0,
		monitoring_cooldown_ms INTEGER NOT NULL DEFAULT 0,
		instant_patterns TEXT NOT NULL DEFAULT '',
		ban_on_lockdown INTEGER,
		updated_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS whitelist (
		guild_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		added_by TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		PRIMARY KEY (guild_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS mitigation_records (
		id TEXT PRIMARY KEY,
		guild_id TEXT NOT NULL,
		actor_id TEXT NOT NULL DEFAULT '',
		target_id TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		trigger TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_mitigation_records_guild ON mitigation_records(guild_id, at);

	CREATE TABLE IF NOT EXISTS lockdown_state (
		guild_id TEXT PRIMARY KEY,
		actor_id TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		everyone_permissions INTEGER NOT NULL DEFAULT 0,
		permissions_saved INTEGER NOT NULL DEFAULT 0
	);
	`

	_, err := d.db.Exec(schema)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func msToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// GetGuildConfig returns the stored config, or nil when the guild has none.
func (d *Database) GetGuildConfig(ctx context.Context, guildID string) (*GuildConfig, error) {
	var cfg GuildConfig
	var enabled int
	err := d.db.QueryRowContext(ctx,
		`SELECT guild_id, enabled, sensitivity, owner_id, log_channel_id, member_count, updated_at
		 FROM guild_config WHERE guild_id = ?`, guildID,
	).Scan(&cfg.GuildID, &enabled, &cfg.Sensitivity, &cfg.OwnerID, &cfg.LogChannelID, &cfg.MemberCount, &cfg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query guild config %s: %w", guildID, err)
	}
	cfg.Enabled = enabled == 1
	return &cfg, nil
}

func (d *Database) UpsertGuildConfig(ctx context.Context, cfg *GuildConfig) error {
	cfg.UpdatedAt = time.Now().UnixMilli()
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO guild_config (guild_id, enabled, sensitivity, owner_id, log_channel_id, member_count, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(guild_id) DO UPDATE SET
			enabled = excluded.enabled,
			sensitivity = excluded.sensitivity,
			owner_id = excluded.owner_id,
			log_channel_id = excluded.log_channel_id,
			member_count = excluded.member_count,
			updated_at = excluded.updated_at`,
		cfg.GuildID, boolToInt(cfg.Enabled), cfg.Sensitivity, cfg.OwnerID, cfg.LogChannelID, cfg.MemberCount, cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert guild config %s: %w", cfg.GuildID, err)
	}
	return nil
}

func (d *Database) GetGuildLimits(ctx context.Context, guildID string) (*GuildLimits, error) {
	var l GuildLimits
	var patterns string
	var ban sql.NullInt64
	err := d.db.QueryRowContext(ctx,
		`SELECT guild_id, soft_threshold, soft_window_ms, hard_threshold, hard_window_ms,
			unattributed_threshold, unattributed_window_ms, monitoring_cooldown_ms,
			instant_patterns, ban_on_lockdown, updated_at
		 FROM guild_limits WHERE guild_id = ?`, guildID,
	).Scan(&l.GuildID, &l.SoftThreshold, &l.SoftWindowMs, &l.HardThreshold, &l.HardWindowMs,
		&l.UnattributedThreshold, &l.UnattributedWindowMs, &l.MonitoringCooldownMs,
		&patterns, &ban, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query guild limits %s: %w", guildID, err)
	}
	if patterns != "" {
		l.InstantPatterns = strings.Split(patterns, "\n")
	}
	if ban.Valid {
		b := ban.Int64 == 1
		l.BanOnLockdown = &b
	}
	return &l, nil
}

func (d *Database) UpsertGuildLimits(ctx context.Context, l *GuildLimits) error {
	l.UpdatedAt = time.Now().UnixMilli()
	var ban sql.NullInt64
	if l.BanOnLockdown != nil {
		ban = sql.NullInt64{Int64: int64(boolToInt(*l.BanOnLockdown)), Valid: true}
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO guild_limits (guild_id, soft_threshold, soft_window_ms, hard_threshold, hard_window_ms,
			unattributed_threshold, unattributed_window_ms, monitoring_cooldown_ms, instant_patterns, ban_on_lockdown, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(guild_id) DO UPDATE SET
			soft_threshold = excluded.soft_threshold,
			soft_window_ms = excluded.soft_window_ms,
			hard_threshold = excluded.hard_threshold,
			hard_window_ms = excluded.hard_window_ms,
			unattributed_threshold = excluded.unattributed_threshold,
			unattributed_window_ms = excluded.unattributed_window_ms,
			monitoring_cooldown_ms = excluded.monitoring_cooldown_ms,
			instant_patterns = excluded.instant_patterns,
			ban_on_lockdown = excluded.ban_on_lockdown,
			updated_at = excluded.updated_at`,
		l.GuildID, l.SoftThreshold, l.SoftWindowMs, l.HardThreshold, l.HardWindowMs,
		l.UnattributedThreshold, l.UnattributedWindowMs, l.MonitoringCooldownMs,
		strings.Join(l.InstantPatterns, "\n"), ban, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert guild limits %s: %w", l.GuildID, err)
	}
	return nil
}

func (d *Database) DeleteGuildLimits(ctx context.Context, guildID string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM guild_limits WHERE guild_id = ?`, guildID); err != nil {
		return fmt.Errorf("delete guild limits %s: %w", guildID, err)
	}
	return nil
}

func (d *Database) AddWhitelist(ctx context.Context, guildID, userID, addedBy string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO whitelist (guild_id, user_id, added_by, created_at) VALUES (?, ?, ?, ?)`,
		guildID, userID, addedBy, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("add whitelist %s/%s: %w", guildID, userID, err)
	}
	return nil
}

func (d *Database) RemoveWhitelist(ctx context.Context, guildID, userID string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM whitelist WHERE guild_id = ? AND user_id = ?`, guildID, userID)
	if err != nil {
		return fmt.Errorf("remove whitelist %s/%s: %w", guildID, userID, err)
	}
	return nil
}

func (d *Database) GetWhitelist(ctx context.Context, guildID string) ([]*Whitelist, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT guild_id, user_id, added_by, created_at FROM whitelist WHERE guild_id = ? ORDER BY created_at`, guildID)
	if err != nil {
		return nil, fmt.Errorf("query whitelist %s: %w", guildID, err)
	}
	defer rows.Close()

	var out []*Whitelist
	for rows.Next() {
		w := &Whitelist{}
		if err := rows.Scan(&w.GuildID, &w.UserID, &w.AddedBy, &w.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// SaveRecord appends a mitigation record. Records are never updated except
// to fill in a late attribution.
func (d *Database) SaveRecord(ctx context.Context, rec models.MitigationRecord) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO mitigation_records (id, guild_id, actor_id, target_id, action, trigger, reason, error, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.GuildID, rec.ActorID, rec.TargetID, string(rec.Action), string(rec.Trigger), rec.Reason, rec.Error, rec.At.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save record %s: %w", rec.ID, err)
	}
	return nil
}

// AnnotateRecords sets the actor of records that were written without one.
func (d *Database) AnnotateRecords(ctx context.Context, guildID string, ids []string, actorID string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin annotate: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE mitigation_records SET actor_id = ? WHERE id = ? AND guild_id = ? AND actor_id = ''`)
	if err != nil {
		return fmt.Errorf("prepare annotate: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, actorID, id, guildID); err != nil {
			return fmt.Errorf("annotate record %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// RecentRecords returns the guild's newest records first.
func (d *Database) RecentRecords(ctx context.Context, guildID string, limit int) ([]models.MitigationRecord, error) {
	if limit <= 0 {
		limit = 25
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, guild_id, actor_id, target_id, action, trigger, reason, error, at
		 FROM mitigation_records WHERE guild_id = ? ORDER BY at DESC, rowid DESC LIMIT ?`, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("query records %s: %w", guildID, err)
	}
	defer rows.Close()

	var out []models.MitigationRecord
	for rows.Next() {
		var rec models.MitigationRecord
		var action, trigger string
		var at int64
		if err := rows.Scan(&rec.ID, &rec.GuildID, &rec.ActorID, &rec.TargetID, &action, &trigger, &rec.Reason, &rec.Error, &at); err != nil {
			return nil, err
		}
		rec.Action = models.MitigationAction(action)
		rec.Trigger = models.Trigger(trigger)
		rec.At = msToTime(at)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (d *Database) SaveLockdown(ctx context.Context, st state.GuildSecurityState) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO lockdown_state (guild_id, actor_id, reason, started_at, everyone_permissions, permissions_saved)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(guild_id) DO UPDATE SET
			actor_id = excluded.actor_id,
			reason = excluded.reason,
			started_at = excluded.started_at,
			everyone_permissions = excluded.everyone_permissions,
			permissions_saved = excluded.permissions_saved`,
		st.GuildID, st.TriggeringActorID, st.Reason, st.LockdownStartedAt.UnixMilli(), st.EveryonePermissions, boolToInt(st.PermissionsSaved),
	)
	if err != nil {
		return fmt.Errorf("save lockdown %s: %w", st.GuildID, err)
	}
	return nil
}

func (d *Database) ClearLockdown(ctx context.Context, guildID string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM lockdown_state WHERE guild_id = ?`, guildID); err != nil {
		return fmt.Errorf("clear lockdown %s: %w", guildID, err)
	}
	return nil
}

// LoadLockdowns returns every persisted lockdown as a security state.
func (d *Database) LoadLockdowns(ctx context.Context) ([]state.GuildSecurityState, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT guild_id, actor_id, reason, started_at, everyone_permissions, permissions_saved FROM lockdown_state`)
	if err != nil {
		return nil, fmt.Errorf("query lockdowns: %w", err)
	}
	defer rows.Close()

	var out []state.GuildSecurityState
	for rows.Next() {
		var st state.GuildSecurityState
		var started int64
		var saved int
		if err := rows.Scan(&st.GuildID, &st.TriggeringActorID, &st.Reason, &started, &st.EveryonePermissions, &saved); err != nil {
			return nil, err
		}
		st.Status = state.StatusLockdown
		st.LockdownStartedAt = msToTime(started)
		st.LastEscalation = st.LockdownStartedAt
		st.PermissionsSaved = saved == 1
		out = append(out, st)
	}
	return out, rows.Err()
}

// EnsureGuildConfig inserts cfg for a new guild, or refreshes only the owner
// and member count of an existing one.
func (d *Database) EnsureGuildConfig(ctx context.Context, cfg *GuildConfig) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO guild_config (guild_id, enabled, sensitivity, owner_id, log_channel_id, member_count, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(guild_id) DO UPDATE SET
			owner_id = excluded.owner_id,
			member_count = excluded.member_count`,
		cfg.GuildID, boolToInt(cfg.Enabled), cfg.Sensitivity, cfg.OwnerID, cfg.LogChannelID, cfg.MemberCount, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("ensure guild config %s: %w", cfg.GuildID, err)
	}
	return nil
}
