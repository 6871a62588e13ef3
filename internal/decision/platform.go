package decision

import (
	"context"

	"github.com/NexusBot-official/Nexus/internal/models"
	"github.com/NexusBot-official/Nexus/internal/state"
)

// Platform is the set of mutations the engine issues against the guild.
// Deletes of targets that are already gone must return nil.
type Platform interface {
	DeleteChannel(ctx context.Context, channelID, reason string) error
	DeleteRole(ctx context.Context, guildID, roleID, reason string) error
	DeleteWebhook(ctx context.Context, webhookID, reason string) error
	BanMember(ctx context.Context, guildID, userID, reason string) error
	Unban(ctx context.Context, guildID, userID, reason string) error
	KickMember(ctx context.Context, guildID, userID, reason string) error
	StripRoles(ctx context.Context, guildID, userID, reason string) ([]string, error)
	LockGuild(ctx context.Context, guildID, reason string) (int64, error)
	UnlockGuild(ctx context.Context, guildID string, perms int64, reason string) error
}

// RecordStore persists the mitigation trail and the lockdown state.
type RecordStore interface {
	SaveRecord(ctx context.Context, rec models.MitigationRecord) error
	AnnotateRecords(ctx context.Context, guildID string, ids []string, actorID string) error
	SaveLockdown(ctx context.Context, st state.GuildSecurityState) error
	ClearLockdown(ctx context.Context, guildID string) error
}

// Sink receives operator notifications. Implementations must not block.
type Sink interface {
	Notify(ctx context.Context, n models.Notification)
}

type nopStore struct{}

func (nopStore) SaveRecord(context.Context, models.MitigationRecord) error       { return nil }
func (nopStore) AnnotateRecords(context.Context, string, []string, string) error { return nil }
func (nopStore) SaveLockdown(context.Context, state.GuildSecurityState) error    { return nil }
func (nopStore) ClearLockdown(context.Context, string) error                     { return nil }

type nopSink struct{}

func (nopSink) Notify(context.Context, models.Notification) {}
