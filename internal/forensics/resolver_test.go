package forensics

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NexusBot-official/Nexus/internal/models"
)

const discordEpochMs = 1420070400000

func snowflakeAt(t time.Time) string {
	return strconv.FormatInt((t.UnixMilli()-discordEpochMs)<<22, 10)
}

func entry(at time.Time, action discordgo.AuditLogAction, actor, target string) *discordgo.AuditLogEntry {
	return &discordgo.AuditLogEntry{
		ID:         snowflakeAt(at),
		ActionType: &action,
		UserID:     actor,
		TargetID:   target,
	}
}

type fakeSource struct {
	mu      sync.Mutex
	entries []*discordgo.AuditLogEntry
	err     error
	delay   time.Duration
	calls   int32
}

func (f *fakeSource) GuildAuditLog(guildID, userID, beforeID string, actionType, limit int, options ...discordgo.RequestOption) (*discordgo.GuildAuditLog, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []*discordgo.AuditLogEntry
	for _, e := range f.entries {
		if int(*e.ActionType) == actionType {
			out = append(out, e)
		}
	}
	return &discordgo.GuildAuditLog{AuditLogEntries: out}, nil
}

func (f *fakeSource) Calls() int {
	return int(atomic.LoadInt32(&f.calls))
}

func newResolver(src AuditLogSource, opts ResolverOptions) *Resolver {
	return NewResolver(NewAuditLogFetcher(src, 10, nil), opts)
}

func TestAuditMatcher_TargetAndTolerance(t *testing.T) {
	now := time.Now()
	m := NewAuditMatcher(5 * time.Second)

	entries := []*discordgo.AuditLogEntry{
		entry(now.Add(-30*time.Second), discordgo.AuditLogActionChannelDelete, "old", "c1"),
		entry(now.Add(-time.Second), discordgo.AuditLogActionChannelDelete, "other", "c2"),
		entry(now.Add(-time.Second), discordgo.AuditLogActionRoleDelete, "wrongtype", "c1"),
		entry(now.Add(-2*time.Second), discordgo.AuditLogActionChannelDelete, "nuker", "c1"),
	}

	got := m.Match(entries, Query{Type: models.ActionChannelDelete, TargetID: "c1", At: now})
	require.NotNil(t, got)
	assert.Equal(t, "nuker", got.UserID)

	assert.Nil(t, m.Match(entries, Query{Type: models.ActionChannelDelete, TargetID: "c9", At: now}))

	// targetless events take the newest entry of the type
	got = m.Match(entries, Query{Type: models.ActionChannelDelete, At: now})
	require.NotNil(t, got)
	assert.Equal(t, "other", got.UserID)
}

func TestResolver_ResolvesFromAuditLog(t *testing.T) {
	now := time.Now()
	src := &fakeSource{entries: []*discordgo.AuditLogEntry{
		entry(now, discordgo.AuditLogActionChannelCreate, "nuker", "c1"),
	}}
	r := newResolver(src, ResolverOptions{Timeout: time.Second})

	a := r.Resolve(context.Background(), Query{GuildID: "g1", Type: models.ActionChannelCreate, TargetID: "c1", At: now})
	assert.True(t, a.Found())
	assert.Equal(t, "nuker", a.ActorID)

	// the second lookup is served from the cache
	calls := src.Calls()
	a = r.Resolve(context.Background(), Query{GuildID: "g1", Type: models.ActionChannelCreate, TargetID: "c1", At: now})
	assert.Equal(t, "nuker", a.ActorID)
	assert.Equal(t, calls, src.Calls())
}

func TestResolver_GatewayEntryBeatsQuery(t *testing.T) {
	now := time.Now()
	src := &fakeSource{err: errors.New("should not be called")}
	r := newResolver(src, ResolverOptions{Timeout: time.Second})

	r.Observe("g1", entry(now, discordgo.AuditLogActionRoleDelete, "nuker", "r1"))

	a := r.Resolve(context.Background(), Query{GuildID: "g1", Type: models.ActionRoleDelete, TargetID: "r1", At: now})
	assert.Equal(t, "nuker", a.ActorID)
	assert.Zero(t, src.Calls())
}

func TestResolver_ErrorsYieldEmptyAttribution(t *testing.T) {
	src := &fakeSource{err: errors.New(`HTTP 403 Forbidden, {"message": "Missing Permissions", "code": 50013}`)}
	r := newResolver(src, ResolverOptions{Timeout: time.Second, RetryDelay: time.Millisecond})

	a := r.Resolve(context.Background(), Query{GuildID: "g1", Type: models.ActionBanCreate, TargetID: "u1"})
	assert.False(t, a.Found())
}

func TestResolver_BreakerStopsHammeringDeniedGuild(t *testing.T) {
	src := &fakeSource{err: errors.New("403 Forbidden")}
	r := newResolver(src, ResolverOptions{Timeout: time.Second, Attempts: 1})

	for i := 0; i < 10; i++ {
		r.Resolve(context.Background(), Query{GuildID: "g1", Type: models.ActionChannelDelete, TargetID: "c1"})
	}
	assert.Equal(t, 3, src.Calls())
}

func TestResolver_TimeoutThenLateAttribution(t *testing.T) {
	now := time.Now()
	src := &fakeSource{
		delay:   200 * time.Millisecond,
		entries: []*discordgo.AuditLogEntry{entry(now, discordgo.AuditLogActionChannelCreate, "nuker", "c1")},
	}
	r := newResolver(src, ResolverOptions{Timeout: 50 * time.Millisecond, LateWindow: 2 * time.Second})
	q := Query{GuildID: "g1", Type: models.ActionChannelCreate, TargetID: "c1", At: now}

	start := time.Now()
	a := r.Resolve(context.Background(), q)
	assert.False(t, a.Found())
	assert.Less(t, time.Since(start), 200*time.Millisecond)

	late := r.AwaitLate(context.Background(), q)
	assert.Equal(t, "nuker", late.ActorID)
	assert.Equal(t, 1, src.Calls())
}

func TestResolver_AwaitLateWokenByGateway(t *testing.T) {
	now := time.Now()
	src := &fakeSource{}
	r := newResolver(src, ResolverOptions{Timeout: time.Second, LateWindow: 2 * time.Second})
	q := Query{GuildID: "g1", Type: models.ActionWebhookCreate, At: now}

	go func() {
		time.Sleep(20 * time.Millisecond)
		r.Observe("g1", entry(now, discordgo.AuditLogActionWebhookCreate, "nuker", "w1"))
	}()

	a := r.AwaitLate(context.Background(), q)
	assert.Equal(t, "nuker", a.ActorID)
	assert.Equal(t, "w1", a.TargetID)
}

func TestResolver_AwaitLateGivesUp(t *testing.T) {
	r := newResolver(&fakeSource{}, ResolverOptions{Timeout: 20 * time.Millisecond, LateWindow: 60 * time.Millisecond})

	a := r.AwaitLate(context.Background(), Query{GuildID: "g1", Type: models.ActionRoleCreate, TargetID: "r1"})
	assert.False(t, a.Found())
}
