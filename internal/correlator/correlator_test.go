package correlator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NexusBot-official/Nexus/internal/config"
	"github.com/NexusBot-official/Nexus/internal/decision"
	"github.com/NexusBot-official/Nexus/internal/forensics"
	"github.com/NexusBot-official/Nexus/internal/metrics"
	"github.com/NexusBot-official/Nexus/internal/models"
	"github.com/NexusBot-official/Nexus/internal/state"
)

var snowflakeSeq int64

func snowflakeAt(t time.Time) string {
	seq := atomic.AddInt64(&snowflakeSeq, 1) & 0xfff
	return strconv.FormatInt((t.UnixMilli()-1420070400000)<<22|seq, 10)
}

func auditEntry(at time.Time, action discordgo.AuditLogAction, actor, target string) *discordgo.AuditLogEntry {
	return &discordgo.AuditLogEntry{ID: snowflakeAt(at), ActionType: &action, UserID: actor, TargetID: target}
}

type slowAudit struct {
	mu      sync.Mutex
	entries []*discordgo.AuditLogEntry
	delay   time.Duration
}

func (s *slowAudit) GuildAuditLog(_, _, _ string, actionType, _ int, _ ...discordgo.RequestOption) (*discordgo.GuildAuditLog, error) {
	time.Sleep(s.delay)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*discordgo.AuditLogEntry
	for _, e := range s.entries {
		if int(*e.ActionType) == actionType {
			out = append(out, e)
		}
	}
	return &discordgo.GuildAuditLog{AuditLogEntries: out}, nil
}

type timedCall struct {
	what string
	at   time.Time
}

type platformSpy struct {
	mu    sync.Mutex
	calls []timedCall
}

func (p *platformSpy) add(format string, args ...interface{}) {
	p.mu.Lock()
	p.calls = append(p.calls, timedCall{fmt.Sprintf(format, args...), time.Now()})
	p.mu.Unlock()
}

func (p *platformSpy) find(prefix string) []timedCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []timedCall
	for _, c := range p.calls {
		if strings.HasPrefix(c.what, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (p *platformSpy) DeleteChannel(_ context.Context, id, _ string) error {
	p.add("delete_channel %s", id)
	return nil
}

func (p *platformSpy) DeleteRole(_ context.Context, _, id, _ string) error {
	p.add("delete_role %s", id)
	return nil
}

func (p *platformSpy) DeleteWebhook(_ context.Context, id, _ string) error {
	p.add("delete_webhook %s", id)
	return nil
}

func (p *platformSpy) BanMember(_ context.Context, _, id, _ string) error {
	p.add("ban %s", id)
	return nil
}

func (p *platformSpy) Unban(_ context.Context, _, id, _ string) error {
	p.add("unban %s", id)
	return nil
}

func (p *platformSpy) KickMember(_ context.Context, _, id, _ string) error {
	p.add("kick %s", id)
	return nil
}

func (p *platformSpy) StripRoles(_ context.Context, _, id, _ string) ([]string, error) {
	p.add("strip %s", id)
	return []string{"admin"}, nil
}

func (p *platformSpy) LockGuild(_ context.Context, id, _ string) (int64, error) {
	p.add("lock %s", id)
	return 0x800, nil
}

func (p *platformSpy) UnlockGuild(_ context.Context, id string, _ int64, _ string) error {
	p.add("unlock %s", id)
	return nil
}

type recordSpy struct {
	mu      sync.Mutex
	records map[string]models.MitigationRecord
}

func (r *recordSpy) SaveRecord(_ context.Context, rec models.MitigationRecord) error {
	r.mu.Lock()
	r.records[rec.ID] = rec
	r.mu.Unlock()
	return nil
}

func (r *recordSpy) AnnotateRecords(_ context.Context, _ string, ids []string, actorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		rec := r.records[id]
		rec.ActorID = actorID
		r.records[id] = rec
	}
	return nil
}

func (r *recordSpy) SaveLockdown(context.Context, state.GuildSecurityState) error { return nil }
func (r *recordSpy) ClearLockdown(context.Context, string) error                  { return nil }

func (r *recordSpy) get(id string) models.MitigationRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[id]
}

type fixture struct {
	c        *Correlator
	audit    *slowAudit
	platform *platformSpy
	records  *recordSpy
}

func newFixture(t *testing.T, audit *slowAudit, opts forensics.ResolverOptions) *fixture {
	t.Helper()

	m := metrics.NewMetrics(nil)
	profiles := config.NewProfileStore(config.DefaultConfig().Detection)
	profiles.SetBotID("bot")
	platform := &platformSpy{}
	records := &recordSpy{records: make(map[string]models.MitigationRecord)}

	tracker := state.NewTracker(state.TrackerOptions{
		Retention: func(g string) time.Duration { return profiles.Policy(g).Retention() },
	})
	engine := decision.NewEngine(decision.Options{
		Platform: platform,
		Tracker:  tracker,
		Profiles: profiles,
		Records:  records,
		Metrics:  m,
	})
	opts.Metrics = m
	resolver := forensics.NewResolver(forensics.NewAuditLogFetcher(audit, 10, m), opts)

	c := NewCorrelator(Options{
		Profiles: profiles,
		Resolver: resolver,
		Engine:   engine,
		Metrics:  m,
	})
	t.Cleanup(c.Close)
	return &fixture{c: c, audit: audit, platform: platform, records: records}
}

func TestCorrelator_SlowResolverDeletesFirstAnnotatesLater(t *testing.T) {
	now := time.Now()
	audit := &slowAudit{
		delay:   200 * time.Millisecond,
		entries: []*discordgo.AuditLogEntry{auditEntry(now, discordgo.AuditLogActionChannelCreate, "nuker", "c1")},
	}
	f := newFixture(t, audit, forensics.ResolverOptions{Timeout: 50 * time.Millisecond, LateWindow: 2 * time.Second})

	ev := models.NewEvent("g1", models.ActionChannelCreate, "c1", models.ChannelPayload{Name: "nuked-by-us"})
	ev.At = now

	start := time.Now()
	res := f.c.Handle(context.Background(), ev)
	returned := time.Now()

	assert.Less(t, returned.Sub(start), 200*time.Millisecond, "handler must not wait for the audit log")
	assert.Empty(t, res.ActorID)
	assert.Equal(t, state.StatusLockdown, res.Status)

	deletes := f.platform.find("delete_channel c1")
	require.Len(t, deletes, 1)
	assert.True(t, deletes[0].at.Before(start.Add(200*time.Millisecond)), "deleted before the resolver answered")
	assert.Empty(t, f.platform.find("strip"))

	f.c.Wait()

	require.NotEmpty(t, res.Records)
	for _, rec := range res.Records {
		assert.Equal(t, "nuker", f.records.get(rec.ID).ActorID)
	}
	assert.Len(t, f.platform.find("strip nuker"), 1)
	assert.Equal(t, "nuker", f.c.Engine().States().Get("g1").TriggeringActorID)
	assert.Equal(t, uint64(1), f.c.Stats().LateResolved)
}

func TestCorrelator_ElevenChannelDeletes(t *testing.T) {
	f := newFixture(t, &slowAudit{}, forensics.ResolverOptions{Timeout: time.Second})

	var results []Result
	for i := 1; i <= 11; i++ {
		target := fmt.Sprintf("c%d", i)
		at := time.Now()
		f.c.Observe("g1", auditEntry(at, discordgo.AuditLogActionChannelDelete, "nuker", target))

		ev := models.NewEvent("g1", models.ActionChannelDelete, target, models.ChannelPayload{Name: target})
		ev.At = at
		results = append(results, f.c.Handle(context.Background(), ev))
	}
	f.c.Wait()

	for i := 0; i < 9; i++ {
		assert.NotEqual(t, state.StatusLockdown, results[i].Status, "event %d", i+1)
	}
	assert.Equal(t, "nuker", results[9].ActorID)
	assert.Equal(t, state.StatusLockdown, results[9].Status)

	eleventh := results[10]
	assert.True(t, eleventh.Gated)
	require.Len(t, eleventh.Records, 1)
	assert.Equal(t, models.MitigationBlocked, eleventh.Records[0].Action)
	assert.Equal(t, "nuker", f.records.get(eleventh.Records[0].ID).ActorID)

	assert.Len(t, f.platform.find("lock g1"), 1)
	assert.Len(t, f.platform.find("strip nuker"), 1)
	assert.Equal(t, uint64(1), f.c.Stats().Gated)
}

func TestCorrelator_DuplicateDeliveryCountsOnce(t *testing.T) {
	f := newFixture(t, &slowAudit{}, forensics.ResolverOptions{Timeout: time.Second})

	ev := models.NewEvent("g1", models.ActionRoleDelete, "r1", models.RolePayload{Name: "mods"})
	ev.ID = "evt-1"
	ev.ActorID = "someone"

	assert.False(t, f.c.Handle(context.Background(), ev).Duplicate)
	assert.True(t, f.c.Handle(context.Background(), ev).Duplicate)
	assert.Equal(t, 1, f.c.tracker.Count("g1", "someone", time.Minute))
}

func TestCorrelator_SkipsDisabledAndExempt(t *testing.T) {
	f := newFixture(t, &slowAudit{}, forensics.ResolverOptions{Timeout: time.Second})
	f.c.Profiles().SetEnabled("off", false)
	f.c.Profiles().AddWhitelist("g1", "trusted")

	ev := models.NewEvent("off", models.ActionChannelDelete, "c1", nil)
	assert.True(t, f.c.Handle(context.Background(), ev).Skipped)

	ev = models.NewEvent("g1", models.ActionChannelDelete, "c1", nil)
	ev.ActorID = "trusted"
	assert.True(t, f.c.Handle(context.Background(), ev).Skipped)

	assert.Equal(t, uint64(2), f.c.Stats().Skipped)
}

func TestCorrelator_SweepDecaysMonitoring(t *testing.T) {
	f := newFixture(t, &slowAudit{}, forensics.ResolverOptions{Timeout: time.Second})
	f.c.Profiles().Update("g1", func(p *config.GuildProfile) {
		p.Override = &config.PolicyOverride{MonitoringCooldown: time.Millisecond}
	})

	for i := 0; i < 5; i++ {
		ev := models.NewEvent("g1", models.ActionChannelUpdate, "c1", models.ChannelPayload{Name: "general"})
		ev.ActorID = "mod"
		f.c.Handle(context.Background(), ev)
	}
	require.Equal(t, state.StatusMonitoring, f.c.Engine().States().Get("g1").Status)

	time.Sleep(5 * time.Millisecond)
	f.c.Sweep()
	assert.Equal(t, state.StatusNormal, f.c.Engine().States().Get("g1").Status)
}

func TestCorrelator_OwnBanIsNotUndoneDuringLockdown(t *testing.T) {
	f := newFixture(t, &slowAudit{}, forensics.ResolverOptions{Timeout: time.Second})
	ban := true
	f.c.Profiles().Update("g1", func(p *config.GuildProfile) {
		p.Override = &config.PolicyOverride{BanOnLockdown: &ban}
	})

	ev := models.NewEvent("g1", models.ActionChannelCreate, "c1", models.ChannelPayload{Name: "nuked"})
	ev.ActorID = "nuker"
	res := f.c.Handle(context.Background(), ev)
	require.Equal(t, state.StatusLockdown, res.Status)
	require.Len(t, f.platform.find("ban nuker"), 1)

	// the gateway reports the ban the engine just issued
	echo := models.NewEvent("g1", models.ActionBanCreate, "nuker", models.MemberPayload{Username: "nuker"})
	res = f.c.Handle(context.Background(), echo)
	f.c.Wait()

	assert.True(t, res.Skipped)
	assert.False(t, res.Gated)
	assert.Empty(t, f.platform.find("unban"))
	assert.Equal(t, uint64(1), f.c.Stats().Echoes)

	// a second ban of the same user is a real mutation again
	again := models.NewEvent("g1", models.ActionBanCreate, "nuker", models.MemberPayload{Username: "nuker"})
	again.ActorID = "accomplice"
	assert.True(t, f.c.Handle(context.Background(), again).Gated)
}

func TestCorrelator_ForgetGuildKeepsLockdown(t *testing.T) {
	f := newFixture(t, &slowAudit{}, forensics.ResolverOptions{Timeout: time.Second})

	for i := 0; i < 3; i++ {
		ev := models.NewEvent("g1", models.ActionChannelUpdate, "c1", models.ChannelPayload{Name: "general"})
		ev.ActorID = "mod"
		f.c.Handle(context.Background(), ev)
	}
	require.Equal(t, 3, f.c.tracker.Count("g1", "mod", time.Minute))

	ev := models.NewEvent("g2", models.ActionChannelCreate, "c9", models.ChannelPayload{Name: "nuked"})
	ev.ActorID = "nuker"
	require.Equal(t, state.StatusLockdown, f.c.Handle(context.Background(), ev).Status)
	f.c.Wait()

	f.c.ForgetGuild("g1")
	f.c.ForgetGuild("g2")

	assert.Zero(t, f.c.tracker.Count("g1", "mod", time.Minute))
	assert.True(t, f.c.Engine().States().IsLocked("g2"), "leaving a guild must not lift its lockdown")
}

func TestCorrelator_RepeatedBanDuringLockdownIsNeutralized(t *testing.T) {
	f := newFixture(t, &slowAudit{}, forensics.ResolverOptions{Timeout: time.Second})

	ev := models.NewEvent("g1", models.ActionChannelCreate, "c1", models.ChannelPayload{Name: "nuked"})
	ev.ActorID = "nuker"
	require.Equal(t, state.StatusLockdown, f.c.Handle(context.Background(), ev).Status)

	for i := 0; i < 2; i++ {
		ban := models.NewEvent("g1", models.ActionBanCreate, "victim", models.MemberPayload{Username: "victim"})
		ban.ActorID = "accomplice"
		res := f.c.Handle(context.Background(), ban)
		assert.True(t, res.Gated, "ban %d", i+1)
		assert.False(t, res.Skipped, "ban %d", i+1)
	}
	f.c.Wait()

	assert.Len(t, f.platform.find("unban victim"), 2)
	assert.Zero(t, f.c.Stats().Echoes)
}

func TestCorrelator_OwnEveryoneLockIsNotGated(t *testing.T) {
	f := newFixture(t, &slowAudit{}, forensics.ResolverOptions{Timeout: time.Second})

	ev := models.NewEvent("g1", models.ActionChannelCreate, "c1", models.ChannelPayload{Name: "nuked"})
	ev.ActorID = "nuker"
	require.Equal(t, state.StatusLockdown, f.c.Handle(context.Background(), ev).Status)
	require.Len(t, f.platform.find("lock g1"), 1)

	// the gateway reports the @everyone update the lockdown just made
	everyone := models.NewEvent("g1", models.ActionRoleUpdate, "g1", models.RolePayload{Name: "@everyone"})
	res := f.c.Handle(context.Background(), everyone)
	assert.True(t, res.Skipped)
	assert.False(t, res.Gated)
	assert.Empty(t, res.Records)
	assert.Equal(t, uint64(1), f.c.Stats().Echoes)

	// someone else editing @everyone afterwards is still gated
	again := models.NewEvent("g1", models.ActionRoleUpdate, "g1", models.RolePayload{Name: "@everyone"})
	again.ActorID = "accomplice"
	assert.True(t, f.c.Handle(context.Background(), again).Gated)
	f.c.Wait()
}
