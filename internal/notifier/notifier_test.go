package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NexusBot-official/Nexus/internal/models"
)

type embedSpy struct {
	mu     sync.Mutex
	sent   map[string][]*discordgo.MessageEmbed
	failed bool
}

func (e *embedSpy) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failed {
		return nil, errors.New("403 Forbidden")
	}
	e.sent[channelID] = append(e.sent[channelID], embed)
	return &discordgo.Message{ChannelID: channelID}, nil
}

type publishSpy struct {
	mu       sync.Mutex
	channel  string
	messages [][]byte
}

func (p *publishSpy) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channel = channel
	p.messages = append(p.messages, message.([]byte))
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

type panicSink struct{}

func (panicSink) Notify(context.Context, models.Notification) { panic("boom") }

func lockdownNotice() models.Notification {
	recs := []models.MitigationRecord{
		models.NewMitigationRecord("g1", "nuker", "c1", models.MitigationDeleted, models.TriggerThreshold, "channel burst"),
		models.NewMitigationRecord("g1", "nuker", "", models.MitigationGuildLocked, models.TriggerThreshold, "channel burst").
			WithError(errors.New("missing permissions")),
	}
	return models.Notification{
		Kind:     models.NotifyLockdown,
		Severity: models.SeverityCritical,
		GuildID:  "g1",
		ActorID:  "nuker",
		Trigger:  models.TriggerThreshold,
		Reason:   "10 channel_create in 10s",
		Records:  recs,
		At:       time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestBuildEmbed(t *testing.T) {
	embed := BuildEmbed(lockdownNotice())

	assert.Equal(t, colorCritical, embed.Color)
	assert.Contains(t, embed.Title, "Locked Down")
	assert.Equal(t, "10 channel_create in 10s", embed.Description)
	require.Len(t, embed.Fields, 5)
	assert.Contains(t, embed.Fields[0].Value, "<@nuker>")
	assert.Equal(t, "guild_locked", embed.Fields[4].Name)
	assert.Contains(t, embed.Fields[4].Value, "missing permissions")

	unlock := models.Notification{Kind: models.NotifyUnlock, GuildID: "g1"}
	assert.Equal(t, colorResolved, BuildEmbed(unlock).Color)
	assert.Equal(t, "unknown", BuildEmbed(unlock).Fields[0].Value)
}

func TestBuildEmbed_CapsRecordFields(t *testing.T) {
	n := lockdownNotice()
	n.Records = nil
	for i := 0; i < 40; i++ {
		n.Records = append(n.Records, models.NewMitigationRecord("g1", "nuker", "c", models.MitigationDeleted, models.TriggerThreshold, "burst"))
	}
	embed := BuildEmbed(n)
	assert.LessOrEqual(t, len(embed.Fields), 25)
	assert.Equal(t, "25 more records", embed.Fields[len(embed.Fields)-1].Value)
}

func TestDiscordSink_UsesLogChannel(t *testing.T) {
	spy := &embedSpy{sent: make(map[string][]*discordgo.MessageEmbed)}
	sink := NewDiscordSink(spy, func(guildID string) string {
		if guildID == "g1" {
			return "logs"
		}
		return ""
	})

	sink.Notify(context.Background(), lockdownNotice())
	other := lockdownNotice()
	other.GuildID = "g2"
	sink.Notify(context.Background(), other)

	assert.Len(t, spy.sent["logs"], 1)
	assert.Len(t, spy.sent, 1)

	spy.failed = true
	assert.NotPanics(t, func() { sink.Notify(context.Background(), lockdownNotice()) })
}

func TestRedisSink_PublishesJSON(t *testing.T) {
	spy := &publishSpy{}
	NewRedisSink(spy, "").Notify(context.Background(), lockdownNotice())

	assert.Equal(t, DefaultRedisChannel, spy.channel)
	require.Len(t, spy.messages, 1)

	var got models.Notification
	require.NoError(t, json.Unmarshal(spy.messages[0], &got))
	assert.Equal(t, models.NotifyLockdown, got.Kind)
	assert.Equal(t, "nuker", got.ActorID)
	assert.Len(t, got.Records, 2)
}

func TestFanout_IsolatesPanics(t *testing.T) {
	pub := &publishSpy{}
	f := NewFanout(panicSink{}, NewRedisSink(pub, "alerts"), nil, NewLogSink(zap.NewNop()))

	f.Notify(context.Background(), lockdownNotice())
	f.Wait()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Len(t, pub.messages, 1)
	assert.Equal(t, "alerts", pub.channel)
}
