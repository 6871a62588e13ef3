package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

type call struct {
	Method string
	Path   string
	Reason string
	Body   string
}

// fakeDiscord answers REST calls from a route table.
type fakeDiscord struct {
	mu     sync.Mutex
	calls  []call
	routes map[string]func(ctx *fasthttp.RequestCtx)
}

func (f *fakeDiscord) handle(ctx *fasthttp.RequestCtx) {
	key := string(ctx.Method()) + " " + strings.TrimPrefix(string(ctx.Path()), "/api/v10")

	f.mu.Lock()
	f.calls = append(f.calls, call{
		Method: string(ctx.Method()),
		Path:   strings.TrimPrefix(string(ctx.Path()), "/api/v10"),
		Reason: string(ctx.Request.Header.Peek("X-Audit-Log-Reason")),
		Body:   string(ctx.PostBody()),
	})
	h, ok := f.routes[key]
	f.mu.Unlock()

	if !ok {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		ctx.SetBodyString(`{"message": "Unknown", "code": 10003}`)
		return
	}
	h(ctx)
}

func (f *fakeDiscord) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func jsonReply(v interface{}) func(ctx *fasthttp.RequestCtx) {
	return func(ctx *fasthttp.RequestCtx) {
		ctx.SetContentType("application/json")
		b, _ := json.Marshal(v)
		ctx.SetBody(b)
	}
}

func noContent(ctx *fasthttp.RequestCtx) {
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func newTestClient(t *testing.T, routes map[string]func(ctx *fasthttp.RequestCtx)) (*Client, *fakeDiscord) {
	t.Helper()

	fake := &fakeDiscord{routes: routes}
	ln := fasthttputil.NewInmemoryListener()
	server := &fasthttp.Server{Handler: fake.handle}
	go server.Serve(ln)
	t.Cleanup(func() { _ = server.Shutdown() })

	c := NewClient(Options{
		Token:          "token",
		BaseURL:        "http://discord.test/api/v10",
		BotID:          "bot",
		RequestTimeout: time.Second,
		RetryAttempts:  3,
		RatePerSecond:  1000,
		Burst:          100,
		StripMask:      discordgo.PermissionAdministrator | discordgo.PermissionBanMembers,
		Dial:           func(addr string) (net.Conn, error) { return ln.Dial() },
	})
	return c, fake
}

func TestClient_DeleteChannelIsIdempotent(t *testing.T) {
	c, fake := newTestClient(t, map[string]func(*fasthttp.RequestCtx){
		"DELETE /channels/c1": noContent,
	})

	require.NoError(t, c.DeleteChannel(context.Background(), "c1", "anti-nuke: raid channel"))
	require.NoError(t, c.DeleteChannel(context.Background(), "gone", "anti-nuke"))

	calls := fake.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "anti-nuke:%20raid%20channel", calls[0].Reason)
}

func TestClient_ForbiddenIsReported(t *testing.T) {
	c, _ := newTestClient(t, map[string]func(*fasthttp.RequestCtx){
		"DELETE /guilds/g1/roles/r1": func(ctx *fasthttp.RequestCtx) {
			ctx.SetStatusCode(fasthttp.StatusForbidden)
			ctx.SetBodyString(`{"message": "Missing Permissions", "code": 50013}`)
		},
	})

	err := c.DeleteRole(context.Background(), "g1", "r1", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrForbidden))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 50013, apiErr.Code)
}

func TestClient_RetriesServerErrorsAndRateLimits(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	c, _ := newTestClient(t, map[string]func(*fasthttp.RequestCtx){
		"PUT /guilds/g1/bans/u1": func(ctx *fasthttp.RequestCtx) {
			mu.Lock()
			attempts++
			n := attempts
			mu.Unlock()

			switch n {
			case 1:
				ctx.SetStatusCode(fasthttp.StatusBadGateway)
			case 2:
				ctx.SetStatusCode(fasthttp.StatusTooManyRequests)
				ctx.SetBodyString(`{"message": "You are being rate limited.", "retry_after": 0.01, "global": false}`)
			default:
				noContent(ctx)
			}
		},
	})

	require.NoError(t, c.BanMember(context.Background(), "g1", "u1", "nuke"))
	assert.Equal(t, 3, attempts)
}

func TestClient_StripRolesBelowBotOnly(t *testing.T) {
	roles := []*discordgo.Role{
		{ID: "g1", Name: "@everyone", Position: 0},
		{ID: "admin", Name: "Admin", Position: 5, Permissions: discordgo.PermissionAdministrator},
		{ID: "mod", Name: "Mod", Position: 2, Permissions: discordgo.PermissionBanMembers},
		{ID: "fun", Name: "Fun", Position: 1, Permissions: discordgo.PermissionSendMessages},
		{ID: "botrole", Name: "Nexus", Position: 4, Permissions: discordgo.PermissionAdministrator, Managed: true},
	}

	c, fake := newTestClient(t, map[string]func(*fasthttp.RequestCtx){
		"GET /guilds/g1/roles":           jsonReply(roles),
		"GET /guilds/g1/members/bot":     jsonReply(discordgo.Member{Roles: []string{"botrole"}}),
		"GET /guilds/g1/members/nuker":   jsonReply(discordgo.Member{Roles: []string{"admin", "mod", "fun"}}),
		"PATCH /guilds/g1/members/nuker": noContent,
	})

	removed, err := c.StripRoles(context.Background(), "g1", "nuker", "anti-nuke")
	require.NoError(t, err)
	assert.Equal(t, []string{"mod"}, removed)

	calls := fake.Calls()
	patch := calls[len(calls)-1]
	assert.Equal(t, "PATCH", patch.Method)
	assert.JSONEq(t, `{"roles": ["admin", "fun"]}`, patch.Body)
}

func TestClient_LockAndUnlockGuild(t *testing.T) {
	before := int64(discordgo.PermissionSendMessages | discordgo.PermissionViewChannel | discordgo.PermissionAddReactions)
	roles := []*discordgo.Role{{ID: "g1", Name: "@everyone", Permissions: before}}

	c, fake := newTestClient(t, map[string]func(*fasthttp.RequestCtx){
		"GET /guilds/g1/roles":      jsonReply(roles),
		"PATCH /guilds/g1/roles/g1": noContent,
	})

	prev, err := c.LockGuild(context.Background(), "g1", "lockdown")
	require.NoError(t, err)
	assert.Equal(t, before, prev)

	require.NoError(t, c.UnlockGuild(context.Background(), "g1", prev, "unlock"))

	calls := fake.Calls()
	require.Len(t, calls, 3)
	assert.JSONEq(t, `{"permissions": "1024"}`, calls[1].Body)
	assert.Contains(t, calls[2].Body, `"permissions"`)
}

func TestRateLimitMonitor_DelaysExhaustedBucket(t *testing.T) {
	rlm := NewRateLimitMonitor()
	now := time.Now()
	rlm.now = func() time.Time { return now }

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)
	resp.Header.Set("X-RateLimit-Remaining", "0")
	resp.Header.Set("X-RateLimit-Limit", "5")
	resp.Header.Set("X-RateLimit-Reset-After", "1.5")

	rlm.UpdateFromFastHTTPResponse(resp, "DELETE /channels/c1")

	assert.Equal(t, 1500*time.Millisecond, rlm.Delay("DELETE /channels/c1"))
	assert.Zero(t, rlm.Delay("DELETE /channels/c2"))
	assert.Equal(t, 5, rlm.GetBucket("DELETE /channels/c1").Limit)
}
