package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/bwmarrin/discordgo"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"

	"github.com/NexusBot-official/Nexus/internal/logging"
)

const DefaultBaseURL = "https://discord.com/api/v10"

// LockMask is what @everyone loses while a guild is locked down.
const LockMask int64 = discordgo.PermissionSendMessages |
	discordgo.PermissionSendMessagesInThreads |
	discordgo.PermissionCreatePublicThreads |
	discordgo.PermissionCreatePrivateThreads |
	discordgo.PermissionAddReactions |
	discordgo.PermissionCreateInstantInvite |
	discordgo.PermissionVoiceConnect

type Options struct {
	Token          string
	BaseURL        string
	BotID          string
	PoolSize       int
	RequestTimeout time.Duration
	RetryAttempts  uint
	RatePerSecond  float64
	Burst          int
	// StripMask selects the roles StripRoles removes.
	StripMask int64
	Dial      fasthttp.DialFunc
}

// Client performs mitigations against the Discord REST API. Every call is
// throttled client-side, honours Discord's bucket headers and retries 429 and
// 5xx answers.
type Client struct {
	pool     *HTTPPool
	limits   *RateLimitMonitor
	limiter  *rate.Limiter
	token    string
	baseURL  string
	timeout  time.Duration
	attempts uint
	mask     int64

	mu    sync.Mutex
	botID string
}

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 2 * time.Second
	}
	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = 3
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 40
	}
	if opts.Burst <= 0 {
		opts.Burst = 10
	}

	return &Client{
		pool:     NewHTTPPool(opts.PoolSize, opts.RequestTimeout, opts.Dial),
		limits:   NewRateLimitMonitor(),
		limiter:  rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Burst),
		token:    opts.Token,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		timeout:  opts.RequestTimeout,
		attempts: opts.RetryAttempts,
		mask:     opts.StripMask,
		botID:    opts.BotID,
	}
}

func (c *Client) Warmup() int {
	return c.pool.Warmup(c.baseURL + "/gateway")
}

func (c *Client) SetBotID(id string) {
	c.mu.Lock()
	c.botID = id
	c.mu.Unlock()
}

type request struct {
	method string
	path   string
	route  string
	reason string
	body   interface{}
}

// do sends r and decodes a 2xx JSON body into out (when non-nil).
func (c *Client) do(ctx context.Context, r request, out interface{}) error {
	var payload []byte
	if r.body != nil {
		var err error
		if payload, err = json.Marshal(r.body); err != nil {
			return fmt.Errorf("failed to encode %s body: %w", r.route, err)
		}
	}

	return retry.New(
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				return apiErr.RetryAfter
			}
			return retry.BackOffDelay(n, err, config)
		}),
	).Do(func() error {
		return c.once(ctx, r, payload, out)
	})
}

func (c *Client) once(ctx context.Context, r request, payload []byte, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", r.route, err)
	}
	if wait := c.limits.Delay(r.route); wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%s: %w", r.route, ctx.Err())
		}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + r.path)
	req.Header.SetMethod(r.method)
	req.Header.Set("Authorization", "Bot "+c.token)
	if r.reason != "" {
		req.Header.Set("X-Audit-Log-Reason", url.PathEscape(r.reason))
	}
	if payload != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	start := time.Now()
	if err := c.pool.GetClient().DoDeadline(req, resp, deadline); err != nil {
		return &transportError{err: fmt.Errorf("%s: %w", r.route, err)}
	}
	c.limits.UpdateFromFastHTTPResponse(resp, r.route)

	status := resp.StatusCode()
	logging.Debug("[DISPATCH] %s %s -> %d in %v", r.method, r.path, status, time.Since(start))

	if status >= 200 && status < 300 {
		if out != nil && status != fasthttp.StatusNoContent {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("%s: failed to decode response: %w", r.route, err)
			}
		}
		return nil
	}

	apiErr := &APIError{Route: r.route, Status: status}
	_ = json.Unmarshal(resp.Body(), apiErr)
	if status == fasthttp.StatusTooManyRequests {
		var body struct {
			RetryAfter float64 `json:"retry_after"`
		}
		if json.Unmarshal(resp.Body(), &body) == nil && body.RetryAfter > 0 {
			apiErr.RetryAfter = time.Duration(body.RetryAfter * float64(time.Second))
		} else if s, err := strconv.ParseFloat(string(resp.Header.Peek("Retry-After")), 64); err == nil {
			apiErr.RetryAfter = time.Duration(s * float64(time.Second))
		}
	}
	return apiErr
}

// ignoreNotFound turns "already gone" into success.
func ignoreNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (c *Client) DeleteChannel(ctx context.Context, channelID, reason string) error {
	return ignoreNotFound(c.do(ctx, request{
		method: fasthttp.MethodDelete,
		path:   "/channels/" + channelID,
		route:  "DELETE /channels/" + channelID,
		reason: reason,
	}, nil))
}

func (c *Client) DeleteRole(ctx context.Context, guildID, roleID, reason string) error {
	return ignoreNotFound(c.do(ctx, request{
		method: fasthttp.MethodDelete,
		path:   "/guilds/" + guildID + "/roles/" + roleID,
		route:  "DELETE /guilds/" + guildID + "/roles",
		reason: reason,
	}, nil))
}

func (c *Client) DeleteWebhook(ctx context.Context, webhookID, reason string) error {
	return ignoreNotFound(c.do(ctx, request{
		method: fasthttp.MethodDelete,
		path:   "/webhooks/" + webhookID,
		route:  "DELETE /webhooks/" + webhookID,
		reason: reason,
	}, nil))
}

func (c *Client) BanMember(ctx context.Context, guildID, userID, reason string) error {
	return c.do(ctx, request{
		method: fasthttp.MethodPut,
		path:   "/guilds/" + guildID + "/bans/" + userID,
		route:  "PUT /guilds/" + guildID + "/bans",
		reason: reason,
		body:   map[string]int{"delete_message_seconds": 0},
	}, nil)
}

func (c *Client) Unban(ctx context.Context, guildID, userID, reason string) error {
	return ignoreNotFound(c.do(ctx, request{
		method: fasthttp.MethodDelete,
		path:   "/guilds/" + guildID + "/bans/" + userID,
		route:  "DELETE /guilds/" + guildID + "/bans",
		reason: reason,
	}, nil))
}

func (c *Client) KickMember(ctx context.Context, guildID, userID, reason string) error {
	return ignoreNotFound(c.do(ctx, request{
		method: fasthttp.MethodDelete,
		path:   "/guilds/" + guildID + "/members/" + userID,
		route:  "DELETE /guilds/" + guildID + "/members",
		reason: reason,
	}, nil))
}

func (c *Client) roles(ctx context.Context, guildID string) ([]*discordgo.Role, error) {
	var roles []*discordgo.Role
	err := c.do(ctx, request{
		method: fasthttp.MethodGet,
		path:   "/guilds/" + guildID + "/roles",
		route:  "GET /guilds/" + guildID + "/roles",
	}, &roles)
	return roles, err
}

func (c *Client) member(ctx context.Context, guildID, userID string) (*discordgo.Member, error) {
	var m discordgo.Member
	err := c.do(ctx, request{
		method: fasthttp.MethodGet,
		path:   "/guilds/" + guildID + "/members/" + userID,
		route:  "GET /guilds/" + guildID + "/members",
	}, &m)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) self(ctx context.Context) (string, error) {
	c.mu.Lock()
	id := c.botID
	c.mu.Unlock()
	if id != "" {
		return id, nil
	}

	var u discordgo.User
	if err := c.do(ctx, request{method: fasthttp.MethodGet, path: "/users/@me", route: "GET /users/@me"}, &u); err != nil {
		return "", err
	}
	c.SetBotID(u.ID)
	return u.ID, nil
}

func topPosition(member *discordgo.Member, byID map[string]*discordgo.Role) int {
	top := 0
	for _, id := range member.Roles {
		if r, ok := byID[id]; ok && r.Position > top {
			top = r.Position
		}
	}
	return top
}

// StripRoles removes from userID every role carrying one of the StripMask
// permissions that sits below the bot's highest role. Roles the bot cannot
// manage are left alone; the bot's own roles are never touched.
func (c *Client) StripRoles(ctx context.Context, guildID, userID, reason string) ([]string, error) {
	botID, err := c.self(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bot user: %w", err)
	}

	roles, err := c.roles(ctx, guildID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*discordgo.Role, len(roles))
	for _, r := range roles {
		byID[r.ID] = r
	}

	bot, err := c.member(ctx, guildID, botID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bot member: %w", err)
	}
	target, err := c.member(ctx, guildID, userID)
	if err != nil {
		return nil, ignoreNotFound(err)
	}
	botTop := topPosition(bot, byID)

	keep := make([]string, 0, len(target.Roles))
	var removed []string
	for _, id := range target.Roles {
		r, ok := byID[id]
		if ok && !r.Managed && r.Permissions&c.mask != 0 && r.Position < botTop {
			removed = append(removed, id)
			continue
		}
		keep = append(keep, id)
	}
	if len(removed) == 0 {
		return nil, nil
	}
	sort.Strings(removed)

	err = c.do(ctx, request{
		method: fasthttp.MethodPatch,
		path:   "/guilds/" + guildID + "/members/" + userID,
		route:  "PATCH /guilds/" + guildID + "/members",
		reason: reason,
		body:   map[string][]string{"roles": keep},
	}, nil)
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (c *Client) setEveryone(ctx context.Context, guildID string, perms int64, reason string) error {
	return c.do(ctx, request{
		method: fasthttp.MethodPatch,
		path:   "/guilds/" + guildID + "/roles/" + guildID,
		route:  "PATCH /guilds/" + guildID + "/roles",
		reason: reason,
		body:   map[string]string{"permissions": strconv.FormatInt(perms, 10)},
	}, nil)
}

// LockGuild removes LockMask from @everyone and returns the permissions it
// had before, for UnlockGuild.
func (c *Client) LockGuild(ctx context.Context, guildID, reason string) (int64, error) {
	roles, err := c.roles(ctx, guildID)
	if err != nil {
		return 0, err
	}

	var everyone *discordgo.Role
	for _, r := range roles {
		if r.ID == guildID {
			everyone = r
			break
		}
	}
	if everyone == nil {
		return 0, fmt.Errorf("guild %s has no @everyone role", guildID)
	}

	prev := everyone.Permissions
	if prev&LockMask == 0 {
		return prev, nil
	}
	if err := c.setEveryone(ctx, guildID, prev&^LockMask, reason); err != nil {
		return 0, err
	}
	return prev, nil
}

func (c *Client) UnlockGuild(ctx context.Context, guildID string, perms int64, reason string) error {
	return c.setEveryone(ctx, guildID, perms, reason)
}
