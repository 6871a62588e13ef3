package forensics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/bwmarrin/discordgo"

	"github.com/NexusBot-official/Nexus/internal/logging"
	"github.com/NexusBot-official/Nexus/internal/metrics"
	"github.com/NexusBot-official/Nexus/internal/models"
)

// Query describes the event to attribute.
type Query struct {
	GuildID  string
	Type     models.ActionType
	TargetID string
	At       time.Time
	Within   time.Duration
}

func QueryFor(ev models.ActionEvent, within time.Duration) Query {
	return Query{
		GuildID:  ev.GuildID,
		Type:     ev.Type,
		TargetID: ev.TargetID,
		At:       ev.At,
		Within:   within,
	}
}

// Attribution is the resolved actor. A zero value means unattributed.
type Attribution struct {
	ActorID  string
	TargetID string
	EntryID  string
	Reason   string
}

func (a Attribution) Found() bool {
	return a.ActorID != ""
}

func attributionOf(e *discordgo.AuditLogEntry) Attribution {
	return Attribution{
		ActorID:  e.UserID,
		TargetID: e.TargetID,
		EntryID:  e.ID,
		Reason:   e.Reason,
	}
}

type ResolverOptions struct {
	// Timeout bounds Resolve. The underlying fetch keeps running for up to
	// LateWindow and feeds AwaitLate when it finally answers.
	Timeout    time.Duration
	Tolerance  time.Duration
	CacheTTL   time.Duration
	LateWindow time.Duration
	Attempts   uint
	RetryDelay time.Duration
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

type observed struct {
	entry *discordgo.AuditLogEntry
	seen  time.Time
}

type waiter struct {
	q  Query
	ch chan Attribution
}

var errNoMatch = errors.New("no matching audit entry")

// Resolver attributes anonymous gateway events to the member who caused them.
// It combines audit entries pushed over the gateway with on-demand audit-log
// queries, and never returns an error: failure means unattributed.
type Resolver struct {
	fetcher *AuditLogFetcher
	matcher *AuditMatcher
	opts    ResolverOptions

	mu       sync.Mutex
	cache    map[string][]observed
	inflight map[string]chan struct{}
	waiters  map[string][]*waiter
}

func NewResolver(fetcher *AuditLogFetcher, opts ResolverOptions) *Resolver {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Second
	}
	if opts.LateWindow <= 0 {
		opts.LateWindow = 30 * time.Second
	}
	if opts.Attempts == 0 {
		opts.Attempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 250 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Resolver{
		fetcher:  fetcher,
		matcher:  NewAuditMatcher(opts.Tolerance),
		opts:     opts,
		cache:    make(map[string][]observed),
		inflight: make(map[string]chan struct{}),
		waiters:  make(map[string][]*waiter),
	}
}

func (r *Resolver) normalize(q Query) Query {
	if q.At.IsZero() {
		q.At = r.opts.Now()
	}
	return q
}

// Observe records an audit entry, typically from GUILD_AUDIT_LOG_ENTRY_CREATE,
// and hands it to any waiter it explains.
func (r *Resolver) Observe(guildID string, entry *discordgo.AuditLogEntry) {
	if guildID == "" || entry == nil || entry.ID == "" {
		return
	}

	now := r.opts.Now()

	r.mu.Lock()
	entries := r.cache[guildID][:0]
	dup := false
	for _, o := range r.cache[guildID] {
		if now.Sub(o.seen) > r.opts.CacheTTL {
			continue
		}
		if o.entry.ID == entry.ID {
			dup = true
		}
		entries = append(entries, o)
	}
	if !dup {
		entries = append(entries, observed{entry: entry, seen: now})
	}
	r.cache[guildID] = entries

	var woken []*waiter
	remaining := r.waiters[guildID][:0]
	for _, w := range r.waiters[guildID] {
		if r.matcher.Match([]*discordgo.AuditLogEntry{entry}, w.q) != nil {
			woken = append(woken, w)
			continue
		}
		remaining = append(remaining, w)
	}
	if len(remaining) == 0 {
		delete(r.waiters, guildID)
	} else {
		r.waiters[guildID] = remaining
	}
	r.mu.Unlock()

	for _, w := range woken {
		select {
		case w.ch <- attributionOf(entry):
		default:
		}
	}
}

func (r *Resolver) fromCache(q Query) (Attribution, bool) {
	now := r.opts.Now()

	r.mu.Lock()
	var entries []*discordgo.AuditLogEntry
	for _, o := range r.cache[q.GuildID] {
		if now.Sub(o.seen) <= r.opts.CacheTTL {
			entries = append(entries, o.entry)
		}
	}
	r.mu.Unlock()

	if e := r.matcher.Match(entries, q); e != nil {
		return attributionOf(e), true
	}
	return Attribution{}, false
}

// fetch starts an audit query for the guild and action unless one is already
// running, and returns a channel closed when it completes.
func (r *Resolver) fetch(q Query) <-chan struct{} {
	key := q.GuildID + ":" + q.Type.String()

	r.mu.Lock()
	if ch, ok := r.inflight[key]; ok {
		r.mu.Unlock()
		return ch
	}
	ch := make(chan struct{})
	r.inflight[key] = ch
	r.mu.Unlock()

	go func() {
		defer func() {
			r.mu.Lock()
			delete(r.inflight, key)
			r.mu.Unlock()
			close(ch)
		}()

		ctx, cancel := context.WithTimeout(context.Background(), r.opts.LateWindow)
		defer cancel()

		entries, err := r.fetcher.FetchByAction(ctx, q.GuildID, q.Type.AuditAction())
		if err != nil {
			logging.Debug("[AUDIT] Fetch failed for %s: %v", key, err)
			return
		}
		for _, e := range entries {
			r.Observe(q.GuildID, e)
		}
	}()
	return ch
}

// Resolve returns the actor behind the event, or an empty Attribution when
// the audit log cannot tell within the timeout.
func (r *Resolver) Resolve(ctx context.Context, q Query) Attribution {
	q = r.normalize(q)
	start := time.Now()

	if a, ok := r.fromCache(q); ok {
		r.opts.Metrics.Attribution(metrics.AttributionCache, time.Since(start))
		return a
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	var found Attribution
	err := retry.New(
		retry.Context(ctx),
		retry.Attempts(r.opts.Attempts),
		retry.Delay(r.opts.RetryDelay),
		retry.LastErrorOnly(true),
	).Do(func() error {
		select {
		case <-r.fetch(q):
		case <-ctx.Done():
			return ctx.Err()
		}
		if a, ok := r.fromCache(q); ok {
			found = a
			return nil
		}
		return errNoMatch
	})

	elapsed := time.Since(start)
	switch {
	case err == nil:
		r.opts.Metrics.Attribution(metrics.AttributionAudit, elapsed)
	case errors.Is(err, context.DeadlineExceeded):
		logging.Debug("[AUDIT] Attribution of %s %s in %s timed out after %v", q.Type, q.TargetID, q.GuildID, elapsed)
		r.opts.Metrics.Attribution(metrics.AttributionTimeout, elapsed)
	default:
		logging.Debug("[AUDIT] No attribution for %s %s in %s: %v", q.Type, q.TargetID, q.GuildID, err)
		r.opts.Metrics.Attribution(metrics.AttributionMiss, elapsed)
	}
	return found
}

// AwaitLate waits up to LateWindow for an audit entry explaining q, either
// pushed over the gateway or returned by a slow query still in flight.
func (r *Resolver) AwaitLate(ctx context.Context, q Query) Attribution {
	q = r.normalize(q)
	start := time.Now()

	w := &waiter{q: q, ch: make(chan Attribution, 1)}
	r.mu.Lock()
	r.waiters[q.GuildID] = append(r.waiters[q.GuildID], w)
	r.mu.Unlock()
	defer r.removeWaiter(w)

	if a, ok := r.fromCache(q); ok {
		r.opts.Metrics.Attribution(metrics.AttributionLate, time.Since(start))
		return a
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.LateWindow)
	defer cancel()

	poll := time.NewTicker(r.opts.Timeout)
	defer poll.Stop()

	for {
		select {
		case a := <-w.ch:
			r.opts.Metrics.Attribution(metrics.AttributionLate, time.Since(start))
			return a
		case <-poll.C:
			r.fetch(q)
		case <-ctx.Done():
			r.opts.Metrics.Attribution(metrics.AttributionMiss, time.Since(start))
			return Attribution{}
		}
	}
}

func (r *Resolver) removeWaiter(w *waiter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.waiters[w.q.GuildID]
	for i, cur := range list {
		if cur == w {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(r.waiters, w.q.GuildID)
	} else {
		r.waiters[w.q.GuildID] = list
	}
}

// Forget drops everything cached for a guild.
func (r *Resolver) Forget(guildID string) {
	r.mu.Lock()
	delete(r.cache, guildID)
	r.mu.Unlock()
	r.fetcher.Forget(guildID)
}
