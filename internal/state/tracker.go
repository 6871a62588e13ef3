package state

import (
	"sync"
	"time"

	"github.com/NexusBot-official/Nexus/internal/models"
)

const (
	DefaultRetention  = 60 * time.Second
	DefaultMaxEntries = 512
)

type TrackerOptions struct {
	// Retention returns how far back a guild's windows must reach. It is
	// consulted on every purge so policy changes apply immediately.
	Retention  func(guildID string) time.Duration
	MaxEntries int
	Now        func() time.Time
}

type guildShard struct {
	mu      sync.Mutex
	windows map[string]*ActorWindow
	// retired is set under mu once the shard is unlinked from the tracker.
	retired bool
}

// Tracker counts recent actions per guild and actor. Each guild has its own
// shard and lock; nothing is persisted across restarts.
type Tracker struct {
	mu     sync.RWMutex
	guilds map[string]*guildShard

	retention  func(string) time.Duration
	maxEntries int
	now        func() time.Time
}

func NewTracker(opts TrackerOptions) *Tracker {
	t := &Tracker{
		guilds:     make(map[string]*guildShard),
		retention:  opts.Retention,
		maxEntries: opts.MaxEntries,
		now:        opts.Now,
	}
	if t.retention == nil {
		t.retention = func(string) time.Duration { return DefaultRetention }
	}
	if t.maxEntries <= 0 {
		t.maxEntries = DefaultMaxEntries
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t
}

func (t *Tracker) shard(guildID string, create bool) *guildShard {
	t.mu.RLock()
	s, ok := t.guilds[guildID]
	t.mu.RUnlock()
	if ok || !create {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok = t.guilds[guildID]; !ok {
		s = &guildShard{windows: make(map[string]*ActorWindow)}
		t.guilds[guildID] = s
	}
	return s
}

// lockLive returns the guild's shard locked, skipping shards a concurrent
// Sweep or ResetGuild retired after the lookup.
func (t *Tracker) lockLive(guildID string) *guildShard {
	for {
		s := t.shard(guildID, true)
		s.mu.Lock()
		if !s.retired {
			return s
		}
		s.mu.Unlock()
	}
}

func (t *Tracker) cutoff(guildID string) time.Time {
	return t.now().Add(-t.retention(guildID))
}

func bucketKey(ev models.ActionEvent) string {
	if ev.ActorID == "" {
		return UnattributedKey(ev.Type)
	}
	return ev.ActorID
}

// Track appends ev to its actor window, or to the guild's unattributed bucket
// for ev.Type when no actor is known. It returns false when ev repeats an
// event id already tracked in the same bucket, or is older than retention.
// Events without an id are never de-duplicated.
func (t *Tracker) Track(ev models.ActionEvent) bool {
	if ev.GuildID == "" {
		return false
	}
	at := ev.At
	if at.IsZero() {
		at = t.now()
	}
	cutoff := t.cutoff(ev.GuildID)
	if at.Before(cutoff) {
		return false
	}

	key := bucketKey(ev)
	s := t.lockLive(ev.GuildID)
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok {
		w = newActorWindow(ev.GuildID, key)
		s.windows[key] = w
	}
	w.purge(cutoff)
	return w.add(Entry{At: at, Type: ev.Type, TargetID: ev.TargetID, EventID: ev.ID}, t.maxEntries)
}

// Count returns how many actions actorID performed in the trailing window.
// Stale entries are purged first.
func (t *Tracker) Count(guildID, actorID string, window time.Duration) int {
	s := t.shard(guildID, false)
	if s == nil {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[actorID]
	if !ok {
		return 0
	}
	w.purge(t.cutoff(guildID))
	return w.count(t.now().Add(-window))
}

func (t *Tracker) UnattributedCount(guildID string, actionType models.ActionType, window time.Duration) int {
	return t.Count(guildID, UnattributedKey(actionType), window)
}

// Entries returns a copy of the actor's entries inside the trailing window.
func (t *Tracker) Entries(guildID, actorID string, window time.Duration) []Entry {
	s := t.shard(guildID, false)
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[actorID]
	if !ok {
		return nil
	}
	w.purge(t.cutoff(guildID))
	return w.since(t.now().Add(-window))
}

func (t *Tracker) ResetGuild(guildID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.guilds[guildID]; ok {
		s.mu.Lock()
		s.retired = true
		s.mu.Unlock()
		delete(t.guilds, guildID)
	}
}

func (t *Tracker) ResetActor(guildID, actorID string) {
	s := t.shard(guildID, false)
	if s == nil {
		return
	}
	s.mu.Lock()
	delete(s.windows, actorID)
	s.mu.Unlock()
}

// Sweep purges every window and drops the ones left empty, then the guilds
// left without windows. It returns the number of windows removed.
func (t *Tracker) Sweep() int {
	t.mu.RLock()
	ids := make([]string, 0, len(t.guilds))
	for id := range t.guilds {
		ids = append(ids, id)
	}
	t.mu.RUnlock()

	removed := 0
	for _, guildID := range ids {
		s := t.shard(guildID, false)
		if s == nil {
			continue
		}
		cutoff := t.cutoff(guildID)

		s.mu.Lock()
		for key, w := range s.windows {
			w.purge(cutoff)
			if w.empty() {
				delete(s.windows, key)
				removed++
			}
		}
		idle := len(s.windows) == 0
		s.mu.Unlock()

		if idle {
			t.mu.Lock()
			if cur, ok := t.guilds[guildID]; ok && cur == s {
				cur.mu.Lock()
				if len(cur.windows) == 0 {
					cur.retired = true
					delete(t.guilds, guildID)
				}
				cur.mu.Unlock()
			}
			t.mu.Unlock()
		}
	}
	return removed
}

// Size reports the tracked guilds and windows.
func (t *Tracker) Size() (guilds, windows int) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, s := range t.guilds {
		s.mu.Lock()
		windows += len(s.windows)
		s.mu.Unlock()
	}
	return len(t.guilds), windows
}

// Dropped reports how many entries the per-window cap has discarded.
func (t *Tracker) Dropped() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var n uint64
	for _, s := range t.guilds {
		s.mu.Lock()
		for _, w := range s.windows {
			n += w.dropped
		}
		s.mu.Unlock()
	}
	return n
}
