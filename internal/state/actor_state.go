package state

import (
	"sort"
	"time"

	"github.com/NexusBot-official/Nexus/internal/models"
)

// UnattributedPrefix marks synthetic buckets that collect events whose actor
// could not be resolved, one per guild and action type.
const UnattributedPrefix = "unattributed:"

func UnattributedKey(t models.ActionType) string {
	return UnattributedPrefix + t.String()
}

type Entry struct {
	At       time.Time
	Type     models.ActionType
	TargetID string
	EventID  string
}

// ActorWindow holds the recent actions of one actor (or one unattributed
// bucket) in a guild, ordered by time.
type ActorWindow struct {
	GuildID string
	Key     string

	entries []Entry
	seen    map[string]time.Time
	dropped uint64
}

func newActorWindow(guildID, key string) *ActorWindow {
	return &ActorWindow{
		GuildID: guildID,
		Key:     key,
		seen:    make(map[string]time.Time),
	}
}

// add inserts e keeping entries time-ordered. Gateway events may arrive out
// of order, so a late event is placed by timestamp rather than appended.
func (w *ActorWindow) add(e Entry, maxEntries int) bool {
	if e.EventID != "" {
		if _, dup := w.seen[e.EventID]; dup {
			return false
		}
		w.seen[e.EventID] = e.At
	}

	i := sort.Search(len(w.entries), func(i int) bool {
		return w.entries[i].At.After(e.At)
	})
	w.entries = append(w.entries, Entry{})
	copy(w.entries[i+1:], w.entries[i:])
	w.entries[i] = e

	if maxEntries > 0 && len(w.entries) > maxEntries {
		over := len(w.entries) - maxEntries
		for _, old := range w.entries[:over] {
			if old.EventID != "" {
				delete(w.seen, old.EventID)
			}
		}
		w.entries = append(w.entries[:0], w.entries[over:]...)
		w.dropped += uint64(over)
	}
	return true
}

// purge drops every entry older than cutoff.
func (w *ActorWindow) purge(cutoff time.Time) {
	i := sort.Search(len(w.entries), func(i int) bool {
		return !w.entries[i].At.Before(cutoff)
	})
	if i > 0 {
		w.entries = append(w.entries[:0], w.entries[i:]...)
	}
	for id, at := range w.seen {
		if at.Before(cutoff) {
			delete(w.seen, id)
		}
	}
}

func (w *ActorWindow) count(since time.Time) int {
	i := sort.Search(len(w.entries), func(i int) bool {
		return !w.entries[i].At.Before(since)
	})
	return len(w.entries) - i
}

func (w *ActorWindow) since(since time.Time) []Entry {
	i := sort.Search(len(w.entries), func(i int) bool {
		return !w.entries[i].At.Before(since)
	})
	out := make([]Entry, len(w.entries)-i)
	copy(out, w.entries[i:])
	return out
}

func (w *ActorWindow) empty() bool {
	return len(w.entries) == 0 && len(w.seen) == 0
}
