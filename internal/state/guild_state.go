package state

import (
	"sync"
	"time"
)

type Status uint8

const (
	StatusNormal Status = iota
	StatusMonitoring
	StatusLockdown
)

func (s Status) String() string {
	switch s {
	case StatusMonitoring:
		return "monitoring"
	case StatusLockdown:
		return "lockdown"
	default:
		return "normal"
	}
}

func ParseStatus(s string) Status {
	switch s {
	case "monitoring":
		return StatusMonitoring
	case "lockdown":
		return StatusLockdown
	default:
		return StatusNormal
	}
}

type GuildSecurityState struct {
	GuildID           string
	Status            Status
	MonitoringSince   time.Time
	LastEscalation    time.Time
	LockdownStartedAt time.Time
	TriggeringActorID string
	Reason            string

	// EveryonePermissions is the @everyone permission set saved when the
	// guild was locked, restored on unlock.
	EveryonePermissions int64
	PermissionsSaved    bool
}

func (s GuildSecurityState) Locked() bool {
	return s.Status == StatusLockdown
}

type guildEntry struct {
	mu sync.Mutex
	st GuildSecurityState
}

// SecurityStore keeps one GuildSecurityState per guild. Entries are created
// lazily and every transition happens under the guild's own lock.
type SecurityStore struct {
	mu     sync.RWMutex
	guilds map[string]*guildEntry
	now    func() time.Time
}

func NewSecurityStore(now func() time.Time) *SecurityStore {
	if now == nil {
		now = time.Now
	}
	return &SecurityStore{
		guilds: make(map[string]*guildEntry),
		now:    now,
	}
}

func (s *SecurityStore) entry(guildID string) *guildEntry {
	s.mu.RLock()
	e, ok := s.guilds[guildID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.guilds[guildID]; !ok {
		e = &guildEntry{st: GuildSecurityState{GuildID: guildID}}
		s.guilds[guildID] = e
	}
	return e
}

func (s *SecurityStore) Get(guildID string) GuildSecurityState {
	s.mu.RLock()
	e, ok := s.guilds[guildID]
	s.mu.RUnlock()
	if !ok {
		return GuildSecurityState{GuildID: guildID}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st
}

func (s *SecurityStore) IsLocked(guildID string) bool {
	return s.Get(guildID).Locked()
}

// EnterMonitoring moves a Normal guild to Monitoring. A guild already in
// Monitoring only refreshes its escalation time. Returns true on transition.
func (s *SecurityStore) EnterMonitoring(guildID, actorID, reason string) bool {
	e := s.entry(guildID)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := s.now()
	switch e.st.Status {
	case StatusNormal:
		e.st.Status = StatusMonitoring
		e.st.MonitoringSince = now
		e.st.LastEscalation = now
		e.st.TriggeringActorID = actorID
		e.st.Reason = reason
		return true
	case StatusMonitoring:
		e.st.LastEscalation = now
	}
	return false
}

// EnterLockdown locks the guild. It returns false when the guild is already
// locked, so a burst produces exactly one transition.
func (s *SecurityStore) EnterLockdown(guildID, actorID, reason string) bool {
	e := s.entry(guildID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.st.Status == StatusLockdown {
		return false
	}

	now := s.now()
	e.st.Status = StatusLockdown
	e.st.LockdownStartedAt = now
	e.st.LastEscalation = now
	e.st.TriggeringActorID = actorID
	e.st.Reason = reason
	e.st.PermissionsSaved = false
	e.st.EveryonePermissions = 0
	return true
}

func (s *SecurityStore) SaveEveryonePermissions(guildID string, perms int64) {
	e := s.entry(guildID)
	e.mu.Lock()
	e.st.EveryonePermissions = perms
	e.st.PermissionsSaved = true
	e.mu.Unlock()
}

// AttributeLockdown names the actor behind a lockdown that was entered before
// attribution finished. It does nothing if an actor is already recorded.
func (s *SecurityStore) AttributeLockdown(guildID, actorID string) bool {
	e := s.entry(guildID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.st.Status != StatusLockdown || e.st.TriggeringActorID != "" || actorID == "" {
		return false
	}
	e.st.TriggeringActorID = actorID
	return true
}

// Unlock returns a locked guild to Normal and hands back the state it left.
func (s *SecurityStore) Unlock(guildID string) (GuildSecurityState, bool) {
	e := s.entry(guildID)
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.st
	if prev.Status != StatusLockdown {
		return prev, false
	}
	e.st = GuildSecurityState{GuildID: guildID}
	return prev, true
}

// Decay returns a Monitoring guild to Normal once quiet has elapsed since its
// last escalation. Lockdown never decays.
func (s *SecurityStore) Decay(guildID string, quiet time.Duration) bool {
	s.mu.RLock()
	e, ok := s.guilds[guildID]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.st.Status != StatusMonitoring || s.now().Sub(e.st.LastEscalation) < quiet {
		return false
	}
	e.st = GuildSecurityState{GuildID: guildID}
	return true
}

// Restore installs a persisted state, used at startup.
func (s *SecurityStore) Restore(st GuildSecurityState) {
	e := s.entry(st.GuildID)
	e.mu.Lock()
	e.st = st
	e.mu.Unlock()
}

// Guilds lists the guilds currently in the given status.
func (s *SecurityStore) Guilds(status Status) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, e := range s.guilds {
		e.mu.Lock()
		if e.st.Status == status {
			ids = append(ids, id)
		}
		e.mu.Unlock()
	}
	return ids
}
