package decision

import (
	"sync"
	"time"

	"github.com/NexusBot-official/Nexus/internal/models"
)

const echoTTL = 30 * time.Second

// echoSet remembers the gateway events the engine's own mutations are about
// to cause, keyed by the action the gateway will report, so they are not
// handled as fresh mutations.
type echoSet struct {
	mu   sync.Mutex
	now  func() time.Time
	seen map[string]time.Time
}

func newEchoSet(now func() time.Time) *echoSet {
	return &echoSet{now: now, seen: make(map[string]time.Time)}
}

func echoKey(guildID string, echo models.ActionType, targetID string) string {
	return guildID + ":" + echo.String() + ":" + targetID
}

func (s *echoSet) expect(guildID string, echo models.ActionType, targetID string) {
	if targetID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, at := range s.seen {
		if now.Sub(at) > echoTTL {
			delete(s.seen, k)
		}
	}
	s.seen[echoKey(guildID, echo, targetID)] = now
}

func (s *echoSet) forget(guildID string, echo models.ActionType, targetID string) {
	s.mu.Lock()
	delete(s.seen, echoKey(guildID, echo, targetID))
	s.mu.Unlock()
}

// consume reports whether the event was expected and clears it.
func (s *echoSet) consume(guildID string, echo models.ActionType, targetID string) bool {
	if targetID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := echoKey(guildID, echo, targetID)
	at, ok := s.seen[k]
	if !ok {
		return false
	}
	delete(s.seen, k)
	return s.now().Sub(at) <= echoTTL
}

// mutate runs a platform call whose gateway echo arrives as an echo event on
// targetID. A failed call leaves nothing to suppress.
func (e *Engine) mutate(guildID string, echo models.ActionType, targetID string, call func() error) error {
	e.echoes.expect(guildID, echo, targetID)
	err := call()
	if err != nil {
		e.echoes.forget(guildID, echo, targetID)
	}
	return err
}
