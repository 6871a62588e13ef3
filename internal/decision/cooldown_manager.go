package decision

import (
	"sync"
	"time"
)

// CooldownManager remembers which actors were mitigated recently so a burst
// strips or bans each actor once.
type CooldownManager struct {
	mu        sync.Mutex
	cooldowns map[string]map[string]time.Time
	duration  time.Duration
	now       func() time.Time
}

func NewCooldownManager(duration time.Duration, now func() time.Time) *CooldownManager {
	if now == nil {
		now = time.Now
	}
	return &CooldownManager{
		cooldowns: make(map[string]map[string]time.Time),
		duration:  duration,
		now:       now,
	}
}

func (cm *CooldownManager) canExecute(guildID, actorID string) bool {
	guildCooldowns, exists := cm.cooldowns[guildID]
	if !exists {
		return true
	}

	lastExecution, exists := guildCooldowns[actorID]
	if !exists {
		return true
	}
	return cm.now().Sub(lastExecution) >= cm.duration
}

func (cm *CooldownManager) record(guildID, actorID string) {
	if _, exists := cm.cooldowns[guildID]; !exists {
		cm.cooldowns[guildID] = make(map[string]time.Time)
	}
	cm.cooldowns[guildID][actorID] = cm.now()
}

// TryAcquire records an execution and returns true only if the actor was not
// already inside its cooldown.
func (cm *CooldownManager) TryAcquire(guildID, actorID string) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.canExecute(guildID, actorID) {
		return false
	}
	cm.record(guildID, actorID)
	return true
}

func (cm *CooldownManager) Reset(guildID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	delete(cm.cooldowns, guildID)
}
