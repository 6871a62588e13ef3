package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecurityStore_Transitions(t *testing.T) {
	clock := newClock()
	s := NewSecurityStore(clock.Now)

	assert.Equal(t, StatusNormal, s.Get("g1").Status)

	assert.True(t, s.EnterMonitoring("g1", "a1", "soft"))
	assert.False(t, s.EnterMonitoring("g1", "a1", "soft"))
	assert.Equal(t, StatusMonitoring, s.Get("g1").Status)

	assert.True(t, s.EnterLockdown("g1", "a1", "hard"))
	assert.False(t, s.EnterLockdown("g1", "a2", "hard"))

	st := s.Get("g1")
	assert.True(t, st.Locked())
	assert.Equal(t, "a1", st.TriggeringActorID)
	assert.Equal(t, clock.Now(), st.LockdownStartedAt)

	// monitoring never overrides a lockdown
	assert.False(t, s.EnterMonitoring("g1", "a3", "soft"))
	assert.True(t, s.IsLocked("g1"))
}

func TestSecurityStore_LockdownNeverDecays(t *testing.T) {
	clock := newClock()
	s := NewSecurityStore(clock.Now)

	s.EnterLockdown("g1", "a1", "hard")
	clock.Advance(30 * 24 * time.Hour)

	assert.False(t, s.Decay("g1", time.Minute))
	assert.True(t, s.IsLocked("g1"))

	prev, ok := s.Unlock("g1")
	require.True(t, ok)
	assert.Equal(t, StatusLockdown, prev.Status)
	assert.False(t, s.IsLocked("g1"))

	_, ok = s.Unlock("g1")
	assert.False(t, ok)
}

func TestSecurityStore_MonitoringDecays(t *testing.T) {
	clock := newClock()
	s := NewSecurityStore(clock.Now)

	s.EnterMonitoring("g1", "a1", "soft")
	clock.Advance(4 * time.Minute)
	s.EnterMonitoring("g1", "a1", "soft")
	clock.Advance(4 * time.Minute)

	assert.False(t, s.Decay("g1", 5*time.Minute))
	clock.Advance(time.Minute)
	assert.True(t, s.Decay("g1", 5*time.Minute))
	assert.Equal(t, StatusNormal, s.Get("g1").Status)
}

func TestSecurityStore_SavedPermissionsAndRestore(t *testing.T) {
	clock := newClock()
	s := NewSecurityStore(clock.Now)

	s.EnterLockdown("g1", "a1", "hard")
	s.SaveEveryonePermissions("g1", 104324673)

	prev, ok := s.Unlock("g1")
	require.True(t, ok)
	assert.True(t, prev.PermissionsSaved)
	assert.Equal(t, int64(104324673), prev.EveryonePermissions)

	s.Restore(GuildSecurityState{GuildID: "g2", Status: StatusLockdown, Reason: "restored"})
	assert.Equal(t, []string{"g2"}, s.Guilds(StatusLockdown))
	assert.Equal(t, StatusLockdown, ParseStatus(StatusLockdown.String()))
}
