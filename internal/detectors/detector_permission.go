package detectors

import (
	"sync"

	"github.com/bwmarrin/discordgo"
)

// CriticalPermMask is the set of permissions a nuker needs. Roles carrying any
// of them are stripped from a punished actor.
const CriticalPermMask int64 = discordgo.PermissionAdministrator |
	discordgo.PermissionManageServer |
	discordgo.PermissionManageRoles |
	discordgo.PermissionManageChannels |
	discordgo.PermissionManageWebhooks |
	discordgo.PermissionBanMembers |
	discordgo.PermissionKickMembers |
	discordgo.PermissionMentionEveryone

func HasCritical(perms int64) bool {
	return perms&CriticalPermMask != 0
}

// PermissionDetector remembers the last permission set seen per role so a
// role update can be diffed without a REST round trip.
type PermissionDetector struct {
	mu    sync.Mutex
	perms map[string]int64
}

func NewPermissionDetector() *PermissionDetector {
	return &PermissionDetector{
		perms: make(map[string]int64),
	}
}

// Remember seeds the cache, typically from GUILD_CREATE.
func (d *PermissionDetector) Remember(roleID string, perms int64) {
	d.mu.Lock()
	d.perms[roleID] = perms
	d.mu.Unlock()
}

func (d *PermissionDetector) Forget(roleID string) {
	d.mu.Lock()
	delete(d.perms, roleID)
	d.mu.Unlock()
}

// Detect records newPerms for the role and returns the critical permissions
// it gained. A role never seen before is diffed against an empty set.
func (d *PermissionDetector) Detect(roleID string, newPerms int64) (bool, int64) {
	d.mu.Lock()
	oldPerms := d.perms[roleID]
	d.perms[roleID] = newPerms
	d.mu.Unlock()

	added := AddedPermissions(oldPerms, newPerms) & CriticalPermMask
	return added != 0, added
}

func AddedPermissions(oldPerms, newPerms int64) int64 {
	return (oldPerms ^ newPerms) & newPerms
}

func RemovedPermissions(oldPerms, newPerms int64) int64 {
	return (oldPerms ^ newPerms) & oldPerms
}
