package detectors

import (
	"fmt"
	"strings"

	"github.com/NexusBot-official/Nexus/internal/config"
	"github.com/NexusBot-official/Nexus/internal/models"
)

// Verdict is what the heuristic classifier concluded about one event,
// before any attribution is known.
type Verdict struct {
	Flags   uint32
	Pattern string
	Reason  string
}

// Instant events go straight to mitigation and lockdown.
func (v Verdict) Instant() bool {
	return HasFlag(v.Flags, FlagInstantName)
}

// Suspicious events put the guild under monitoring.
func (v Verdict) Suspicious() bool {
	return HasFlag(v.Flags, FlagSuspiciousName|FlagCriticalPermission|FlagBotAdd)
}

func (v Verdict) String() string {
	if v.Flags == 0 {
		return "clean"
	}
	return strings.Join(FlagNames(v.Flags), ",")
}

// Classifier runs the name and permission heuristics on a single event.
type Classifier struct {
	names *NameDetector
	perms *PermissionDetector
}

func NewClassifier() *Classifier {
	return &Classifier{
		names: NewNameDetector(),
		perms: NewPermissionDetector(),
	}
}

func (c *Classifier) Permissions() *PermissionDetector {
	return c.perms
}

func (c *Classifier) Classify(ev models.ActionEvent, policy config.Policy) Verdict {
	var v Verdict

	if ev.Type.Destructive() {
		v.Flags |= FlagDestructive
	}

	switch ev.Type {
	case models.ActionChannelCreate, models.ActionChannelUpdate,
		models.ActionRoleCreate, models.ActionRoleUpdate,
		models.ActionWebhookCreate, models.ActionWebhookUpdate:
		name := ev.Name()
		if p, ok := c.names.Match(name, policy.InstantPatterns); ok {
			v.Flags |= FlagInstantName
			v.Pattern = p
			v.Reason = fmt.Sprintf("%s %q matches raid pattern %q", ev.Type, name, p)
		} else if p, ok := c.names.Match(name, policy.SuspiciousPatterns); ok {
			v.Flags |= FlagSuspiciousName
			v.Pattern = p
			v.Reason = fmt.Sprintf("%s %q matches suspicious pattern %q", ev.Type, name, p)
		}
	case models.ActionBotAdd:
		v.Flags |= FlagBotAdd
		v.Reason = fmt.Sprintf("bot %q added", ev.Name())
	}

	switch ev.Type {
	case models.ActionRoleCreate, models.ActionRoleUpdate:
		if role, ok := ev.Payload.(models.RolePayload); ok && !role.Managed {
			if granted, added := c.perms.Detect(ev.TargetID, role.Permissions); granted {
				v.Flags |= FlagCriticalPermission
				if v.Reason == "" {
					v.Reason = fmt.Sprintf("role %q gained critical permissions %#x", role.Name, added)
				}
			}
		}
	case models.ActionRoleDelete:
		c.perms.Forget(ev.TargetID)
	}

	return v
}
