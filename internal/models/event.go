package models

import (
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
)

// ActionType is a guild mutation the engine watches.
type ActionType uint8

const (
	ActionUnknown ActionType = iota
	ActionChannelCreate
	ActionChannelDelete
	ActionChannelUpdate
	ActionRoleCreate
	ActionRoleDelete
	ActionRoleUpdate
	ActionBanCreate
	ActionMemberKick
	ActionWebhookCreate
	ActionWebhookUpdate
	ActionWebhookDelete
	ActionBotAdd
)

var actionNames = map[ActionType]string{
	ActionChannelCreate: "channel_create",
	ActionChannelDelete: "channel_delete",
	ActionChannelUpdate: "channel_update",
	ActionRoleCreate:    "role_create",
	ActionRoleDelete:    "role_delete",
	ActionRoleUpdate:    "role_update",
	ActionBanCreate:     "ban_create",
	ActionMemberKick:    "member_kick",
	ActionWebhookCreate: "webhook_create",
	ActionWebhookUpdate: "webhook_update",
	ActionWebhookDelete: "webhook_delete",
	ActionBotAdd:        "bot_add",
}

func (a ActionType) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown"
}

// AuditAction maps the action to the audit-log entry type Discord writes for it.
func (a ActionType) AuditAction() discordgo.AuditLogAction {
	switch a {
	case ActionChannelCreate:
		return discordgo.AuditLogActionChannelCreate
	case ActionChannelDelete:
		return discordgo.AuditLogActionChannelDelete
	case ActionChannelUpdate:
		return discordgo.AuditLogActionChannelUpdate
	case ActionRoleCreate:
		return discordgo.AuditLogActionRoleCreate
	case ActionRoleDelete:
		return discordgo.AuditLogActionRoleDelete
	case ActionRoleUpdate:
		return discordgo.AuditLogActionRoleUpdate
	case ActionBanCreate:
		return discordgo.AuditLogActionMemberBanAdd
	case ActionMemberKick:
		return discordgo.AuditLogActionMemberKick
	case ActionWebhookCreate:
		return discordgo.AuditLogActionWebhookCreate
	case ActionWebhookUpdate:
		return discordgo.AuditLogActionWebhookUpdate
	case ActionWebhookDelete:
		return discordgo.AuditLogActionWebhookDelete
	case ActionBotAdd:
		return discordgo.AuditLogActionBotAdd
	default:
		return 0
	}
}

// ActionFromAudit is the inverse of AuditAction.
func ActionFromAudit(action discordgo.AuditLogAction) ActionType {
	for a := ActionChannelCreate; a <= ActionBotAdd; a++ {
		if a.AuditAction() == action {
			return a
		}
	}
	return ActionUnknown
}

// Destructive actions remove guild structure or members.
func (a ActionType) Destructive() bool {
	switch a {
	case ActionChannelDelete, ActionRoleDelete, ActionBanCreate, ActionMemberKick, ActionWebhookDelete:
		return true
	}
	return false
}

// Revertible actions leave behind a target the bot can remove or undo.
func (a ActionType) Revertible() bool {
	switch a {
	case ActionChannelCreate, ActionRoleCreate, ActionWebhookCreate, ActionWebhookUpdate, ActionBanCreate, ActionBotAdd:
		return true
	}
	return false
}

// Structural actions are suppressed by the lockdown gate.
func (a ActionType) Structural() bool {
	return a != ActionUnknown
}

// Payload is the typed detail carried by an ActionEvent.
type Payload interface {
	DisplayName() string
	payload()
}

type ChannelPayload struct {
	Name     string
	Kind     discordgo.ChannelType
	ParentID string
}

type RolePayload struct {
	Name        string
	Permissions int64
	Managed     bool
}

type MemberPayload struct {
	Username string
	Bot      bool
}

type WebhookPayload struct {
	ChannelID string
	Name      string
}

func (p ChannelPayload) DisplayName() string { return p.Name }
func (p RolePayload) DisplayName() string    { return p.Name }
func (p MemberPayload) DisplayName() string  { return p.Username }
func (p WebhookPayload) DisplayName() string { return p.Name }

func (ChannelPayload) payload() {}
func (RolePayload) payload()    {}
func (MemberPayload) payload()  {}
func (WebhookPayload) payload() {}

const MaxDebugLen = 256

// ActionEvent is one observed mutation. ActorID is empty until attributed and
// ID, when set, is the de-duplication key for redelivered events.
type ActionEvent struct {
	ID       string
	GuildID  string
	ActorID  string
	Type     ActionType
	TargetID string
	At       time.Time
	Payload  Payload
	Debug    string
}

func NewEvent(guildID string, actionType ActionType, targetID string, payload Payload) ActionEvent {
	return ActionEvent{
		GuildID:  guildID,
		Type:     actionType,
		TargetID: targetID,
		At:       time.Now(),
		Payload:  payload,
	}
}

// WithDebug returns a copy with the debug note truncated to MaxDebugLen bytes.
func (e ActionEvent) WithDebug(note string) ActionEvent {
	if len(note) > MaxDebugLen {
		cut := MaxDebugLen
		for cut > 0 && !utf8.RuneStart(note[cut]) {
			cut--
		}
		note = note[:cut]
	}
	e.Debug = note
	return e
}

func (e ActionEvent) Name() string {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.DisplayName()
}

func (e ActionEvent) Attributed() bool {
	return e.ActorID != ""
}
