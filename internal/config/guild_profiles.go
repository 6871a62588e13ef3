package config

import (
	"sync"
)

type GuildProfile struct {
	GuildID      string
	Name         string
	MemberCount  int
	Enabled      bool
	Sensitivity  Sensitivity
	OwnerID      string
	LogChannelID string
	Whitelist    map[string]struct{}
	Override     *PolicyOverride
}

func (p *GuildProfile) clone() *GuildProfile {
	c := *p
	c.Whitelist = make(map[string]struct{}, len(p.Whitelist))
	for id := range p.Whitelist {
		c.Whitelist[id] = struct{}{}
	}
	if p.Override != nil {
		o := *p.Override
		o.InstantPatterns = append([]string(nil), p.Override.InstantPatterns...)
		c.Override = &o
	}
	return &c
}

// ProfileStore is the in-memory view of per-guild configuration, synced from
// the database at startup and kept current by the slash commands.
type ProfileStore struct {
	mu       sync.RWMutex
	defaults DetectionConfig
	botID    string
	profiles map[string]*GuildProfile
}

func NewProfileStore(defaults DetectionConfig) *ProfileStore {
	return &ProfileStore{
		defaults: defaults,
		profiles: make(map[string]*GuildProfile),
	}
}

// SetDefaults swaps the detection defaults (config hot reload).
func (ps *ProfileStore) SetDefaults(defaults DetectionConfig) {
	ps.mu.Lock()
	ps.defaults = defaults
	ps.mu.Unlock()
}

func (ps *ProfileStore) SetBotID(id string) {
	ps.mu.Lock()
	ps.botID = id
	ps.mu.Unlock()
}

func (ps *ProfileStore) BotID() string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.botID
}

func (ps *ProfileStore) newProfile(guildID string) *GuildProfile {
	return &GuildProfile{
		GuildID:     guildID,
		Enabled:     ps.defaults.Enabled,
		Sensitivity: ParseSensitivity(ps.defaults.Sensitivity),
		Whitelist:   make(map[string]struct{}),
	}
}

// Get returns a copy of the guild's profile, or a default one.
func (ps *ProfileStore) Get(guildID string) *GuildProfile {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	if profile, ok := ps.profiles[guildID]; ok {
		return profile.clone()
	}
	return ps.newProfile(guildID)
}

// Update applies fn to the stored profile, creating it first if needed.
func (ps *ProfileStore) Update(guildID string, fn func(*GuildProfile)) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	profile, ok := ps.profiles[guildID]
	if !ok {
		profile = ps.newProfile(guildID)
		ps.profiles[guildID] = profile
	}
	fn(profile)
	if profile.Whitelist == nil {
		profile.Whitelist = make(map[string]struct{})
	}
}

func (ps *ProfileStore) Remove(guildID string) {
	ps.mu.Lock()
	delete(ps.profiles, guildID)
	ps.mu.Unlock()
}

func (ps *ProfileStore) IsEnabled(guildID string) bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	profile, ok := ps.profiles[guildID]
	if !ok {
		return ps.defaults.Enabled
	}
	return profile.Enabled
}

func (ps *ProfileStore) SetEnabled(guildID string, enabled bool) {
	ps.Update(guildID, func(p *GuildProfile) { p.Enabled = enabled })
}

func (ps *ProfileStore) SetOwner(guildID, ownerID string) {
	ps.Update(guildID, func(p *GuildProfile) { p.OwnerID = ownerID })
}

func (ps *ProfileStore) SetLogChannel(guildID, channelID string) {
	ps.Update(guildID, func(p *GuildProfile) { p.LogChannelID = channelID })
}

func (ps *ProfileStore) LogChannel(guildID string) string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	if profile, ok := ps.profiles[guildID]; ok {
		return profile.LogChannelID
	}
	return ""
}

func (ps *ProfileStore) AddWhitelist(guildID, userID string) {
	ps.Update(guildID, func(p *GuildProfile) { p.Whitelist[userID] = struct{}{} })
}

func (ps *ProfileStore) RemoveWhitelist(guildID, userID string) {
	ps.Update(guildID, func(p *GuildProfile) { delete(p.Whitelist, userID) })
}

func (ps *ProfileStore) IsWhitelisted(guildID, userID string) bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	profile, ok := ps.profiles[guildID]
	if !ok {
		return false
	}
	_, listed := profile.Whitelist[userID]
	return listed
}

// IsExempt reports actors the engine never counts or punishes: the bot
// itself, the guild owner and whitelisted users.
func (ps *ProfileStore) IsExempt(guildID, actorID string) bool {
	if actorID == "" {
		return false
	}

	ps.mu.RLock()
	defer ps.mu.RUnlock()

	if actorID == ps.botID {
		return true
	}
	profile, ok := ps.profiles[guildID]
	if !ok {
		return false
	}
	if profile.OwnerID != "" && profile.OwnerID == actorID {
		return true
	}
	_, listed := profile.Whitelist[actorID]
	return listed
}

// Policy resolves the effective detection policy of a guild: defaults,
// scaled by guild size, overridden per guild, then tightened by sensitivity.
func (ps *ProfileStore) Policy(guildID string) Policy {
	ps.mu.RLock()
	defaults := ps.defaults
	profile, ok := ps.profiles[guildID]
	if ok {
		profile = profile.clone()
	}
	ps.mu.RUnlock()

	policy := DefaultPolicy(defaults)
	if !ok {
		return ParseSensitivity(defaults.Sensitivity).Apply(policy)
	}

	if defaults.ScaleBySize && profile.MemberCount > 0 {
		policy = policy.ScaleForSize(profile.MemberCount)
	}
	policy = policy.Apply(profile.Override)
	policy = profile.Sensitivity.Apply(policy)
	policy.Enabled = profile.Enabled
	return policy
}

func (ps *ProfileStore) Guilds() []string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	ids := make([]string, 0, len(ps.profiles))
	for id := range ps.profiles {
		ids = append(ids, id)
	}
	return ids
}
