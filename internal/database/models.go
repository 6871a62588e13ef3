package database

// GuildConfig is the per-guild row behind config.GuildProfile.
type GuildConfig struct {
	GuildID      string
	Enabled      bool
	Sensitivity  string
	OwnerID      string
	LogChannelID string
	MemberCount  int
	UpdatedAt    int64
}

// GuildLimits overrides the detection defaults for one guild. Zero values
// mean "use the default".
type GuildLimits struct {
	GuildID               string
	SoftThreshold         int
	SoftWindowMs          int64
	HardThreshold         int
	HardWindowMs          int64
	UnattributedThreshold int
	UnattributedWindowMs  int64
	MonitoringCooldownMs  int64
	InstantPatterns       []string
	BanOnLockdown         *bool
	UpdatedAt             int64
}

// Whitelist is one trusted user of a guild.
type Whitelist struct {
	GuildID   string
	UserID    string
	AddedBy   string
	CreatedAt int64
}
