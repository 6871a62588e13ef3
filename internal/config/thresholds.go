package config

import "time"

type GuildSizeCategory uint8

const (
	SizeTiny GuildSizeCategory = iota
	SizeSmall
	SizeMedium
	SizeLarge
	SizeHuge
)

func (c GuildSizeCategory) String() string {
	switch c {
	case SizeTiny:
		return "tiny"
	case SizeSmall:
		return "small"
	case SizeMedium:
		return "medium"
	case SizeLarge:
		return "large"
	default:
		return "huge"
	}
}

// sizeScale grows thresholds for guilds whose staff legitimately does more at once.
var sizeScale = map[GuildSizeCategory]float32{
	SizeTiny:   1.0,
	SizeSmall:  1.0,
	SizeMedium: 1.2,
	SizeLarge:  1.5,
	SizeHuge:   2.0,
}

func GetCategoryBySize(memberCount int) GuildSizeCategory {
	switch {
	case memberCount < 100:
		return SizeTiny
	case memberCount < 1000:
		return SizeSmall
	case memberCount < 5000:
		return SizeMedium
	case memberCount < 20000:
		return SizeLarge
	default:
		return SizeHuge
	}
}

// Policy is the effective detection configuration of one guild.
type Policy struct {
	Enabled               bool
	SoftThreshold         int
	SoftWindow            time.Duration
	HardThreshold         int
	HardWindow            time.Duration
	UnattributedThreshold int
	UnattributedWindow    time.Duration
	MonitoringCooldown    time.Duration
	InstantPatterns       []string
	SuspiciousPatterns    []string
	BanOnLockdown         bool
}

// Retention is the longest window any rule of the policy looks back over.
func (p Policy) Retention() time.Duration {
	r := p.SoftWindow
	if p.HardWindow > r {
		r = p.HardWindow
	}
	if p.UnattributedWindow > r {
		r = p.UnattributedWindow
	}
	return r
}

// PolicyOverride carries the per-guild values stored in the database. Zero
// fields fall back to the defaults.
type PolicyOverride struct {
	SoftThreshold         int
	SoftWindow            time.Duration
	HardThreshold         int
	HardWindow            time.Duration
	UnattributedThreshold int
	UnattributedWindow    time.Duration
	MonitoringCooldown    time.Duration
	InstantPatterns       []string
	BanOnLockdown         *bool
}

func DefaultPolicy(d DetectionConfig) Policy {
	return Policy{
		Enabled:               d.Enabled,
		SoftThreshold:         d.SoftThreshold,
		SoftWindow:            d.SoftWindow,
		HardThreshold:         d.HardThreshold,
		HardWindow:            d.HardWindow,
		UnattributedThreshold: d.UnattributedThreshold,
		UnattributedWindow:    d.UnattributedWindow,
		MonitoringCooldown:    d.MonitoringCooldown,
		InstantPatterns:       append([]string(nil), d.InstantPatterns...),
		SuspiciousPatterns:    append([]string(nil), d.SuspiciousPatterns...),
		BanOnLockdown:         d.BanOnLockdown,
	}
}

func scale(base int, factor float32) int {
	adjusted := int(float32(base) * factor)
	if adjusted < 1 {
		adjusted = 1
	}
	return adjusted
}

// ScaleForSize multiplies the count thresholds by the guild size factor.
func (p Policy) ScaleForSize(memberCount int) Policy {
	factor := sizeScale[GetCategoryBySize(memberCount)]
	p.SoftThreshold = scale(p.SoftThreshold, factor)
	p.HardThreshold = scale(p.HardThreshold, factor)
	p.UnattributedThreshold = scale(p.UnattributedThreshold, factor)
	return p
}

func (p Policy) Apply(o *PolicyOverride) Policy {
	if o == nil {
		return p
	}
	if o.SoftThreshold > 0 {
		p.SoftThreshold = o.SoftThreshold
	}
	if o.SoftWindow > 0 {
		p.SoftWindow = o.SoftWindow
	}
	if o.HardThreshold > 0 {
		p.HardThreshold = o.HardThreshold
	}
	if o.HardWindow > 0 {
		p.HardWindow = o.HardWindow
	}
	if o.UnattributedThreshold > 0 {
		p.UnattributedThreshold = o.UnattributedThreshold
	}
	if o.UnattributedWindow > 0 {
		p.UnattributedWindow = o.UnattributedWindow
	}
	if o.MonitoringCooldown > 0 {
		p.MonitoringCooldown = o.MonitoringCooldown
	}
	if len(o.InstantPatterns) > 0 {
		p.InstantPatterns = append([]string(nil), o.InstantPatterns...)
	}
	if o.BanOnLockdown != nil {
		p.BanOnLockdown = *o.BanOnLockdown
	}
	if p.SoftThreshold > p.HardThreshold {
		p.SoftThreshold = p.HardThreshold
	}
	return p
}
