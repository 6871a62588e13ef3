package config

// Sensitivity tightens a guild's thresholds without touching its windows.
type Sensitivity uint8

const (
	SensitivityNormal Sensitivity = iota
	SensitivityElevated
	SensitivityHigh
)

var sensitivityMultiplier = map[Sensitivity]float32{
	SensitivityNormal:   1.0,
	SensitivityElevated: 0.8,
	SensitivityHigh:     0.6,
}

func (s Sensitivity) Apply(p Policy) Policy {
	factor, ok := sensitivityMultiplier[s]
	if !ok {
		return p
	}
	p.SoftThreshold = scale(p.SoftThreshold, factor)
	p.HardThreshold = scale(p.HardThreshold, factor)
	p.UnattributedThreshold = scale(p.UnattributedThreshold, factor)
	return p
}

func (s Sensitivity) String() string {
	switch s {
	case SensitivityNormal:
		return "normal"
	case SensitivityElevated:
		return "elevated"
	case SensitivityHigh:
		return "high"
	default:
		return "unknown"
	}
}

func ParseSensitivity(s string) Sensitivity {
	switch s {
	case "elevated":
		return SensitivityElevated
	case "high":
		return SensitivityHigh
	default:
		return SensitivityNormal
	}
}
