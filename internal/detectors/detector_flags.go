package detectors

import "math/bits"

// Flags raised by the heuristic classifier on a single event.
const (
	FlagInstantName uint32 = 1 << iota
	FlagSuspiciousName
	FlagCriticalPermission
	FlagBotAdd
	FlagDestructive
)

var flagNames = []struct {
	flag uint32
	name string
}{
	{FlagInstantName, "instant_name"},
	{FlagSuspiciousName, "suspicious_name"},
	{FlagCriticalPermission, "critical_permission"},
	{FlagBotAdd, "bot_add"},
	{FlagDestructive, "destructive"},
}

func HasFlag(flags, flag uint32) bool {
	return flags&flag != 0
}

func CountFlags(flags uint32) int {
	return bits.OnesCount32(flags)
}

func FlagNames(flags uint32) []string {
	var names []string
	for _, f := range flagNames {
		if flags&f.flag != 0 {
			names = append(names, f.name)
		}
	}
	return names
}
