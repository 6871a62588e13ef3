package detectors

import (
	"strings"
	"sync"

	"github.com/gobwas/glob"

	"github.com/NexusBot-official/Nexus/internal/logging"
)

// NameDetector matches channel, role and webhook names against glob
// patterns. Compiled pattern sets are cached since every guild usually shares
// the defaults.
type NameDetector struct {
	mu    sync.RWMutex
	cache map[string][]glob.Glob
}

func NewNameDetector() *NameDetector {
	return &NameDetector{
		cache: make(map[string][]glob.Glob),
	}
}

func (d *NameDetector) compiled(patterns []string) []glob.Glob {
	key := strings.Join(patterns, "\x00")

	d.mu.RLock()
	globs, ok := d.cache[key]
	d.mu.RUnlock()
	if ok {
		return globs
	}

	globs = make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			logging.Warn("[DETECTOR] Ignoring invalid name pattern %q: %v", p, err)
			continue
		}
		globs = append(globs, g)
	}

	d.mu.Lock()
	d.cache[key] = globs
	d.mu.Unlock()
	return globs
}

// Match returns the first pattern matching name, case-insensitively.
func (d *NameDetector) Match(name string, patterns []string) (string, bool) {
	if name == "" || len(patterns) == 0 {
		return "", false
	}

	lower := strings.ToLower(name)
	globs := d.compiled(patterns)
	for i, g := range globs {
		if g.Match(lower) {
			return patternAt(patterns, globs, i), true
		}
	}
	return "", false
}

// patternAt maps a compiled index back to its source pattern, skipping the
// ones that failed to compile.
func patternAt(patterns []string, globs []glob.Glob, i int) string {
	if len(globs) == len(patterns) {
		return patterns[i]
	}
	n := -1
	for _, p := range patterns {
		if _, err := glob.Compile(strings.ToLower(p)); err != nil {
			continue
		}
		n++
		if n == i {
			return p
		}
	}
	return ""
}

// Validate reports the first pattern that does not compile.
func Validate(patterns []string) error {
	for _, p := range patterns {
		if _, err := glob.Compile(strings.ToLower(p)); err != nil {
			return err
		}
	}
	return nil
}
