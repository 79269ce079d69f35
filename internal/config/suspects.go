package config

import "path/filepath"

// IsSuspect reports whether command matches any of the configured suspect
// patterns (shell-style globs, e.g. "*chrome*helper*"). This never feeds
// scoring or forensics culprit selection — it is a pure display annotation
// that watch/status overlay on top of the scorer's output.
func (c Config) IsSuspect(command string) bool {
	for _, pattern := range c.Suspects.Patterns {
		if matched, err := filepath.Match(pattern, command); err == nil && matched {
			return true
		}
	}
	return false
}
