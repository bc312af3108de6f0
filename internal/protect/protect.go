// Package protect rejects entries whose basenames denote OS-critical
// locations. Matching is case-insensitive and side-effect free.
package protect

import (
	"regexp"

	"github.com/lyallcooper/reclaim/internal/types"
)

var patterns = []*regexp.Regexp{
	// Windows
	regexp.MustCompile(`(?i)^windows$`),
	regexp.MustCompile(`(?i)^program files`),
	regexp.MustCompile(`(?i)^programdata$`),
	regexp.MustCompile(`(?i)^\$recycle\.bin$`),
	regexp.MustCompile(`(?i)^system volume information$`),
	regexp.MustCompile(`(?i)^recovery$`),
	regexp.MustCompile(`(?i)^boot$`),
	regexp.MustCompile(`(?i)^users$`),
	regexp.MustCompile(`(?i)^documents and settings$`),
	regexp.MustCompile(`(?i)^pagefile\.sys$`),
	regexp.MustCompile(`(?i)^hiberfil\.sys$`),
	regexp.MustCompile(`(?i)^swapfile\.sys$`),

	// POSIX roots
	regexp.MustCompile(`(?i)^(proc|sys|dev|etc|bin|sbin|lib|lib64|usr|efi|home)$`),
	regexp.MustCompile(`^lost\+found$`),
}

// IsProtected reports whether name matches a protected pattern.
func IsProtected(name string) bool {
	for _, p := range patterns {
		if p.MatchString(name) {
			return true
		}
	}
	return false
}

// Filter returns the entries that are not protected, preserving order.
func Filter(entries []types.Entry) []types.Entry {
	out := make([]types.Entry, 0, len(entries))
	for _, e := range entries {
		if IsProtected(e.Name) {
			continue
		}
		out = append(out, e)
	}
	return out
}
