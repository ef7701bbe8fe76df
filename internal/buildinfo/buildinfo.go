// Package buildinfo exposes the version metadata stamped into rox binaries.
package buildinfo

import "strings"

// Version metadata is injected at build time via ldflags.
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Summary returns a human-readable version summary string, e.g. "v1.2.0 (abc123 2025-01-02)".
func Summary() string {
	version := strings.TrimSpace(Version)
	if version == "" {
		version = "dev"
	}

	var extra []string
	if Commit != "" {
		extra = append(extra, Commit)
	}
	if Date != "" {
		extra = append(extra, Date)
	}
	if len(extra) == 0 {
		return version
	}
	return version + " (" + strings.Join(extra, " ") + ")"
}
