package channel

import "strings"

// Platform message size limits.
const (
	DiscordLimit  = 1900
	TelegramLimit = 4000
)

// SplitText splits s into chunks of at most max bytes, preferring to break at
// the last newline before the limit. A hard cut happens only when a chunk has
// no newline at all.
func SplitText(s string, max int) []string {
	if max <= 0 || len(s) <= max {
		return []string{s}
	}

	var parts []string
	for len(s) > max {
		cut := strings.LastIndex(s[:max], "\n")
		if cut <= 0 {
			parts = append(parts, s[:max])
			s = s[max:]
			continue
		}
		parts = append(parts, s[:cut])
		s = s[cut+1:]
	}
	if len(s) > 0 {
		parts = append(parts, s)
	}
	return parts
}
