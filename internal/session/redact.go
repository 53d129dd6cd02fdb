package session

import (
	"sort"
	"strings"
)

const redacted = "********"

// scrub replaces every occurrence of the given secrets in msg. Longer secrets
// are replaced first so a secret that contains another is fully removed.
func scrub(msg string, secrets ...string) string {
	ordered := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if s != "" {
			ordered = append(ordered, s)
		}
	}
	if len(ordered) == 0 {
		return msg
	}
	sort.Slice(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })

	for _, s := range ordered {
		msg = strings.ReplaceAll(msg, s, redacted)
	}
	return msg
}
