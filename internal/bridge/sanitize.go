package bridge

import (
	"regexp"
	"strings"
)

// maxMessageLen caps sanitized messages so a hostile backend cannot use
// error text as a side channel back to the agent.
const maxMessageLen = 512

// pathPattern matches absolute filesystem paths, Unix and Windows alike.
var pathPattern = regexp.MustCompile(`(?:[A-Za-z]:)?[/\\][\w.\-~]+(?:[/\\][\w.\-~]+)+`)

// Sanitize reduces an error message to something safe to hand a script:
// first line only, filesystem paths redacted, length capped. Applied
// unconditionally; there is no verbose mode that skips it.
func Sanitize(msg string) string {
	if i := strings.IndexAny(msg, "\r\n"); i >= 0 {
		msg = msg[:i]
	}
	msg = pathPattern.ReplaceAllString(msg, "[path]")
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = "tool call failed"
	}
	if len(msg) > maxMessageLen {
		msg = msg[:maxMessageLen] + "..."
	}
	return msg
}
