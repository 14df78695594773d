package memory_graph //nolint:revive // var-naming: using underscores for domain clarity

import (
	"fmt"
	"strings"
	"time"
)

// FormatRecall renders one "//Memory from ..." line per record.
func FormatRecall(records []*Record, now time.Time) string {
	lines := make([]string, 0, len(records))
	for _, r := range records {
		lines = append(lines, fmt.Sprintf("//Memory from %s: %s", Relative(r.Time, now), r.Message))
	}
	return strings.Join(lines, "\n")
}

// CausalHeader introduces the causal snippets for other.
func CausalHeader(other string) string {
	return fmt.Sprintf("//The last few times %s said something like that, this is how I answered and how %s reacted. "+
		"Reactions worth repeating should shape what I say now; events mentioned here are already in the past.", other, other)
}

// FormatCausal renders exchanges under CausalHeader. No exchanges yields "".
func FormatCausal(exchanges []Exchange, other string, now time.Time) string {
	if len(exchanges) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(CausalHeader(other))
	b.WriteString("\n")
	for _, ex := range exchanges {
		said := Relative(ex.Statement.Time, now)
		fmt.Fprintf(&b, "//%s said, %s: %s\n", other, said, ex.Statement.Message)
		if ex.Reply == nil {
			continue
		}
		replied := Relative(ex.Reply.Time, now)
		fmt.Fprintf(&b, "//Memory from %s: %s\n", replied, ex.Reply.Message)
		if ex.Reaction == nil {
			continue
		}
		fmt.Fprintf(&b, "//Response to memory from %s, stated %s: %s\n", replied, Relative(ex.Reaction.Time, now), ex.Reaction.Message)
	}
	return strings.TrimRight(b.String(), "\n")
}
