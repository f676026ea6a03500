package guard

import (
	"fmt"
	"sort"
	"strings"
)

// Violation is the failure signal guards raise when generated content
// breaks an invariant. It is an error value carrying enough structured
// evidence to reconstruct why the guard failed, never just a boolean.
type Violation struct {
	// GuardName identifies the guard that raised the violation.
	GuardName string
	// Message is the human-readable summary.
	Message string
	// Flags maps violation types to structured detail.
	Flags map[string]any
	// Attempts is how many times the check ran before the violation was
	// surfaced (set by the retry controller; 0 means no retry involved).
	Attempts int
	// History holds the per-attempt messages accumulated by the retry
	// controller, oldest first.
	History []string
}

// NewViolation creates a violation for the named guard.
func NewViolation(guardName, message string, flags map[string]any) *Violation {
	if flags == nil {
		flags = map[string]any{}
	}
	return &Violation{GuardName: guardName, Message: message, Flags: flags}
}

// Error renders "[<guard>] <message>" plus the flag keys, matching the
// line format pipeline logs use.
func (v *Violation) Error() string {
	var b strings.Builder
	if v.GuardName != "" {
		fmt.Fprintf(&b, "[%s] ", v.GuardName)
	}
	b.WriteString(v.Message)
	if len(v.Flags) > 0 {
		keys := make([]string, 0, len(v.Flags))
		for k := range v.Flags {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(&b, " (flags: %s)", strings.Join(keys, ", "))
	}
	return b.String()
}
