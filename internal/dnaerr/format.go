package dnaerr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Format renders err for an operator. The code and suggestion are always
// present. Category, severity, stage, timestamp, details and the full cause
// chain are only included when detailed is true.
func Format(err error, detailed bool) string {
	e := From(err)
	if e == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Error [%s]: %s\n", e.Code, e.Message)
	if e.Suggestion != "" {
		fmt.Fprintf(&b, "Suggestion: %s\n", e.Suggestion)
	}
	if !detailed {
		return b.String()
	}

	fmt.Fprintf(&b, "Category: %s\n", e.Category)
	fmt.Fprintf(&b, "Severity: %s\n", e.Severity)
	if e.Stage != "" {
		fmt.Fprintf(&b, "Stage: %s\n", e.Stage)
	}
	fmt.Fprintf(&b, "Time: %s\n", e.Timestamp.Format(time.RFC3339))

	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("Details:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %v\n", k, e.Details[k])
		}
	}

	if chain := causeChain(e.Err); len(chain) > 0 {
		b.WriteString("Caused by:\n")
		for i, c := range chain {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, c)
		}
	}
	return b.String()
}

// causeChain lists the messages of err and each error it wraps.
func causeChain(err error) []string {
	var chain []string
	for err != nil {
		chain = append(chain, err.Error())
		err = errors.Unwrap(err)
	}
	return chain
}
