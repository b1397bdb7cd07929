// Package field resolves dot-separated paths over a value.Value record,
// producing a flat list of stringified terminals with arrays auto-flattened.
package field

import (
	"strings"

	"github.com/staticql/staticql/internal/value"
)

// Resolve descends record segment by segment along dotPath. At each step,
// if the current value is an array, the remaining path is mapped across
// every element and the results flattened. Nulls and missing keys drop
// silently. The result is always a string list; missing paths yield a nil
// (zero-length) slice.
func Resolve(record value.Value, dotPath string) []string {
	segments := strings.Split(dotPath, ".")
	return resolveSegments(record, segments)
}

func resolveSegments(v value.Value, segments []string) []string {
	if arr, ok := v.Array(); ok {
		var out []string
		for _, elem := range arr {
			out = append(out, resolveSegments(elem, segments)...)
		}
		return out
	}

	if len(segments) == 0 {
		if v.IsNull() {
			return nil
		}
		return []string{value.Stringify(v)}
	}

	next, ok := v.Field(segments[0])
	if !ok || next.IsNull() {
		return nil
	}
	return resolveSegments(next, segments[1:])
}
