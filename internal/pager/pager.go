// Package pager implements the opaque cursor codec and the forward/backward
// page-slicing rules, with the cursor payload carrying {slug, order} so
// pages stay stable under re-sorting by a non-slug key. Cursors never
// expire: a static index has no notion of a query going stale.
package pager

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/staticql/staticql/internal/indexcodec"
	"github.com/staticql/staticql/internal/staticqlerr"
)

// Direction selects which side of the matched sequence a cursor anchors.
type Direction string

const (
	After  Direction = "after"
	Before Direction = "before"
)

// Cursor is the decoded form of an opaque page cursor: the anchor record's
// slug and its value at the order-by field.
type Cursor struct {
	Slug  string `json:"slug"`
	Order string `json:"order"`
}

// Encode serializes c as Base64(JSON), URL-safe.
func Encode(c Cursor) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// Decode parses an opaque cursor string. Both URL-safe and standard Base64
// alphabets are accepted, matching real-world cursors copied through
// URL-unsafe contexts.
func Decode(s string) (Cursor, error) {
	data, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.StdEncoding.DecodeString(s)
		if err != nil {
			return Cursor{}, &staticqlerr.InvalidCursorError{Reason: "not valid base64"}
		}
	}
	var c Cursor
	if jsonErr := json.Unmarshal(data, &c); jsonErr != nil {
		return Cursor{}, &staticqlerr.InvalidCursorError{Reason: "not valid cursor JSON"}
	}
	if c.Slug == "" {
		return Cursor{}, &staticqlerr.InvalidCursorError{Reason: "cursor missing slug"}
	}
	return c, nil
}

// GetStartIdx locates the line matching cursor within an already-sorted
// candidate list, identified by slug membership in ref and agreement on the
// order-by field's value. Returns 0 when cursor is nil (scan starts at the
// top); an invalid (non-locating) cursor is an error.
func GetStartIdx(lines []indexcodec.Line, cursor *Cursor, orderField string) (int, error) {
	if cursor == nil {
		return 0, nil
	}
	for i, l := range lines {
		fields, ok := l.Ref[cursor.Slug]
		if !ok {
			continue
		}
		if containsValue(fields[orderField], cursor.Order) {
			return i, nil
		}
	}
	return -1, &staticqlerr.InvalidCursorError{Reason: fmt.Sprintf("cursor does not locate a line for slug %q", cursor.Slug)}
}

func containsValue(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

// GetPageSlice implements the slicing rule: forward pages start
// just after the cursor (or at the top when absent); backward pages end at
// the cursor and look back size entries.
func GetPageSlice(lines []indexcodec.Line, start, size int, direction Direction, hasCursor bool) []indexcodec.Line {
	n := len(lines)
	switch direction {
	case Before:
		hi := start
		lo := hi - size
		if lo < 0 {
			lo = 0
		}
		if hi > n {
			hi = n
		}
		if lo > hi {
			lo = hi
		}
		return lines[lo:hi]
	default: // After
		lo := start
		if hasCursor {
			lo = start + 1
		}
		hi := lo + size
		if hi > n {
			hi = n
		}
		if lo > n {
			lo = n
		}
		return lines[lo:hi]
	}
}

// PageInfo mirrors a cursor-paginated response envelope.
type PageInfo struct {
	HasNextPage     bool
	HasPreviousPage bool
	StartCursor     string
	EndCursor       string
}

// CreatePageInfo fills hasNext/hasPrevious and encodes the
// start/end cursors from the first and last page entries (empty strings for
// an empty page). hasCursor must be the same flag passed to GetPageSlice:
// start is 0 both when a cursor anchors the very first line and when no
// cursor was supplied at all, and only hasCursor disambiguates the two for
// the forward hasPrevious check.
func CreatePageInfo(lines []indexcodec.Line, page []indexcodec.Line, start, size int, direction Direction, hasCursor bool, orderField string) (PageInfo, error) {
	total := len(lines)
	info := PageInfo{}

	switch direction {
	case Before:
		info.HasNextPage = start < total
		info.HasPreviousPage = max(0, start-size) > 0
	default:
		info.HasNextPage = start+1+size < total
		info.HasPreviousPage = hasCursor && start+1 > 0
	}

	if len(page) == 0 {
		return info, nil
	}

	startCursor, err := cursorFor(page[0], orderField)
	if err != nil {
		return PageInfo{}, err
	}
	endCursor, err := cursorFor(page[len(page)-1], orderField)
	if err != nil {
		return PageInfo{}, err
	}
	info.StartCursor = startCursor
	info.EndCursor = endCursor
	return info, nil
}

func cursorFor(line indexcodec.Line, orderField string) (string, error) {
	for slug, fields := range line.Ref {
		values := fields[orderField]
		val := ""
		if len(values) > 0 {
			val = values[0]
		}
		return Encode(Cursor{Slug: slug, Order: val})
	}
	return "", &staticqlerr.InconsistentIndexError{Reason: "index line has no ref entries"}
}
