// Package timestamp holds the last-sync timestamp conventions shared by the
// scheduler (which seeds marker files) and the query controller (which feeds
// marker values into delta queries).
package timestamp

import (
	"regexp"
	"strings"
	"time"
)

// MarkerLayout is the layout of last_index_time values, e.g. 2016-03-20 22:14:56
const MarkerLayout = "2006-01-02 15:04:05"

var datePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}\s\d{2}:\d{2}:\d{2}`)

// Normalize rewrites every "YYYY-MM-DD HH:MM:SS" occurrence in query into the
// ISO-8601 UTC form "YYYY-MM-DDTHH:MM:SSZ". Text outside the matches is kept
// as is. It must be applied once per query build, not to its own output.
func Normalize(query string) string {
	return datePattern.ReplaceAllStringFunc(query, func(match string) string {
		// the separator is the only whitespace in a match, at a fixed offset
		return match[:10] + "T" + match[11:] + "Z"
	})
}

// FormatMarker renders t in the marker layout.
func FormatMarker(t time.Time) string {
	return t.Format(MarkerLayout)
}

// EscapeMarker escapes colons the way properties files persist them:
// 2012-05-21 20:56:40 becomes 2012-05-21 20\:56\:40
func EscapeMarker(value string) string {
	return strings.ReplaceAll(value, ":", `\:`)
}
