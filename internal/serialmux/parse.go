package serialmux

import "strings"

const (
	EventTypeSentence     = "sentence"
	EventTypeEncapsulated = "encapsulated"
	EventTypeProprietary  = "proprietary"
	EventTypeUnknown      = "unknown"
)

// ClassifyLine returns the kind of NMEA 0183 line: a parametric $ sentence,
// an encapsulated ! sentence (AIS), a proprietary $P sentence or anything
// else.
func ClassifyLine(line string) string {
	switch {
	case strings.HasPrefix(line, "$P"):
		return EventTypeProprietary
	case strings.HasPrefix(line, "$") && len(line) >= 6:
		return EventTypeSentence
	case strings.HasPrefix(line, "!"):
		return EventTypeEncapsulated
	default:
		return EventTypeUnknown
	}
}
