package serialmux

import (
	"context"
)

// LineHandler consumes one NMEA sentence.
type LineHandler func(line string)

// Forward subscribes to m and passes each parametric sentence to h until ctx
// is done or the mux closes. Other lines are counted and skipped.
func Forward(ctx context.Context, m LineMux, h LineHandler) (handled, skipped int) {
	id, ch := m.Subscribe()
	defer m.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return handled, skipped
		case line, ok := <-ch:
			if !ok {
				return handled, skipped
			}
			switch ClassifyLine(line) {
			case EventTypeSentence:
				h(line)
				handled++
			case EventTypeUnknown:
				logf("unrecognised line: %q", line)
				skipped++
			default:
				skipped++
			}
		}
	}
}
