package serialmux

import "io"

// SerialPorter is the minimal interface the mux needs from a port, so tests
// can run without hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}
