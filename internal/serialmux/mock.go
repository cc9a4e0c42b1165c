package serialmux

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"
)

// MockSerialPort replays fixture lines as if a talker were sending them and
// records everything written back.
type MockSerialPort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer
	done    chan struct{}
	once    sync.Once
}

func (m *MockSerialPort) Read(p []byte) (int, error) { return m.r.Read(p) }

func (m *MockSerialPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written.Write(p)
}

// Close stops the generator and ends the read side.
func (m *MockSerialPort) Close() error {
	m.once.Do(func() { close(m.done) })
	return m.r.Close()
}

// Written returns everything written to the port.
func (m *MockSerialPort) Written() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written.String()
}

// NewMockSerialMux returns a mux whose port emits one batch of lines every
// interval, cycling through batches until closed. A batch is the set of
// sentences a talker sends together, such as heading, log and GPS fixes.
func NewMockSerialMux(batches [][]string, interval time.Duration) *SerialMux[*MockSerialPort] {
	r, w := io.Pipe()
	port := &MockSerialPort{r: r, w: w, done: make(chan struct{})}

	go func() {
		defer w.Close()
		if len(batches) == 0 {
			<-port.done
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for i := 0; ; i = (i + 1) % len(batches) {
			select {
			case <-port.done:
				return
			case <-ticker.C:
			}
			for _, line := range batches[i] {
				if _, err := io.WriteString(w, line+"\r\n"); err != nil {
					return
				}
			}
		}
	}()

	return NewSerialMux(port)
}

// TestableSerialPort is a SerialPorter with scripted reads and captured
// writes. Reads block until data is added or the port is closed.
type TestableSerialPort struct {
	mu sync.Mutex

	readBuffer  bytes.Buffer
	writeBuffer bytes.Buffer
	readCond    *sync.Cond

	// WriteError is returned by the next Write call if set.
	WriteError error
	// ShortWrite makes Write report one byte fewer than it was given.
	ShortWrite bool
	closed     bool
}

// NewTestableSerialPort creates an empty port.
func NewTestableSerialPort() *TestableSerialPort {
	tsp := &TestableSerialPort{}
	tsp.readCond = sync.NewCond(&tsp.mu)
	return tsp
}

func (t *TestableSerialPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for !t.closed && t.readBuffer.Len() == 0 {
		t.readCond.Wait()
	}
	if t.readBuffer.Len() == 0 {
		return 0, io.EOF
	}
	return t.readBuffer.Read(p)
}

func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, errors.New("serial port closed")
	}
	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}
	n, err := t.writeBuffer.Write(p)
	if t.ShortWrite && n > 0 {
		n--
	}
	return n, err
}

// Close ends pending reads once the buffered data is drained.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.readCond.Broadcast()
	return nil
}

// AddReadData queues data for subsequent reads.
func (t *TestableSerialPort) AddReadData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readBuffer.WriteString(data)
	t.readCond.Broadcast()
}

// WrittenData returns everything written to the port.
func (t *TestableSerialPort) WrittenData() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writeBuffer.String()
}
