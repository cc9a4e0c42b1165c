// Package serialmux fans lines read from one NMEA 0183 port out to any number
// of subscribers and serialises writes back to the same port.
package serialmux

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"tailscale.com/tsweb"

	"github.com/banshee-data/speedcurrent/internal/monitoring"
)

var ErrWriteFailed = fmt.Errorf("failed to write to serial port")

var logf = monitoring.Component("serialmux")

// subscriberBuffer is how many lines a slow subscriber may fall behind
// before lines are dropped for it.
const subscriberBuffer = 64

// SerialMux multiplexes a single port between many readers.
type SerialMux[T SerialPorter] struct {
	port         T
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	writeMu      sync.Mutex
	closing      bool
	closingMu    sync.Mutex
	dropped      int
}

// LineMux is the behaviour shared by the real, mock and disabled muxes.
type LineMux interface {
	// Subscribe creates a channel receiving every line read from the port.
	// The id identifies it to Unsubscribe.
	Subscribe() (string, chan string)
	// Unsubscribe closes and removes a subscriber channel.
	Unsubscribe(string)
	// WriteLine writes one line, terminated with CRLF, to the port.
	WriteLine(string) error
	// Monitor reads lines until ctx is done or the port fails.
	Monitor(context.Context) error
	// Close closes all subscribers and the port.
	Close() error
	// AttachAdminRoutes mounts tail and write endpoints under /debug/.
	AttachAdminRoutes(*http.ServeMux)
}

// NewSerialMux wraps port.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:        port,
		subscribers: make(map[string]chan string),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, subscriberBuffer)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// WriteLine writes line to the port with a CRLF terminator.
func (s *SerialMux[T]) WriteLine(line string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	line = strings.TrimRight(line, "\r\n") + "\r\n"
	n, err := io.WriteString(s.port, line)
	if err != nil {
		return err
	}
	if n != len(line) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor reads lines from the port and hands them to every subscriber.
// A subscriber whose buffer is full misses the line.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking Scan runs on its own goroutine so that cancellation is
	// noticed without waiting for the next line.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- strings.TrimRight(scan.Text(), "\r"):
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return err
				default:
					return nil
				}
			}
			if line == "" {
				continue
			}
			s.closingMu.Lock()
			if s.closing {
				s.closingMu.Unlock()
				return nil
			}
			s.closingMu.Unlock()

			s.subscriberMu.Lock()
			for _, ch := range s.subscribers {
				select {
				case ch <- line:
				default:
					s.dropped++
				}
			}
			s.subscriberMu.Unlock()
		}
	}
}

// Dropped is how many line deliveries were skipped for slow subscribers.
func (s *SerialMux[T]) Dropped() int {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	return s.dropped
}

func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	attachAdminRoutes(mux, s)
}

// attachAdminRoutes serves a live tail of the port as server-sent events and
// a POST endpoint that writes one sentence to it.
func attachAdminRoutes(mux *http.ServeMux, m LineMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleSilentFunc("nmea-write", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		line := strings.TrimSpace(r.FormValue("sentence"))
		if line == "" {
			http.Error(w, "Missing sentence", http.StatusBadRequest)
			return
		}
		if err := m.WriteLine(line); err != nil {
			http.Error(w, "Failed to write sentence", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "Wrote %q to serial port", line)
	})

	debug.HandleFunc("nmea-tail", "live tail of NMEA sentences (server-sent events)", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := m.Subscribe()
		defer m.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
