package serialmux

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.bug.st/serial"
)

func TestPortOptions_NormalizeDefaults(t *testing.T) {
	got, err := PortOptions{}.Normalize()
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	want := PortOptions{BaudRate: 4800, DataBits: 8, StopBits: 1, Parity: "N"}
	if got != want {
		t.Errorf("Normalize() = %+v, want %+v", got, want)
	}
}

func TestPortOptions_NormalizeInvalid(t *testing.T) {
	for name, opts := range map[string]PortOptions{
		"data bits": {DataBits: 9},
		"stop bits": {StopBits: 3},
		"parity":    {Parity: "mark"},
	} {
		if _, err := opts.Normalize(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestPortOptions_EqualAndMode(t *testing.T) {
	if !(PortOptions{Parity: "none"}).Equal(PortOptions{BaudRate: 4800, Parity: "N"}) {
		t.Error("expected defaults to compare equal")
	}
	if (PortOptions{BaudRate: 38400}).Equal(PortOptions{}) {
		t.Error("different baud rates compared equal")
	}

	mode, err := PortOptions{BaudRate: 38400, StopBits: 2, Parity: "even"}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode() error = %v", err)
	}
	if mode.BaudRate != 38400 || mode.StopBits != serial.TwoStopBits || mode.Parity != serial.EvenParity {
		t.Errorf("unexpected mode %+v", mode)
	}
}

func TestClassifyLine(t *testing.T) {
	cases := []struct{ line, want string }{
		{"$HCHDT,123.4,T*2B", EventTypeSentence},
		{"$PGRME,15.0,M,45.0,M*00", EventTypeProprietary},
		{"!AIVDM,1,1,,A,13aG*00", EventTypeEncapsulated},
		{"garbage", EventTypeUnknown},
		{"$GP", EventTypeUnknown},
	}
	for _, tc := range cases {
		if got := ClassifyLine(tc.line); got != tc.want {
			t.Errorf("ClassifyLine(%q) = %q, want %q", tc.line, got, tc.want)
		}
	}
}

func TestForward(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	var got []string
	done := make(chan struct{})
	var handled, skipped int
	go func() {
		handled, skipped = Forward(context.Background(), mux, func(line string) { got = append(got, line) })
		close(done)
	}()

	// Let Forward subscribe before the port produces anything.
	time.Sleep(20 * time.Millisecond)
	port.AddReadData("$HCHDT,1.0,T*00\n!AIVDM,x\nnoise\n$PFOO,1\n$IIVHW,,,,,5,N,,*00\n")
	port.Close()
	if err := mux.Monitor(context.Background()); err != nil {
		t.Fatalf("Monitor error = %v", err)
	}
	mux.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Forward did not return after Close")
	}
	if handled != 2 || skipped != 3 {
		t.Errorf("handled=%d skipped=%d, want 2 and 3", handled, skipped)
	}
	if len(got) != 2 || !strings.HasPrefix(got[1], "$IIVHW") {
		t.Errorf("forwarded %q", got)
	}
}

func TestMockSerialMux(t *testing.T) {
	mux := NewMockSerialMux([][]string{{"$HCHDT,1.0,T*00", "$IIVHW,,,,,5,N,,*00"}}, 5*time.Millisecond)
	_, ch := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	for i, want := range []string{"$HCHDT,1.0,T*00", "$IIVHW,,,,,5,N,,*00", "$HCHDT,1.0,T*00"} {
		select {
		case got := <-ch:
			if got != want {
				t.Errorf("line %d = %q, want %q", i, got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for line %d", i)
		}
	}

	if err := mux.WriteLine("$IIVDR,,T,,M,0.5,N*00"); err != nil {
		t.Fatalf("WriteLine error = %v", err)
	}
	if !strings.Contains(mux.port.Written(), "$IIVDR") {
		t.Errorf("mock port did not record write: %q", mux.port.Written())
	}
	if err := mux.Close(); err != nil {
		t.Errorf("Close error = %v", err)
	}
}

func TestDisabledSerialMux(t *testing.T) {
	d := NewDisabledSerialMux()
	id, ch := d.Subscribe()
	d.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed on unsubscribe")
	}

	_, ch2 := d.Subscribe()
	if err := d.WriteLine("$X"); err != nil || d.Written() != 1 {
		t.Errorf("WriteLine err=%v written=%d", err, d.Written())
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close error = %v", err)
	}
	if _, ok := <-ch2; ok {
		t.Error("expected channel to be closed on Close")
	}
	// Subscribing after Close yields a closed channel.
	_, ch3 := d.Subscribe()
	if _, ok := <-ch3; ok {
		t.Error("expected closed channel after Close")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Monitor(ctx); err == nil {
		t.Error("expected context error from Monitor")
	}
}
