package serialmux

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestSerialMux_SubscribeUnique(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())

	id1, ch1 := mux.Subscribe()
	id2, ch2 := mux.Subscribe()
	if id1 == "" || id2 == "" || id1 == id2 {
		t.Fatalf("expected distinct non-empty ids, got %q and %q", id1, id2)
	}
	if ch1 == nil || ch2 == nil {
		t.Fatal("Subscribe returned nil channel")
	}

	mux.Unsubscribe(id1)
	if _, ok := <-ch1; ok {
		t.Error("expected channel to be closed after Unsubscribe")
	}
	// Unknown ids are ignored.
	mux.Unsubscribe("non-existent-id")
}

func TestSerialMux_WriteLine(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	for _, line := range []string{"$IIVHW,,T,,M,5.0,N,9.3,K*7E", "$IIVDR,,T,,M,0.5,N*3B\r\n"} {
		if err := mux.WriteLine(line); err != nil {
			t.Fatalf("WriteLine(%q) error = %v", line, err)
		}
	}
	want := "$IIVHW,,T,,M,5.0,N,9.3,K*7E\r\n$IIVDR,,T,,M,0.5,N*3B\r\n"
	if got := port.WrittenData(); got != want {
		t.Errorf("written = %q, want %q", got, want)
	}
}

func TestSerialMux_WriteLineErrors(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	port.WriteError = errors.New("boom")
	if err := mux.WriteLine("$X"); err == nil {
		t.Error("expected write error")
	}

	port.ShortWrite = true
	if err := mux.WriteLine("$X"); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("expected ErrWriteFailed, got %v", err)
	}
}

func TestSerialMux_MonitorFansOut(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	_, a := mux.Subscribe()
	_, b := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- mux.Monitor(ctx) }()

	port.AddReadData("$HCHDT,123.4,T*2B\r\n\r\n$IIVHW,,,,,5.1,N,,*1A\r\n")

	for _, ch := range []chan string{a, b} {
		for _, want := range []string{"$HCHDT,123.4,T*2B", "$IIVHW,,,,,5.1,N,,*1A"} {
			select {
			case got := <-ch:
				if got != want {
					t.Errorf("got %q, want %q", got, want)
				}
			case <-time.After(time.Second):
				t.Fatalf("timeout waiting for %q", want)
			}
		}
	}

	port.Close()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Monitor returned %v at EOF, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Monitor did not return after port closed")
	}
}

func TestSerialMux_MonitorCancel(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- mux.Monitor(ctx) }()

	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Monitor returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Monitor did not return after cancel")
	}
}

func TestSerialMux_SlowSubscriberDrops(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	mux.Subscribe()

	var sb strings.Builder
	for i := 0; i < subscriberBuffer+10; i++ {
		sb.WriteString("$GPVTG,,T,,M,1.0,N,,K*00\n")
	}
	port.AddReadData(sb.String())
	port.Close()

	if err := mux.Monitor(context.Background()); err != nil {
		t.Fatalf("Monitor error = %v", err)
	}
	if got := mux.Dropped(); got != 10 {
		t.Errorf("Dropped() = %d, want 10", got)
	}
}

func TestSerialMux_CloseClosesSubscribers(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	if err := mux.Close(); err != nil {
		t.Fatalf("Close error = %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("expected subscriber channel to be closed")
	}
	if err := mux.WriteLine("$X"); err == nil {
		t.Error("expected write on closed port to fail")
	}
}

func TestAdminRoutes_Write(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	h := newDebugMux(mux)

	form := url.Values{"sentence": {"$IIVHW,,T,,M,5.0,N,9.3,K*7E"}}
	rec := serve(h, "POST", "/debug/nmea-write", form)
	if rec.Code != 200 {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}
	if !strings.HasPrefix(port.WrittenData(), "$IIVHW") {
		t.Errorf("sentence not written: %q", port.WrittenData())
	}

	if rec := serve(h, "POST", "/debug/nmea-write", url.Values{}); rec.Code != 400 {
		t.Errorf("missing sentence status = %d, want 400", rec.Code)
	}
	if rec := serve(h, "GET", "/debug/nmea-write", nil); rec.Code != 405 {
		t.Errorf("GET status = %d, want 405", rec.Code)
	}
}

func TestAdminRoutes_Tail(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	h := newDebugMux(mux)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	srv := httptest.NewServer(h)
	defer srv.Close()

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer reqCancel()
	req, _ := http.NewRequestWithContext(reqCtx, "GET", srv.URL+"/debug/nmea-tail", nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("tail request failed: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	// Wait for the handler to subscribe before feeding data.
	buf := make([]byte, 256)
	n, _ := resp.Body.Read(buf)
	if !strings.Contains(string(buf[:n]), ": ping") {
		t.Fatalf("expected initial ping, got %q", buf[:n])
	}
	port.AddReadData("$HCHDT,10.0,T*1C\n")

	var got strings.Builder
	for !strings.Contains(got.String(), "data: $HCHDT,10.0,T*1C") {
		n, err := resp.Body.Read(buf)
		if err != nil {
			t.Fatalf("reading tail: %v (got %q)", err, got.String())
		}
		got.Write(buf[:n])
	}
}

func newDebugMux(m LineMux) *http.ServeMux {
	mux := http.NewServeMux()
	m.AttachAdminRoutes(mux)
	return mux
}

func serve(h http.Handler, method, path string, form url.Values) *httptest.ResponseRecorder {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:4321"
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
