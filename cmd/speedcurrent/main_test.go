package main

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/speedcurrent/internal/config"
	"github.com/banshee-data/speedcurrent/internal/fusion"
	"github.com/banshee-data/speedcurrent/internal/nmea"
	"github.com/banshee-data/speedcurrent/internal/sensor"
	"github.com/banshee-data/speedcurrent/internal/serialmux"
)

type collectSamples struct {
	samples []sensor.Sample
}

func (c *collectSamples) HandleSample(ctx context.Context, s sensor.Sample) bool {
	c.samples = append(c.samples, s)
	return true
}

func TestFlagDefaults(t *testing.T) {
	if *listen != ":8080" {
		t.Errorf("listen default = %q", *listen)
	}
	if *baudRate != serialmux.DefaultBaudRate {
		t.Errorf("baud default = %d, want %d", *baudRate, serialmux.DefaultBaudRate)
	}
	if *pcapPort != nmea.DefaultUDPPort {
		t.Errorf("pcap-port default = %d, want %d", *pcapPort, nmea.DefaultUDPPort)
	}
	if *configFile != "speedcurrent.json" {
		t.Errorf("config default = %q", *configFile)
	}
}

func TestHandleLine(t *testing.T) {
	ts := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	c := &collectSamples{}

	handleLine(context.Background(), c, "$HEHDG,46.3,,,2.5,W*0B", ts)
	if len(c.samples) != 2 {
		t.Fatalf("got %d samples, want variation and heading", len(c.samples))
	}
	if c.samples[0].Kind != sensor.MagneticVariation || c.samples[1].Kind != sensor.Heading {
		t.Errorf("unexpected kinds %s, %s", c.samples[0].Kind, c.samples[1].Kind)
	}
	if !c.samples[1].Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", c.samples[1].Timestamp, ts)
	}

	// Bad checksums and unsupported sentences are dropped.
	handleLine(context.Background(), c, "$HEHDT,274.07,T*00", ts)
	handleLine(context.Background(), c, "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47", ts)
	if len(c.samples) != 2 {
		t.Errorf("got %d samples after invalid lines, want 2", len(c.samples))
	}
}

func TestLineHandlerStampsWithClock(t *testing.T) {
	ts := time.Date(2026, 6, 1, 12, 0, 5, 0, time.UTC)
	c := &collectSamples{}
	h := lineHandler(context.Background(), c, func() time.Time { return ts })
	h("$VWVHW,,T,,M,5.76,N,10.66,K*61")
	if len(c.samples) != 1 || c.samples[0].Kind != sensor.SpeedThroughWater {
		t.Fatalf("unexpected samples %+v", c.samples)
	}
	if !c.samples[0].Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", c.samples[0].Timestamp, ts)
	}
}

// lineRecorder keeps the lines written to a disabled bus.
type lineRecorder struct {
	*serialmux.DisabledSerialMux
	lines []string
}

func (r *lineRecorder) WriteLine(l string) error {
	r.lines = append(r.lines, l)
	return r.DisabledSerialMux.WriteLine(l)
}

func TestBusSink(t *testing.T) {
	bus := serialmux.NewDisabledSerialMux()
	sink := newBusSink(bus, nmea.Encoder{Talker: "II"}, true)

	sink.Emit(fusion.Output{Heading: math.Pi / 4})
	if bus.Written() != 0 {
		t.Errorf("empty output wrote %d lines", bus.Written())
	}

	sink.Emit(fusion.Output{
		Heading:   math.Pi / 4,
		BoatSpeed: &sensor.BoatSpeed{Speed: 3, Leeway: 0.05},
		Current:   &sensor.Current{Drift: 0.5, SetTrue: 1, SetMagnetic: 0.9},
	})
	if bus.Written() != 3 {
		t.Errorf("wrote %d lines, want VHW, XDR and VDR", bus.Written())
	}
}

func TestBusSinkOverwrite(t *testing.T) {
	out := fusion.Output{Heading: 0, BoatSpeed: &sensor.BoatSpeed{Speed: 3}}

	tests := []struct {
		overwrite bool
		prefix    string
	}{
		{true, "$SCVHW,"},
		{false, "$SCXDR,G,5.83,N,STW_CORR*"},
	}
	for _, tt := range tests {
		rec := &lineRecorder{DisabledSerialMux: serialmux.NewDisabledSerialMux()}
		newBusSink(rec, nmea.Encoder{Talker: "SC"}, tt.overwrite).Emit(out)
		if len(rec.lines) != 2 {
			t.Fatalf("overwrite=%v: wrote %d lines, want speed and leeway", tt.overwrite, len(rec.lines))
		}
		if !strings.HasPrefix(rec.lines[0], tt.prefix) {
			t.Errorf("overwrite=%v: first line %q, want prefix %q", tt.overwrite, rec.lines[0], tt.prefix)
		}
		for _, l := range rec.lines {
			if strings.HasPrefix(l, "$SCVHW") && !tt.overwrite {
				t.Errorf("VHW sent without overwrite: %q", l)
			}
		}
	}
}

func TestLoadFixtures(t *testing.T) {
	batches, err := loadFixtures(filepath.Join("..", "..", "fixtures", "nmea.txt"))
	if err != nil {
		t.Fatalf("loadFixtures error = %v", err)
	}
	if len(batches) == 0 {
		t.Fatal("no batches")
	}
	ts := time.Now()
	for i, b := range batches {
		last := b[len(b)-1]
		if !strings.Contains(last, "VHW") {
			t.Errorf("batch %d does not end with the heartbeat: %q", i, last)
		}
		for _, line := range b {
			if _, err := nmea.DecodeLine(line, ts); err != nil {
				t.Errorf("batch %d: %q: %v", i, line, err)
			}
		}
	}

	if _, err := loadFixtures(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestLoadConfigDemotesMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boat.json")
	if err := config.SaveConfig(path, config.DefaultConfig()); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(path, config.ModeNewWithCurrent)
	if err != nil {
		t.Fatalf("loadConfig error = %v", err)
	}
	if !cfg.GetStartFresh() {
		t.Error("running config should start fresh")
	}

	back, err := config.LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if back.GetMode() != config.ModeFreshWithCurrent {
		t.Errorf("persisted mode = %q, want %q", back.GetMode(), config.ModeFreshWithCurrent)
	}

	again, err := loadConfig(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if again.GetStartFresh() {
		t.Error("second start should keep the table")
	}

	if _, err := loadConfig(path, "sideways"); err == nil {
		t.Error("expected error for an unknown mode")
	}
}

func TestLoadConfigCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.json")
	cfg, err := loadConfig(path, "")
	if err != nil {
		t.Fatalf("loadConfig error = %v", err)
	}
	if !cfg.GetStartFresh() {
		t.Error("a new boat should start with a fresh table")
	}
	back, err := config.LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if back.GetMode() != config.ModeFreshNoCurrent {
		t.Errorf("persisted mode = %q, want %q", back.GetMode(), config.ModeFreshNoCurrent)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("", "")
	if err != nil {
		t.Fatalf("loadConfig error = %v", err)
	}
	if cfg.GetMode() != config.ModeFreshNoCurrent {
		t.Errorf("mode = %q, want the demoted default", cfg.GetMode())
	}
}

func TestRunSubcommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.db")

	if code := runSubcommand("migrate", []string{"up", "--db-path", path}); code != 0 {
		t.Errorf("migrate up exit code = %d", code)
	}
	if code := runSubcommand("grid", []string{"list", "--db-path", path}); code != 0 {
		t.Errorf("grid list exit code = %d", code)
	}
	if code := runSubcommand("grid", []string{"bogus", "--db-path", path}); code != 1 {
		t.Errorf("unknown grid action exit code = %d, want 1", code)
	}
	if code := runSubcommand("migrate", nil); code != 1 {
		t.Errorf("missing migrate action exit code = %d, want 1", code)
	}
}
