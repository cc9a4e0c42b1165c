package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/banshee-data/speedcurrent/internal/fusion"
	"github.com/banshee-data/speedcurrent/internal/monitoring"
	"github.com/banshee-data/speedcurrent/internal/nmea"
	"github.com/banshee-data/speedcurrent/internal/sensor"
	"github.com/banshee-data/speedcurrent/internal/serialmux"
)

var logf = monitoring.Component("speedcurrent")

// sampleHandler is the part of the pipeline that consumes decoded samples.
type sampleHandler interface {
	HandleSample(ctx context.Context, s sensor.Sample) bool
}

// lineHandler decodes each bus line stamped with now() and feeds the samples
// to p.
func lineHandler(ctx context.Context, p sampleHandler, now func() time.Time) serialmux.LineHandler {
	return func(line string) {
		handleLine(ctx, p, line, now())
	}
}

func handleLine(ctx context.Context, p sampleHandler, line string, ts time.Time) {
	samples, err := nmea.DecodeLine(line, ts)
	if err != nil {
		if !errors.Is(err, nmea.ErrUnsupported) {
			logf("dropping %q: %v", line, err)
		}
		return
	}
	for _, s := range samples {
		p.HandleSample(ctx, s)
	}
}

// busSink writes the pipeline's outputs back onto the bus. With overwrite
// set the corrected speed goes out as VHW and replaces the sensor's boat
// speed on displays; otherwise it is sent as a separate XDR reading.
type busSink struct {
	bus       serialmux.LineMux
	enc       nmea.Encoder
	overwrite bool
}

func newBusSink(bus serialmux.LineMux, enc nmea.Encoder, overwrite bool) *busSink {
	return &busSink{bus: bus, enc: enc, overwrite: overwrite}
}

// Emit sends the corrected boat speed with the leeway XDR, and VDR for the
// current.
func (s *busSink) Emit(out fusion.Output) {
	var lines []string
	if b := out.BoatSpeed; b != nil {
		speed := s.enc.XDRSpeed(b.Speed)
		if s.overwrite {
			speed = s.enc.VHW(out.Heading, b.Speed)
		}
		lines = append(lines, speed, s.enc.XDRLeeway(b.Leeway))
	}
	if c := out.Current; c != nil {
		lines = append(lines, s.enc.VDR(*c))
	}
	for _, l := range lines {
		if err := s.bus.WriteLine(l); err != nil {
			logf("failed to write %q: %v", l, err)
			return
		}
	}
}

// loadFixtures reads NMEA lines grouped into batches by blank lines. Lines
// starting with '#' are comments.
func loadFixtures(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixtures file: %w", err)
	}
	defer f.Close()

	var batches [][]string
	var cur []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "#"):
		case line == "":
			if len(cur) > 0 {
				batches = append(batches, cur)
				cur = nil
			}
		default:
			cur = append(cur, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read fixtures file: %w", err)
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	if len(batches) == 0 {
		return nil, fmt.Errorf("fixtures file %s has no sentences", path)
	}
	return batches, nil
}
