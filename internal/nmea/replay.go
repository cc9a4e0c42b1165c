package nmea

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/speedcurrent/internal/monitoring"
)

// DefaultUDPPort is the conventional port for NMEA 0183 over UDP.
const DefaultUDPPort = 10110

// ReplayOptions selects which datagrams a replay uses and how fast.
type ReplayOptions struct {
	// Port filters on UDP destination port; 0 accepts every port.
	Port int
	// Realtime sleeps between packets to follow the capture timestamps.
	Realtime bool
}

// ReplayPCAP reads a pcap capture of NMEA over UDP and hands every sentence
// line to handle with the packet's capture timestamp. It returns the number
// of lines delivered. The capture is read with the pure-Go pcapgo reader so
// no libpcap is needed.
func ReplayPCAP(ctx context.Context, r io.Reader, opts ReplayOptions, handle func(line string, ts time.Time)) (int, error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("failed to open pcap stream: %w", err)
	}

	source := gopacket.NewPacketSource(reader, reader.LinkType())
	source.NoCopy = true

	var (
		lines, packets int
		last           time.Time
	)
	for {
		if err := ctx.Err(); err != nil {
			monitoring.Logf("[nmea] pcap replay stopping (processed %d packets)", packets)
			return lines, err
		}
		packet, err := source.NextPacket()
		if errors.Is(err, io.EOF) {
			monitoring.Logf("[nmea] pcap replay complete: %d packets, %d lines", packets, lines)
			return lines, nil
		}
		if err != nil {
			return lines, fmt.Errorf("failed to read pcap packet %d: %w", packets+1, err)
		}
		packets++

		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		if opts.Port != 0 && int(udp.DstPort) != opts.Port {
			continue
		}

		ts := packet.Metadata().Timestamp
		if opts.Realtime && !last.IsZero() && ts.After(last) {
			if err := sleepCtx(ctx, ts.Sub(last)); err != nil {
				return lines, err
			}
		}
		last = ts

		sc := bufio.NewScanner(bytes.NewReader(udp.Payload))
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			handle(string(line), ts)
			lines++
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
