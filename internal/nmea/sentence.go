// Package nmea reads and writes the NMEA 0183 sentences an instrument bus
// carries for heading, attitude, speed through water and GPS track, and the
// sentences the service sends back with the corrected boat speed and the
// current.
package nmea

import (
	"errors"
	"fmt"
	"strings"

	gonmea "github.com/adrianmo/go-nmea"
)

var (
	// ErrUnsupported means the sentence type is not one this package decodes.
	ErrUnsupported = errors.New("nmea: unsupported sentence")
	// ErrMalformed means the sentence framing, checksum or a field could not
	// be read.
	ErrMalformed = errors.New("nmea: malformed sentence")
)

// decoded lists the sentence types Decode understands.
var decoded = map[string]bool{
	gonmea.TypeHDT: true,
	gonmea.TypeHDG: true,
	gonmea.TypeVHW: true,
	gonmea.TypeRMC: true,
	gonmea.TypeVTG: true,
	gonmea.TypeXDR: true,
}

// Parse parses a raw line into a typed sentence. The checksum is required.
// Types Decode does not handle, proprietary "$P..." sentences included, are
// rejected with ErrUnsupported before the body is read.
func Parse(line string) (gonmea.Sentence, error) {
	line = strings.TrimSpace(line)
	typ, err := sentenceType(line)
	if err != nil {
		return nil, err
	}
	if !decoded[typ] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, typ)
	}
	s, err := gonmea.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return s, nil
}

// sentenceType reads the type from the address field.
func sentenceType(line string) (string, error) {
	if len(line) < 6 || (line[0] != '$' && line[0] != '!') {
		return "", fmt.Errorf("%w: %q", ErrMalformed, line)
	}
	addr := line[1:]
	if i := strings.IndexAny(addr, ",*"); i >= 0 {
		addr = addr[:i]
	}
	if strings.HasPrefix(addr, "P") {
		return "", fmt.Errorf("%w: proprietary %s", ErrUnsupported, addr)
	}
	if len(addr) != 5 {
		return "", fmt.Errorf("%w: address %q", ErrMalformed, addr)
	}
	return addr[2:], nil
}

// field returns data field i of s, or "" when the sentence is shorter.
func field(s gonmea.BaseSentence, i int) string {
	if i < 0 || i >= len(s.Fields) {
		return ""
	}
	return s.Fields[i]
}

// format renders a sentence with its checksum.
func format(talker, typ string, fields ...string) string {
	body := talker + typ
	if len(fields) > 0 {
		body += "," + strings.Join(fields, ",")
	}
	return "$" + body + "*" + gonmea.Checksum(body)
}
