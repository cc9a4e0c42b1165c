package nmea

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	gonmea "github.com/adrianmo/go-nmea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/speedcurrent/internal/sensor"
	"github.com/banshee-data/speedcurrent/internal/units"
)

var ts = time.Date(2025, 6, 1, 12, 35, 19, 0, time.UTC)

func line(talker, typ string, fields ...string) string {
	return format(talker, typ, fields...)
}

// fieldsOf splits a checksummed sentence into its address and data fields.
func fieldsOf(t *testing.T, l string) (string, []string) {
	t.Helper()
	body, sum, ok := strings.Cut(strings.TrimPrefix(l, "$"), "*")
	require.True(t, ok)
	require.Equal(t, gonmea.Checksum(body), sum)
	parts := strings.Split(body, ",")
	return parts[0], parts[1:]
}

func decode(t *testing.T, l string) []sensor.Sample {
	t.Helper()
	out, err := DecodeLine(l, ts)
	require.NoError(t, err)
	return out
}

func TestDecodeHDT(t *testing.T) {
	out := decode(t, line("HE", "HDT", "274.07", "T"))
	require.Len(t, out, 1)
	assert.Equal(t, sensor.Heading, out[0].Kind)
	assert.InDelta(t, units.FromDegrees(274.07), out[0].Value, 1e-12)
	assert.Equal(t, "HE", out[0].Source)
	assert.Equal(t, ts, out[0].Timestamp)
}

func TestDecodeHDG(t *testing.T) {
	out := decode(t, line("HC", "HDG", "358.0", "1.0", "E", "3.5", "E"))
	require.Len(t, out, 2)
	assert.Equal(t, sensor.MagneticVariation, out[0].Kind)
	assert.InDelta(t, units.FromDegrees(3.5), out[0].Value, 1e-12)
	assert.Equal(t, sensor.Heading, out[1].Kind)
	// 358 + 1 + 3.5 wraps past north.
	assert.InDelta(t, units.FromDegrees(2.5), out[1].Value, 1e-9)

	west := decode(t, line("HC", "HDG", "90.0", "", "", "10.0", "W"))
	require.Len(t, west, 2)
	assert.InDelta(t, units.FromDegrees(-10), west[0].Value, 1e-12)
	assert.InDelta(t, units.FromDegrees(80), west[1].Value, 1e-12)

	// No variation, no true heading.
	assert.Empty(t, decode(t, line("HC", "HDG", "90.0", "", "", "", "")))
}

func TestDecodeVHW(t *testing.T) {
	out := decode(t, line("VW", "VHW", "", "T", "", "M", "6.20", "N", "11.48", "K"))
	require.Len(t, out, 1)
	assert.Equal(t, sensor.SpeedThroughWater, out[0].Kind)
	assert.InDelta(t, units.FromKnots(6.2), out[0].Value, 1e-12)

	kmh := decode(t, line("VW", "VHW", "", "T", "", "M", "", "N", "18.0", "K"))
	require.Len(t, kmh, 1)
	assert.InDelta(t, 5.0, kmh[0].Value, 1e-12)
}

func TestDecodeRMC(t *testing.T) {
	out := decode(t, rmcExample)
	require.Len(t, out, 3)
	assert.Equal(t, sensor.SpeedOverGround, out[0].Kind)
	assert.InDelta(t, units.FromKnots(22.4), out[0].Value, 1e-12)
	assert.Equal(t, sensor.CourseOverGround, out[1].Kind)
	assert.InDelta(t, units.FromDegrees(84.4), out[1].Value, 1e-12)
	assert.Equal(t, sensor.MagneticVariation, out[2].Kind)
	assert.InDelta(t, units.FromDegrees(-3.1), out[2].Value, 1e-12)

	void, _ := DecodeLine(line("GP", "RMC", "123519", "V", "", "", "", "", "", "", "230394", "", ""), ts)
	assert.Empty(t, void)
}

func TestDecodeVTG(t *testing.T) {
	out := decode(t, line("GP", "VTG", "054.7", "T", "034.4", "M", "005.5", "N", "010.2", "K"))
	require.Len(t, out, 2)
	assert.Equal(t, sensor.CourseOverGround, out[0].Kind)
	assert.InDelta(t, units.FromDegrees(54.7), out[0].Value, 1e-12)
	assert.Equal(t, sensor.SpeedOverGround, out[1].Kind)
	assert.InDelta(t, units.FromKnots(5.5), out[1].Value, 1e-12)
}

func TestDecodeXDR(t *testing.T) {
	out := decode(t, line("YX", "XDR", "A", "-12.5", "D", "ROLL", "A", "2.0", "D", "PITCH", "C", "18.5", "C", "AIRTEMP"))
	require.Len(t, out, 1)
	assert.Equal(t, sensor.Attitude, out[0].Kind)
	assert.InDelta(t, units.FromDegrees(-12.5), out[0].Attitude.Roll, 1e-12)
	assert.InDelta(t, units.FromDegrees(2), out[0].Attitude.Pitch, 1e-12)
	assert.Equal(t, sensor.AxisRoll|sensor.AxisPitch, out[0].Attitude.Axes)
	assert.True(t, out[0].Finite())

	assert.Empty(t, decode(t, line("YX", "XDR", "C", "18.5", "C", "AIRTEMP")))
	assert.Empty(t, decode(t, line("YX", "XDR", "A", "", "D", "ROLL")))
}

func TestDecodeXDRSingleAxis(t *testing.T) {
	roll := decode(t, line("II", "XDR", "A", "15.0", "D", "ROLL"))
	require.Len(t, roll, 1)
	assert.Equal(t, sensor.AxisRoll, roll[0].Attitude.Axes)
	assert.False(t, roll[0].Attitude.Has(sensor.AxisPitch))

	for _, name := range []string{"PITCH", "PTCH", "TRIM"} {
		pitch := decode(t, line("II", "XDR", "A", "2.0", "D", name))
		require.Len(t, pitch, 1, name)
		assert.Equal(t, sensor.AxisPitch, pitch[0].Attitude.Axes, name)
		assert.InDelta(t, units.FromDegrees(2), pitch[0].Attitude.Pitch, 1e-12, name)
		assert.False(t, pitch[0].Attitude.Has(sensor.AxisRoll), name)
	}

	// Separate sentences merge into one attitude.
	merged := roll[0].Attitude.Merge(decode(t, line("II", "XDR", "A", "2.0", "D", "PTCH"))[0].Attitude)
	assert.InDelta(t, units.FromDegrees(15), merged.Roll, 1e-12)
	assert.InDelta(t, units.FromDegrees(2), merged.Pitch, 1e-12)
}

func TestDecodeErrors(t *testing.T) {
	_, err := DecodeLine(line("GP", "GGA", "123519"), ts)
	assert.True(t, errors.Is(err, ErrUnsupported))

	_, err = DecodeLine(line("HE", "HDT", "north", "T"), ts)
	assert.True(t, errors.Is(err, ErrMalformed))

	_, err = DecodeLine("$HEHDT,274.07,T*00", ts)
	assert.True(t, errors.Is(err, ErrMalformed))

	assert.Empty(t, decode(t, line("HE", "HDT", "", "T")))
}

func TestEncodeRoundTrip(t *testing.T) {
	enc := Encoder{Talker: "SC"}

	vhw := enc.VHW(units.FromDegrees(45), units.FromKnots(6.5))
	out := decode(t, vhw)
	require.Len(t, out, 1)
	assert.InDelta(t, units.FromKnots(6.5), out[0].Value, 1e-3)
	assert.Equal(t, "SC", out[0].Source)

	addr, fields := fieldsOf(t, enc.VHW(math.NaN(), 1))
	assert.Equal(t, "SCVHW", addr)
	assert.Equal(t, "", fields[0])
	s, err := Parse(enc.VHW(math.NaN(), 1))
	require.NoError(t, err)
	assert.Empty(t, s.(gonmea.VHW).Fields[0])

	vdr := enc.VDR(sensor.Current{Drift: units.FromKnots(1.2), SetTrue: units.FromDegrees(200), SetMagnetic: units.FromDegrees(-163)})
	addr, fields = fieldsOf(t, vdr)
	assert.Equal(t, "SCVDR", addr)
	assert.Equal(t, []string{"200.0", "T", "197.0", "M", "1.20", "N"}, fields)

	s, err = Parse(enc.XDRLeeway(units.FromDegrees(-3.2)))
	require.NoError(t, err)
	xdr, ok := s.(gonmea.XDR)
	require.True(t, ok)
	require.Len(t, xdr.Measurements, 1)
	assert.Equal(t, "LEEWAY", xdr.Measurements[0].TransducerName)
	assert.Equal(t, -3.2, xdr.Measurements[0].Value)
}
