package nmea

import (
	"fmt"
	"math"
	"strings"
	"time"

	gonmea "github.com/adrianmo/go-nmea"

	"github.com/banshee-data/speedcurrent/internal/sensor"
	"github.com/banshee-data/speedcurrent/internal/units"
	"github.com/banshee-data/speedcurrent/internal/vector"
)

// DecodeLine parses line and converts it to samples stamped with ts.
func DecodeLine(line string, ts time.Time) ([]sensor.Sample, error) {
	s, err := Parse(line)
	if err != nil {
		return nil, err
	}
	return Decode(s, ts)
}

// Decode converts a sentence into SI samples. The sample source is the
// talker id. A sentence that carries no usable value (an invalid RMC fix,
// an HDG without variation) yields no samples and no error. Empty fields
// are treated as absent rather than zero.
func Decode(s gonmea.Sentence, ts time.Time) ([]sensor.Sample, error) {
	d := decoder{source: s.TalkerID(), ts: ts}
	switch m := s.(type) {
	case gonmea.HDT:
		if field(m.BaseSentence, 0) != "" {
			d.angle(sensor.Heading, m.Heading)
		}
	case gonmea.HDG:
		d.hdg(m)
	case gonmea.VHW:
		d.speed(sensor.SpeedThroughWater, m.BaseSentence, 4, m.SpeedThroughWaterKnots, 6, m.SpeedThroughWaterKPH)
	case gonmea.RMC:
		d.rmc(m)
	case gonmea.VTG:
		if field(m.BaseSentence, 0) != "" {
			d.angle(sensor.CourseOverGround, m.TrueTrack)
		}
		d.speed(sensor.SpeedOverGround, m.BaseSentence, 4, m.GroundSpeedKnots, 6, m.GroundSpeedKPH)
	case gonmea.XDR:
		d.xdr(m)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, s.DataType())
	}
	return d.out, nil
}

type decoder struct {
	source string
	ts     time.Time
	out    []sensor.Sample
}

func (d *decoder) emit(kind sensor.Kind, v float64) {
	d.out = append(d.out, sensor.Sample{Kind: kind, Value: v, Timestamp: d.ts, Source: d.source})
}

// angle emits a true bearing given in degrees.
func (d *decoder) angle(kind sensor.Kind, deg float64) {
	d.emit(kind, vector.WrapPeriod(units.FromDegrees(deg), vector.TwoPi))
}

// speed emits the knots field, falling back to the km/h field.
func (d *decoder) speed(kind sensor.Kind, s gonmea.BaseSentence, knField int, kn float64, kmhField int, kmh float64) {
	switch {
	case field(s, knField) != "":
		d.emit(kind, units.FromKnots(kn))
	case field(s, kmhField) != "":
		d.emit(kind, units.ToMPS(kmh, units.KMPH))
	}
}

// signed applies the E/W hemisphere in field dir to v; west is negative.
func signed(s gonmea.BaseSentence, v float64, dir int) float64 {
	v = math.Abs(v)
	if strings.EqualFold(field(s, dir), gonmea.West) {
		return -v
	}
	return v
}

func (d *decoder) hdg(m gonmea.HDG) {
	if field(m.BaseSentence, 0) == "" || field(m.BaseSentence, 3) == "" {
		return
	}
	variation := signed(m.BaseSentence, m.Variation, 4)
	deviation := signed(m.BaseSentence, m.Deviation, 2)
	d.emit(sensor.MagneticVariation, units.FromDegrees(variation))
	d.angle(sensor.Heading, m.Heading+deviation+variation)
}

func (d *decoder) rmc(m gonmea.RMC) {
	if m.Validity != gonmea.ValidRMC {
		return
	}
	if field(m.BaseSentence, 6) != "" {
		d.emit(sensor.SpeedOverGround, units.FromKnots(m.Speed))
	}
	if field(m.BaseSentence, 7) != "" {
		d.angle(sensor.CourseOverGround, m.Course)
	}
	if field(m.BaseSentence, 9) != "" {
		d.emit(sensor.MagneticVariation, units.FromDegrees(signed(m.BaseSentence, m.Variation, 10)))
	}
}

// xdr reads roll and pitch from angular transducer measurements. The sample
// flags only the axes the sentence carries.
func (d *decoder) xdr(m gonmea.XDR) {
	var att sensor.Orientation
	for k, ms := range m.Measurements {
		if ms.TransducerType != "A" || field(m.BaseSentence, 4*k+1) == "" {
			continue
		}
		if ms.Unit != "" && ms.Unit != "D" {
			continue
		}
		name := strings.ToUpper(ms.TransducerName)
		switch {
		case strings.Contains(name, "ROLL"), strings.Contains(name, "HEEL"):
			att.Roll = units.FromDegrees(ms.Value)
			att.Axes |= sensor.AxisRoll
		case strings.Contains(name, "PITCH"), strings.Contains(name, "PTCH"), strings.Contains(name, "TRIM"):
			att.Pitch = units.FromDegrees(ms.Value)
			att.Axes |= sensor.AxisPitch
		}
	}
	if att.Axes != 0 {
		d.out = append(d.out, sensor.Sample{Kind: sensor.Attitude, Attitude: att, Timestamp: d.ts, Source: d.source})
	}
}
