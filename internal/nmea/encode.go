package nmea

import (
	"fmt"
	"math"

	"github.com/banshee-data/speedcurrent/internal/sensor"
	"github.com/banshee-data/speedcurrent/internal/units"
	"github.com/banshee-data/speedcurrent/internal/vector"
)

// Encoder renders outgoing sentences under one talker id.
type Encoder struct {
	Talker string
}

// VHW renders the corrected speed through water. A non-finite heading
// leaves the heading fields empty.
func (e Encoder) VHW(headingTrue, speed float64) string {
	hdg := ""
	if !math.IsNaN(headingTrue) && !math.IsInf(headingTrue, 0) {
		hdg = fmt.Sprintf("%.1f", units.ToDegrees(vector.WrapPeriod(headingTrue, vector.TwoPi)))
	}
	return format(e.Talker, "VHW",
		hdg, "T", "", "M",
		fmt.Sprintf("%.2f", units.ToKnots(speed)), "N",
		fmt.Sprintf("%.2f", units.ConvertSpeed(speed, units.KMPH)), "K",
	)
}

// VDR renders current set and drift.
func (e Encoder) VDR(c sensor.Current) string {
	return format(e.Talker, "VDR",
		fmt.Sprintf("%.1f", units.ToDegrees(vector.WrapPeriod(c.SetTrue, vector.TwoPi))), "T",
		fmt.Sprintf("%.1f", units.ToDegrees(vector.WrapPeriod(c.SetMagnetic, vector.TwoPi))), "M",
		fmt.Sprintf("%.2f", units.ToKnots(c.Drift)), "N",
	)
}

// XDRLeeway renders the leeway angle as an angular transducer reading.
func (e Encoder) XDRLeeway(leeway float64) string {
	return format(e.Talker, "XDR", "A", fmt.Sprintf("%.1f", units.ToDegrees(leeway)), "D", "LEEWAY")
}

// XDRSpeed renders the corrected speed through water, in knots, as a generic
// transducer reading so that it does not compete with the sensor's VHW.
func (e Encoder) XDRSpeed(speed float64) string {
	return format(e.Talker, "XDR", "G", fmt.Sprintf("%.2f", units.ToKnots(speed)), "N", "STW_CORR")
}
