package dac

import (
	"math"

	"voltlight/utils"
)

// ClampVoltage snaps a requested voltage onto what the DAC can legally output.
// The open interval (0, 1) volt is an unused band for this DAC family, so
// values inside it snap to the nearest edge; everything else is bounded to
// [0, span].
func ClampVoltage(v, span float64) float64 {
	if v > 0 && v < 1.0 {
		if v < 0.5 {
			return 0.0
		}
		return 1.0
	}
	return utils.Clamp(v, 0, span)
}

// VoltageToCounts quantizes a voltage to device counts for the given span.
func VoltageToCounts(v, span float64) uint16 {
	if span <= 0 {
		return 0
	}
	counts := math.Round(v / span * Resolution15Bit)
	return uint16(utils.Clamp(counts, 0, Resolution15Bit))
}

// VoltageWriter adapts a GP8413 channel to a voltage-valued output. Every
// write passes through ClampVoltage so the invalid band below 1V can never
// reach the device, even when a fade interpolates through it.
type VoltageWriter struct {
	Dev     *GP8413
	Span    float64
	Channel Channel
}

func (w *VoltageWriter) Write(v float64) error {
	v = ClampVoltage(v, w.Span)
	return w.Dev.WriteCounts(VoltageToCounts(v, w.Span), w.Channel)
}
