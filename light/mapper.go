package light

// BrightnessToVoltage maps a brightness level (0-255) onto the DAC's usable
// output range. Zero is off; everything else lands on a linear scale from 1V
// to the full span, deliberately skipping the open interval (0, 1) volt which
// is an undefined output band for this DAC family.
func BrightnessToVoltage(brightness int, span float64) float64 {
	if brightness <= 0 {
		return 0.0
	}
	if brightness > 255 {
		brightness = 255
	}
	return 1.0 + (span-1.0)*float64(brightness-1)/254.0
}
