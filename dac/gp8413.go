// Package dac drives the DFRobot Gravity GP8413 two-channel 15-bit I2C DAC.
//
// Datasheet: https://wiki.dfrobot.com/SKU_DFR1073_2_Channel_15bit_I2C_to_0-10V_DAC
//
// Only the features needed to run the module as a voltage output are covered:
// selecting the 0-5V or 0-10V output range and writing raw counts to one or
// both channels. The bus is abstracted behind the Bus interface so the driver
// can be exercised against a mock in tests; a periph.io I2C bus satisfies it
// directly.
package dac

import (
	"fmt"
)

const (
	// DefaultAddress is the factory I2C address of the GP8413.
	DefaultAddress = 0x58

	// Resolution15Bit is the full-scale counts value of the DAC.
	Resolution15Bit = 0x7FFF

	regOutputRange = 0x01
	regChannel0    = 0x02
	regChannel1    = 0x04

	rangeCode5V  = 0x00
	rangeCode10V = 0x11
)

// Range selects the full-scale output voltage of the device.
type Range int

const (
	Range5V Range = iota
	Range10V
)

// Span returns the full-scale output voltage for the range.
func (r Range) Span() float64 {
	if r == Range5V {
		return 5.0
	}
	return 10.0
}

func (r Range) code() byte {
	if r == Range5V {
		return rangeCode5V
	}
	return rangeCode10V
}

func (r Range) String() string {
	if r == Range5V {
		return "0-5V"
	}
	return "0-10V"
}

// Channel selects which DAC output a write applies to.
type Channel int

const (
	Channel0 Channel = iota
	Channel1
	// ChannelBoth drives both outputs together in a single bus transaction.
	ChannelBoth
)

// Bus is the subset of an I2C bus the driver needs.
type Bus interface {
	Tx(addr uint16, w, r []byte) error
}

// GP8413 represents a single GP8413 device on an I2C bus.
type GP8413 struct {
	bus  Bus
	addr uint16
}

// New returns a GP8413 bound to the given bus and address. Call Begin before
// any other method.
func New(bus Bus, addr uint16) *GP8413 {
	return &GP8413{bus: bus, addr: addr}
}

// Begin probes the device on the bus. A failure here almost always means a
// hardware problem, so the error names the usual suspects.
func (d *GP8413) Begin() error {
	probe := make([]byte, 1)
	if err := d.bus.Tx(d.addr, nil, probe); err != nil {
		return fmt.Errorf(
			"no response from GP8413 at address 0x%02x (check wiring, power, and the selected I2C address): %w",
			d.addr, err)
	}
	return nil
}

// SetOutputRange switches the device between its 0-5V and 0-10V output spans.
func (d *GP8413) SetOutputRange(r Range) error {
	if err := d.bus.Tx(d.addr, []byte{regOutputRange, r.code()}, nil); err != nil {
		return fmt.Errorf("set output range %s: %w", r, err)
	}
	return nil
}

// WriteCounts pushes a raw 15-bit counts value to the selected channel.
// Counts above full scale are truncated to full scale. The device expects the
// value left-aligned in a 16-bit little-endian word.
func (d *GP8413) WriteCounts(counts uint16, ch Channel) error {
	if counts > Resolution15Bit {
		counts = Resolution15Bit
	}
	wire := counts << 1
	lo, hi := byte(wire), byte(wire>>8)

	var frame []byte
	switch ch {
	case Channel0:
		frame = []byte{regChannel0, lo, hi}
	case Channel1:
		frame = []byte{regChannel1, lo, hi}
	case ChannelBoth:
		// Both data registers are consecutive, so one burst write covers them.
		frame = []byte{regChannel0, lo, hi, lo, hi}
	default:
		return fmt.Errorf("unknown DAC channel %d", ch)
	}

	if err := d.bus.Tx(d.addr, frame, nil); err != nil {
		return fmt.Errorf("write %d counts to channel %d: %w", counts, ch, err)
	}
	return nil
}
