package device

import (
	"context"
	"errors"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/wxstatusd/internal/zwave"
)

// AllLeds is the LED index meaning "every LED the device has".
const AllLeds = 255

// Collection is an ordered set of devices addressed by one command.
type Collection struct {
	devices []*Device
}

// NewCollection creates a collection in the given order.
func NewCollection(devices ...*Device) *Collection {
	return &Collection{devices: devices}
}

// Devices returns the members.
func (c *Collection) Devices() []*Device {
	return slices.Clone(c.devices)
}

// Len returns the number of members.
func (c *Collection) Len() int {
	return len(c.devices)
}

// MaxLedCount returns the largest LED count among members, at least 1.
func (c *Collection) MaxLedCount() int {
	n := 1
	for _, d := range c.devices {
		n = max(n, d.LedCount())
	}
	return n
}

// SupportsLed reports whether any member has LED index.
func (c *Collection) SupportsLed(index int) bool {
	return index < c.MaxLedCount()
}

// CountNotSupporting counts members without LED index. Every device
// supports AllLeds.
func (c *Collection) CountNotSupporting(index int) int {
	if index == AllLeds {
		return 0
	}

	n := 0
	for _, d := range c.devices {
		if d.LedCount() <= index {
			n++
		}
	}
	return n
}

// ContainsDevice reports whether the device with host handle ref is a member.
func (c *Collection) ContainsDevice(ref int) bool {
	return slices.ContainsFunc(c.devices, func(d *Device) bool { return d.Ref() == ref })
}

// SetStatusLed applies one LED command to every member, one device at a
// time. With AllLeds each device sets each of its own LEDs. A member too
// small for a concrete index is skipped; other failures are collected and
// do not stop the remaining members. An unresolved plugin protocol stops
// the whole fan-out.
func (c *Collection) SetStatusLed(ctx context.Context, index int, color zwave.Color, blink bool) error {
	var errs []error
	for _, d := range c.devices {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		if index == AllLeds {
			for i := 0; i < d.LedCount(); i++ {
				if err := d.SetStatusLed(ctx, i, color, blink); err != nil {
					errs = append(errs, err)
					break
				}
			}
			if fatal(errs) {
				break
			}
			continue
		}

		err := d.SetStatusLed(ctx, index, color, blink)
		if errors.Is(err, zwave.ErrProtocolUnresolved) {
			errs = append(errs, err)
			break
		}
		if errors.Is(err, ErrLedOutOfRange) {
			log.Debug().
				Str("device", d.Identity().Address()).
				Int("led", index+1).
				Int("leds", d.LedCount()).
				Msg("Device has no such LED, skipping")
			continue
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// fatal reports whether the last collected error makes further device
// operations pointless.
func fatal(errs []error) bool {
	return len(errs) > 0 && errors.Is(errs[len(errs)-1], zwave.ErrProtocolUnresolved)
}
