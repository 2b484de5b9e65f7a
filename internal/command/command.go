// Package command carries LED commands from the outer surfaces (HTTP, MQTT,
// scripts) to device collections.
package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/dokzlo13/wxstatusd/internal/device"
	"github.com/dokzlo13/wxstatusd/internal/zwave"
)

// ErrInvalidLed is returned for LED references that are neither "all" nor 1..255.
var ErrInvalidLed = errors.New("invalid LED")

// Command sets one LED (or all LEDs) on every device matched by Filter.
type Command struct {
	ID             uuid.UUID   `json:"id"`
	Filter         string      `json:"filter"`
	Led            Led         `json:"led"`
	Color          zwave.Color `json:"color"`
	Blink          bool        `json:"blink"`
	Source         string      `json:"source,omitempty"`
	IdempotencyKey string      `json:"idempotency_key,omitempty"`
}

// Validate checks the fields that do not need device lookups.
func (c Command) Validate() error {
	if strings.TrimSpace(c.Filter) == "" {
		return fmt.Errorf("%w: empty filter", device.ErrBadFilter)
	}
	if !c.Color.Valid() {
		return fmt.Errorf("%w: %d", device.ErrInvalidColor, uint8(c.Color))
	}
	if c.Led < 0 || c.Led > device.AllLeds {
		return fmt.Errorf("%w: index %d", ErrInvalidLed, int(c.Led))
	}
	return nil
}

// Led is a zero-based LED index or device.AllLeds. On the wire it is "all"
// or a 1-based position.
type Led int

// AllLeds selects every LED of each device.
const AllLeds Led = device.AllLeds

// ParseLed accepts "all" or a 1-based position.
func ParseLed(s string) (Led, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "all") {
		return AllLeds, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > device.AllLeds {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLed, s)
	}
	return Led(n - 1), nil
}

func (l Led) String() string {
	if l == AllLeds {
		return "all"
	}
	return strconv.Itoa(int(l) + 1)
}

// MarshalJSON encodes "all" or the 1-based position.
func (l Led) MarshalJSON() ([]byte, error) {
	if l == AllLeds {
		return []byte(`"all"`), nil
	}
	return []byte(l.String()), nil
}

// UnmarshalJSON accepts "all", a 1-based number, or a 1-based numeric string.
func (l *Led) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n int
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidLed, data)
		}
		s = strconv.Itoa(n)
	}
	parsed, err := ParseLed(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Request is the wire form of an LED command accepted by the HTTP and MQTT
// surfaces.
type Request struct {
	Filter         string      `json:"filter"`
	Led            Led         `json:"led"`
	Color          zwave.Color `json:"color"`
	Blink          bool        `json:"blink"`
	IdempotencyKey string      `json:"idempotency_key,omitempty"`
}

// Command converts the request to a command from source.
func (r Request) Command(source string) Command {
	return Command{
		Filter:         r.Filter,
		Led:            r.Led,
		Color:          r.Color,
		Blink:          r.Blink,
		Source:         source,
		IdempotencyKey: r.IdempotencyKey,
	}
}
