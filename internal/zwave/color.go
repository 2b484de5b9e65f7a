package zwave

import (
	"fmt"
	"strconv"
	"strings"
)

// Color is a status-mode LED color as encoded in the color parameters.
type Color uint8

const (
	ColorOff Color = iota
	ColorRed
	ColorGreen
	ColorBlue
	ColorMagenta
	ColorYellow
	ColorCyan
	ColorWhite
)

var colorNames = [...]string{"off", "red", "green", "blue", "magenta", "yellow", "cyan", "white"}

// Colors lists every color in wire order.
func Colors() []Color {
	out := make([]Color, len(colorNames))
	for i := range colorNames {
		out[i] = Color(i)
	}
	return out
}

// Valid reports whether c is one of the eight defined colors.
func (c Color) Valid() bool {
	return int(c) < len(colorNames)
}

func (c Color) String() string {
	if !c.Valid() {
		return fmt.Sprintf("color(%d)", uint8(c))
	}
	return colorNames[c]
}

// ParseColor accepts a color name (case-insensitive) or its numeric value.
func ParseColor(s string) (Color, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range colorNames {
		if s == name {
			return Color(i), nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n < len(colorNames) {
		return Color(n), nil
	}
	return ColorOff, fmt.Errorf("unknown color %q", s)
}

// MarshalText encodes the color by name.
func (c Color) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid color %d", uint8(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText accepts anything ParseColor does.
func (c *Color) UnmarshalText(text []byte) error {
	parsed, err := ParseColor(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
