// Package zwave models the slice of the Z-Wave configuration protocol used to
// drive status-mode LEDs on HomeSeer WX200-family switches.
package zwave

import (
	"errors"
	"fmt"
)

// ManufacturerHomeSeer is the Z-Wave manufacturer id reported by every
// HomeSeer-branded device.
const ManufacturerHomeSeer = 12

// ErrNotSupportedDevice is returned when a device is not a member of the
// supported switch family.
var ErrNotSupportedDevice = errors.New("not a supported WX200-family device")

// Variant identifies a member of the switch family.
type Variant uint8

const (
	VariantUnknown Variant = iota
	SingleLed              // HS-WS200+ wall switch
	SevenLed               // HS-WD200+ dimmer
	SevenLedAlt            // HS-WX300 switch/dimmer
	FourLed                // HS-FC200+ fan controller
)

type productKey struct {
	productType uint16
	productID   uint16
}

var variantsByProduct = map[productKey]Variant{
	{productType: 0x4447, productID: 0x3035}: SingleLed,
	{productType: 0x4447, productID: 0x3036}: SevenLed,
	{productType: 0x4447, productID: 0x4036}: SevenLedAlt,
	{productType: 0x0203, productID: 0x0001}: FourLed,
}

// Classify maps vendor identifiers to a hardware variant.
func Classify(manufacturerID int, productType, productID uint16) (Variant, error) {
	if manufacturerID != ManufacturerHomeSeer {
		return VariantUnknown, fmt.Errorf("%w: manufacturer %d", ErrNotSupportedDevice, manufacturerID)
	}

	v, ok := variantsByProduct[productKey{productType: productType, productID: productID}]
	if !ok {
		return VariantUnknown, fmt.Errorf("%w: product %d/%d", ErrNotSupportedDevice, productType, productID)
	}
	return v, nil
}

// IsSupported reports whether Classify would succeed.
func IsSupported(manufacturerID int, productType, productID uint16) bool {
	_, err := Classify(manufacturerID, productType, productID)
	return err == nil
}

// LedCount returns the number of status LEDs on the variant.
func (v Variant) LedCount() int {
	switch v {
	case SingleLed:
		return 1
	case SevenLed, SevenLedAlt:
		return 7
	case FourLed:
		return 4
	default:
		return 0
	}
}

// HasBlinkBitmask reports whether blink is controlled per LED through a bitmask.
// SingleLed devices use one global blink frequency instead.
func (v Variant) HasBlinkBitmask() bool {
	return v != SingleLed && v != VariantUnknown
}

// String returns the product name of the variant.
func (v Variant) String() string {
	switch v {
	case SingleLed:
		return "WS200"
	case SevenLed:
		return "WD200"
	case SevenLedAlt:
		return "WX300"
	case FourLed:
		return "FC200"
	default:
		return "unknown"
	}
}
