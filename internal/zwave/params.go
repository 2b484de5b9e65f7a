package zwave

import "strconv"

// Param is a vendor configuration parameter number.
type Param uint8

// Only the parameters relevant to status mode are listed.
const (
	ParamStatusModeActive     Param = 13
	ParamNormalModeLedColor   Param = 14
	ParamStatusLed1Color      Param = 21 // LED 1 is the bottom LED; single LED on WS200
	ParamStatusLed7Color      Param = 27
	ParamBlinkFrequency       Param = 30 // WD200/FC200 global blink frequency
	ParamBlinkBitmask         Param = 31 // WD200/FC200/WX300 per-LED blink bits
	ParamSingleBlinkFrequency Param = 31 // WS200 blink frequency, same number as the bitmask
)

// LedColorParam returns the color parameter for a zero-based LED index.
func LedColorParam(index int) Param {
	return ParamStatusLed1Color + Param(index)
}

// String names known parameters for logs.
func (p Param) String() string {
	switch {
	case p == ParamStatusModeActive:
		return "StatusModeActive"
	case p == ParamNormalModeLedColor:
		return "NormalModeLedColor"
	case p >= ParamStatusLed1Color && p <= ParamStatusLed7Color:
		return "StatusModeLed" + strconv.Itoa(int(p-ParamStatusLed1Color)+1) + "Color"
	case p == ParamBlinkFrequency:
		return "StatusModeBlinkFrequency"
	case p == ParamBlinkBitmask:
		return "StatusModeBlink"
	default:
		return "Param" + strconv.Itoa(int(p))
	}
}
