package zwave

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrProtocolUnresolved is returned when the host Z-Wave plugin version does
// not map to a known calling convention. It is fatal to the whole daemon.
var ErrProtocolUnresolved = errors.New("unable to resolve Z-Wave plugin protocol")

// Protocol is the calling convention used to reach the Z-Wave plugin.
//
// Transitions:
//
//	Unknown -> LegacyWithModernSetter    (plugin 3.x)
//	Unknown -> NativeModern              (plugin 4.x)
//	LegacyWithModernSetter -> LegacyWithoutModernSetter (modern setter missing)
//
// Nothing else moves once resolved.
type Protocol uint8

const (
	ProtocolUnknown Protocol = iota
	ProtocolLegacyWithModernSetter
	ProtocolLegacyWithoutModernSetter
	ProtocolNativeModern
)

func (p Protocol) String() string {
	switch p {
	case ProtocolLegacyWithModernSetter:
		return "legacy_with_modern_setter"
	case ProtocolLegacyWithoutModernSetter:
		return "legacy_without_modern_setter"
	case ProtocolNativeModern:
		return "native_modern"
	default:
		return "unknown"
	}
}

// Legacy reports whether calls go through the legacy calling convention.
func (p Protocol) Legacy() bool {
	return p == ProtocolLegacyWithModernSetter || p == ProtocolLegacyWithoutModernSetter
}

// SetterFunction returns the setter function name used in this state.
func (p Protocol) SetterFunction() string {
	if p == ProtocolLegacyWithoutModernSetter {
		return FuncLegacySet
	}
	return FuncModernSet
}

// Plugin function names.
const (
	FuncGet       = "Configuration_Get"
	FuncLegacySet = "Configuration_Set"
	FuncModernSet = "SetDeviceParameterValue"
)

// ResolveProtocol maps a plugin version string to its initial protocol.
func ResolveProtocol(version string) (Protocol, error) {
	major, _, _ := strings.Cut(strings.TrimSpace(version), ".")
	n, err := strconv.Atoi(major)
	if err != nil {
		return ProtocolUnknown, fmt.Errorf("%w: unparseable version %q", ErrProtocolUnresolved, version)
	}

	switch n {
	case 3:
		return ProtocolLegacyWithModernSetter, nil
	case 4:
		return ProtocolNativeModern, nil
	default:
		return ProtocolUnknown, fmt.Errorf("%w: unsupported major version %d (%s)", ErrProtocolUnresolved, n, version)
	}
}

// ConfigResult is the enumerated outcome returned by the legacy setter.
type ConfigResult int

const (
	ConfigResultUnknown ConfigResult = iota
	ConfigResultSuccess
	ConfigResultQueued
	ConfigResultFailed
)

// setOutcome reports whether a setter result means success. The modern
// setter answers with a status string, the legacy one with ConfigResult.
func setOutcome(result any) (bool, string) {
	switch v := result.(type) {
	case string:
		return v == "Success", v
	case ConfigResult:
		return v == ConfigResultSuccess, strconv.Itoa(int(v))
	case int:
		return ConfigResult(v) == ConfigResultSuccess, strconv.Itoa(v)
	case int64:
		return ConfigResult(v) == ConfigResultSuccess, strconv.FormatInt(v, 10)
	case float64:
		return ConfigResult(v) == ConfigResultSuccess, strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return false, fmt.Sprintf("%v", v)
	}
}

// toInt converts a getter result to an integer.
func toInt(result any) (int, error) {
	switch v := result.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint8:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("non-integer parameter value %v", v)
		}
		return int(v), nil
	case string:
		return strconv.Atoi(v)
	case nil:
		return 0, errors.New("no value returned")
	default:
		return 0, fmt.Errorf("unexpected parameter value type %T", result)
	}
}
