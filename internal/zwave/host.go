package zwave

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// InterfaceZWave is the host interface name of Z-Wave devices.
const InterfaceZWave = "Z-Wave"

// Host is the automation platform that owns the Z-Wave network.
// A nil result from a plugin function means the function does not exist.
type Host interface {
	// PluginVersion returns the version string of an installed plugin.
	PluginVersion(ctx context.Context, plugin string) (string, error)

	// LegacyPluginFunction calls a plugin function through the legacy calling convention.
	LegacyPluginFunction(ctx context.Context, plugin, function string, args ...any) (any, error)

	// PluginFunction calls a plugin function through the native calling convention.
	PluginFunction(ctx context.Context, plugin, function string, args ...any) (any, error)

	// Devices enumerates all devices known to the host.
	Devices(ctx context.Context) ([]HostDevice, error)

	// Device resolves a device handle.
	Device(ctx context.Context, ref int) (HostDevice, error)
}

// HostDevice is a snapshot of a host device record.
type HostDevice struct {
	Ref            int    `json:"ref"`
	Interface      string `json:"interface"`
	Address        string `json:"address"`
	ManufacturerID int    `json:"manufacturer_id"`
	ProductType    uint16 `json:"product_type"`
	ProductID      uint16 `json:"product_id"`
	Name           string `json:"name"`
	Location       string `json:"location"`
	Location2      string `json:"location2"`
}

// DisplayName joins the location triple the way the host UI shows it.
func (d HostDevice) DisplayName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{d.Location2, d.Location, d.Name} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// ParseAddress splits a "<homeId>-<nodeId>" device address.
func ParseAddress(address string) (homeID string, nodeID byte, err error) {
	parts := strings.Split(address, "-")
	if len(parts) < 2 || parts[0] == "" {
		return "", 0, fmt.Errorf("invalid Z-Wave address %q", address)
	}
	n, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return "", 0, fmt.Errorf("invalid node id in address %q: %w", address, err)
	}
	return parts[0], byte(n), nil
}
