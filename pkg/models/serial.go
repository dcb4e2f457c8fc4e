// Package models defines the shared data types exchanged between the
// permission broker, the enumeration transport and the service layer.
package models

import (
	"github.com/serialgate/serialgate/pkg/token"
)

// Origin identifies the requesting web principal (scheme+host+port).
type Origin string

// SerialPort describes one physical serial connection as reported by the
// enumeration transport. Optional string fields are pointers so that an
// absent value is distinguishable from an empty one; the numeric USB ids
// carry explicit presence flags for the same reason.
type SerialPort struct {
	// Token is unique per physical connection instance and changes on
	// every reconnect. It is always present.
	Token token.Token `json:"token"`

	// Path is the platform device path (e.g. /dev/ttyUSB0, COM3).
	Path string `json:"path"`

	DisplayName *string `json:"display_name,omitempty"`

	HasVendorID bool   `json:"has_vendor_id,omitempty"`
	VendorID    uint16 `json:"vendor_id,omitempty"`

	HasProductID bool   `json:"has_product_id,omitempty"`
	ProductID    uint16 `json:"product_id,omitempty"`

	SerialNumber *string `json:"serial_number,omitempty"`

	// DeviceInstanceID is the vendor-supplied stable identifier exposed
	// on Windows; empty elsewhere.
	DeviceInstanceID string `json:"device_instance_id,omitempty"`

	// USBDriverName is reported on macOS, where built-in and vendor
	// drivers can expose the same adapter as two logical endpoints.
	USBDriverName *string `json:"usb_driver_name,omitempty"`
}

// EffectiveName returns the display name when the transport supplied one,
// falling back to the device path. Path names are recycled by the OS across
// different physical devices, so this fallback is display-only and never
// participates in identity matching.
func (p *SerialPort) EffectiveName() string {
	if p.DisplayName != nil && *p.DisplayName != "" {
		return *p.DisplayName
	}

	return p.Path
}
