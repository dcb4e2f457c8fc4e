package identity

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/serialgate/serialgate/pkg/models"
	"github.com/serialgate/serialgate/pkg/token"
)

// Key names used in stored records. The durable store treats records as
// opaque keyed maps; these constants are the only interpretation layer.
const (
	KeyName             = "name"
	KeyToken            = "token"
	KeyDeviceInstanceID = "device_instance_id"
	KeyVendorID         = "vendor_id"
	KeyProductID        = "product_id"
	KeySerialNumber     = "serial_number"
	KeyUSBDriverName    = "usb_driver_name"
)

var (
	errNilRecord   = errors.New("identity: record is nil")
	errEmptyRecord = errors.New("identity: empty payload")
)

// Record is one granted-device entry. A record is either a token record
// (Token set, no identity fields) or a stable record (exactly the key
// set's identity fields, no token); ToRecord never emits both shapes in
// one record. Records are immutable once written.
type Record struct {
	Name             string  `json:"name"`
	Token            string  `json:"token,omitempty"`
	DeviceInstanceID string  `json:"device_instance_id,omitempty"`
	VendorID         *uint16 `json:"vendor_id,omitempty"`
	ProductID        *uint16 `json:"product_id,omitempty"`
	SerialNumber     *string `json:"serial_number,omitempty"`
	USBDriverName    *string `json:"usb_driver_name,omitempty"`
}

// ToRecord converts a port descriptor into its storable form. The name is
// always set, falling back to the device path when the transport supplied
// no display name. Ports the classifier rejects get a token record; the
// rest get the full identity field set for the key set, never a subset.
func (c Classifier) ToRecord(port *models.SerialPort) Record {
	rec := Record{Name: port.EffectiveName()}

	if !c.CanStorePersistentEntry(port) {
		rec.Token = token.Encode(port.Token)
		return rec
	}

	if c.keySet == KeySetInstanceID {
		rec.DeviceInstanceID = port.DeviceInstanceID
		return rec
	}

	vid, pid := port.VendorID, port.ProductID
	rec.VendorID = &vid
	rec.ProductID = &pid

	// Presence is guaranteed by the CanStorePersistentEntry check above.
	sn := *port.SerialNumber
	rec.SerialNumber = &sn

	if c.keySet == KeySetUSBTripleDriver {
		drv := *port.USBDriverName
		rec.USBDriverName = &drv
	}

	return rec
}

// MatchesPort reports whether the record identifies the same physical
// device as the descriptor, comparing every required identity field for
// exact equality. The name is informational and excluded; token records
// never match here because ephemeral grants are resolved by live token
// before the durable scan.
//
// A stable record missing a required field means the durable tier's
// invariant was violated upstream. That is a programming error, so this
// panics rather than silently mismatching.
func (r *Record) MatchesPort(port *models.SerialPort, keySet KeySet) bool {
	if r.Token != "" {
		return false
	}

	if keySet == KeySetInstanceID {
		if r.DeviceInstanceID == "" {
			panic("identity: stable record missing " + KeyDeviceInstanceID)
		}

		return port.DeviceInstanceID == r.DeviceInstanceID
	}

	if r.VendorID == nil || r.ProductID == nil || r.SerialNumber == nil {
		panic("identity: stable record missing usb identity fields")
	}

	if !port.HasVendorID || !port.HasProductID || port.SerialNumber == nil {
		// Callers gate the durable scan on CanStorePersistentEntry.
		panic("identity: descriptor failed classification during match")
	}

	if port.VendorID != *r.VendorID || port.ProductID != *r.ProductID ||
		*port.SerialNumber != *r.SerialNumber {
		return false
	}

	if keySet == KeySetUSBTripleDriver {
		if r.USBDriverName == nil {
			panic("identity: stable record missing " + KeyUSBDriverName)
		}

		if port.USBDriverName == nil || *port.USBDriverName != *r.USBDriverName {
			return false
		}
	}

	return true
}

// IsTokenRecord reports whether the record identifies its device only by
// the per-connection token.
func (r *Record) IsTokenRecord() bool {
	return r.Token != ""
}

// MarshalRecord encodes the record into the keyed-map bytes persisted by
// the durable store.
func MarshalRecord(rec *Record) ([]byte, error) {
	if rec == nil {
		return nil, errNilRecord
	}

	return json.Marshal(rec)
}

// UnmarshalRecord decodes bytes retrieved from the durable store.
func UnmarshalRecord(data []byte) (*Record, error) {
	if len(data) == 0 {
		return nil, errEmptyRecord
	}

	rec := &Record{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("identity: failed to unmarshal record: %w", err)
	}

	return rec, nil
}
