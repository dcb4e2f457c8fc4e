package identity

import (
	"github.com/serialgate/serialgate/pkg/models"
)

// Classifier decides whether a port's identity is stable enough to persist
// across restarts. It is a pure function of the descriptor and the key set:
// the same descriptor always classifies the same way, both at grant time
// and when the serializer re-checks before writing a record.
type Classifier struct {
	keySet KeySet
}

// NewClassifier returns a classifier for the given key set.
func NewClassifier(keySet KeySet) Classifier {
	return Classifier{keySet: keySet}
}

// KeySet returns the key set the classifier was built with.
func (c Classifier) KeySet() KeySet {
	return c.keySet
}

// CanStorePersistentEntry reports whether the port exposes an identity that
// will still match the same physical device after a reconnect or restart.
// Ports rejected here are only ever granted ephemerally.
func (c Classifier) CanStorePersistentEntry(port *models.SerialPort) bool {
	// Without a display name the path name stands in for it, and path
	// names are recycled by the OS across different physical devices
	// (on Linux "ttyUSB0" is whatever adapter got plugged in first).
	if port.DisplayName == nil || *port.DisplayName == "" {
		return false
	}

	if c.keySet == KeySetInstanceID {
		return port.DeviceInstanceID != ""
	}

	if !port.HasVendorID || !port.HasProductID ||
		port.SerialNumber == nil || *port.SerialNumber == "" {
		return false
	}

	if c.keySet == KeySetUSBTripleDriver {
		return port.USBDriverName != nil && *port.USBDriverName != ""
	}

	return true
}
