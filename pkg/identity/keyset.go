// Package identity decides whether a serial port exposes an identity that
// is stable across reconnects and restarts, and converts port descriptors
// to and from the keyed records held by the durable permission store.
package identity

// KeySet selects which descriptor fields constitute a stable device
// identity on the host platform. The platform conditionals of the original
// design collapse into this single value, resolved once at startup and
// consumed uniformly by the classifier, the serializer and the matcher.
type KeySet int

const (
	// KeySetUSBTriple identifies devices by vendor id, product id and
	// serial number.
	KeySetUSBTriple KeySet = iota

	// KeySetInstanceID identifies devices by the vendor-supplied device
	// instance id that Windows reports.
	KeySetInstanceID

	// KeySetUSBTripleDriver is the USB triple plus the USB driver name.
	// macOS ships built-in drivers for common USB-to-serial adapters
	// while vendors still recommend their own; when both are loaded the
	// same device shows up as two logical endpoints, and the driver name
	// is the only field telling them apart.
	KeySetUSBTripleDriver
)

// KeySetForOS resolves the key set for a GOOS value.
func KeySetForOS(goos string) KeySet {
	switch goos {
	case "windows":
		return KeySetInstanceID
	case "darwin":
		return KeySetUSBTripleDriver
	default:
		return KeySetUSBTriple
	}
}

func (k KeySet) String() string {
	switch k {
	case KeySetInstanceID:
		return "instance-id"
	case KeySetUSBTripleDriver:
		return "usb-triple-driver"
	default:
		return "usb-triple"
	}
}
