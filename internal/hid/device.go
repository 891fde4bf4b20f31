// Package hid provides abstractions for interacting with iCUE LINK System Hub hardware.
package hid

//go:generate mockgen -source=device.go -destination=mocks/device_mock.go -package=mocks

// DeviceInfo contains information about a HID device.
type DeviceInfo struct {
	Path         string
	VendorID     uint16
	ProductID    uint16
	Serial       string
	Manufacturer string
	Product      string
	Interface    int
}

// Device represents an interface for HID device operations.
// This interface allows for mocking in tests.
type Device interface {
	// Write sends an output report to the device.
	// The first byte is the report ID.
	Write(data []byte) (int, error)

	// Read reads an input report from the device. The call blocks until a
	// report arrives or the transport's own read timeout elapses.
	Read(data []byte) (int, error)

	// Close closes the device handle.
	Close() error

	// Info returns information about the device.
	Info() DeviceInfo
}
