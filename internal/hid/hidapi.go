package hid

import (
	"fmt"

	karalabehid "github.com/karalabe/hid"
)

const (
	// CorsairVendorID is the USB vendor ID for Corsair.
	CorsairVendorID uint16 = 0x1b1c

	// LinkHubProductID is the USB product ID for the iCUE LINK System Hub.
	LinkHubProductID uint16 = 0x0c3f
)

// HIDAPIDevice wraps a karalabe/hid device to implement the Device interface.
type HIDAPIDevice struct {
	device karalabehid.Device // karalabe/hid.Device is an interface
	info   DeviceInfo
}

// Verify HIDAPIDevice implements Device interface.
var _ Device = (*HIDAPIDevice)(nil)

// NewHIDAPIDevice creates a new HIDAPIDevice from an open hid.Device.
func NewHIDAPIDevice(device karalabehid.Device, info DeviceInfo) *HIDAPIDevice {
	return &HIDAPIDevice{
		device: device,
		info:   info,
	}
}

// Write sends an output report to the device.
func (d *HIDAPIDevice) Write(data []byte) (int, error) {
	return d.device.Write(data)
}

// Read reads an input report from the device.
func (d *HIDAPIDevice) Read(data []byte) (int, error) {
	return d.device.Read(data)
}

// Close closes the device handle.
func (d *HIDAPIDevice) Close() error {
	return d.device.Close()
}

// Info returns information about the device.
func (d *HIDAPIDevice) Info() DeviceInfo {
	return d.info
}

// EnumerateHubs returns a list of all connected iCUE LINK System Hubs.
// Returns an error if device enumeration fails.
func EnumerateHubs() ([]DeviceInfo, error) {
	var hubs []DeviceInfo

	devices, err := karalabehid.Enumerate(CorsairVendorID, LinkHubProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate HID devices: %w", err)
	}

	for _, device := range devices {
		hubs = append(hubs, DeviceInfo{
			Path:         device.Path,
			VendorID:     device.VendorID,
			ProductID:    device.ProductID,
			Serial:       device.Serial,
			Manufacturer: device.Manufacturer,
			Product:      device.Product,
			Interface:    device.Interface,
		})
	}

	return hubs, nil
}

// OpenHub opens a connection to an iCUE LINK System Hub by serial number.
// If serial is empty, opens the first available hub.
func OpenHub(serial string) (*HIDAPIDevice, error) {
	devices, err := karalabehid.Enumerate(CorsairVendorID, LinkHubProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	for _, deviceInfo := range devices {
		if serial != "" && deviceInfo.Serial != serial {
			continue
		}

		device, err := deviceInfo.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open hub %s: %w", deviceInfo.Serial, err)
		}

		info := DeviceInfo{
			Path:         deviceInfo.Path,
			VendorID:     deviceInfo.VendorID,
			ProductID:    deviceInfo.ProductID,
			Serial:       deviceInfo.Serial,
			Manufacturer: deviceInfo.Manufacturer,
			Product:      deviceInfo.Product,
			Interface:    deviceInfo.Interface,
		}

		return NewHIDAPIDevice(device, info), nil
	}

	if serial != "" {
		return nil, fmt.Errorf("hub with serial %s not found", serial)
	}
	return nil, fmt.Errorf("no iCUE LINK System Hub found")
}
