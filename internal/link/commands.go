// Package link implements the command/response protocol spoken by the
// iCUE LINK System Hub over USB HID.
package link

const (
	// PacketSize is the size of an inbound HID report in bytes.
	PacketSize = 512

	// PacketSizeOut is the size of an outbound HID report in bytes,
	// including the leading report-id byte.
	PacketSizeOut = PacketSize + 1

	// endpointHandle is the fixed handle the hub expects in endpoint commands.
	endpointHandle byte = 0x01
)

// Command is an opaque byte sequence identifying a hub operation.
// Commands are protocol constants and must not be mutated.
type Command []byte

var (
	// CmdEnterSoftwareMode switches the hub to software-driven cooling.
	CmdEnterSoftwareMode = Command{0x01, 0x03, 0x00, 0x02}

	// CmdEnterHardwareMode returns the hub to firmware-driven cooling.
	CmdEnterHardwareMode = Command{0x01, 0x03, 0x00, 0x01}

	// CmdReadFirmwareVersion requests the hub firmware version.
	CmdReadFirmwareVersion = Command{0x02, 0x13}

	// CmdOpenEndpoint opens the endpoint named in the trailing data byte.
	CmdOpenEndpoint = Command{0x0d, endpointHandle}

	// CmdCloseEndpoint closes the endpoint named in the trailing data byte.
	CmdCloseEndpoint = Command{0x05, 0x01, endpointHandle}

	// CmdRead reads from the currently open endpoint.
	CmdRead = Command{0x08, endpointHandle}

	// CmdWrite writes to the currently open endpoint.
	CmdWrite = Command{0x06, endpointHandle}
)

// Endpoint is a single-byte identifier selecting a logical sub-resource
// on the hub.
type Endpoint byte

const (
	// EndpointSpeeds reports fan and pump speeds.
	EndpointSpeeds Endpoint = 0x17

	// EndpointFixedPercent accepts fixed duty-cycle speed writes.
	EndpointFixedPercent Endpoint = 0x18

	// EndpointTemperatures reports temperature probe readings.
	EndpointTemperatures Endpoint = 0x21

	// EndpointSubDevices reports the devices attached to the hub's channels.
	EndpointSubDevices Endpoint = 0x36
)

// DataType identifies the semantic content of a response payload.
//
// The zero value DataTypeAny is the wildcard: it has no wire tag and matches
// whatever report arrives first. It is a distinct variant rather than an
// empty byte sequence so it can never collide with a genuinely empty tag.
type DataType uint8

const (
	// DataTypeAny accepts the first report read, regardless of its tag.
	DataTypeAny DataType = iota
	// DataTypeSpeeds tags fan/pump speed payloads.
	DataTypeSpeeds
	// DataTypeTemperatures tags temperature payloads.
	DataTypeTemperatures
	// DataTypeFixedPercent tags fixed duty-cycle write acknowledgements.
	DataTypeFixedPercent
	// DataTypeSubDevices tags sub-device enumeration payloads.
	DataTypeSubDevices
)

// Tag returns the 2-byte wire tag for the data type, or nil for DataTypeAny.
func (d DataType) Tag() []byte {
	switch d {
	case DataTypeSpeeds:
		return []byte{0x25, 0x00}
	case DataTypeTemperatures:
		return []byte{0x10, 0x00}
	case DataTypeFixedPercent:
		return []byte{0x07, 0x00}
	case DataTypeSubDevices:
		return []byte{0x21, 0x00}
	default:
		return nil
	}
}

// String returns a human-readable name for the data type.
func (d DataType) String() string {
	switch d {
	case DataTypeAny:
		return "any"
	case DataTypeSpeeds:
		return "speeds"
	case DataTypeTemperatures:
		return "temperatures"
	case DataTypeFixedPercent:
		return "fixed-percent"
	case DataTypeSubDevices:
		return "sub-devices"
	default:
		return "unknown"
	}
}
