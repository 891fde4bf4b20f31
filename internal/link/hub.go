package link

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/linkhubd/linkhubd/internal/hid"
)

// DefaultReadTimeout bounds how long a single command waits for a response
// carrying the solicited data type.
const DefaultReadTimeout = 500 * time.Millisecond

// Hub drives the command/response protocol against a single iCUE LINK
// System Hub.
//
// All methods are safe for concurrent use. Each logical operation holds an
// internal lock for its whole command sequence, so sequences from different
// callers never interleave on the shared HID channel; a second caller simply
// waits until the first sequence completes.
type Hub struct {
	device      hid.Device
	readTimeout time.Duration
	mu          sync.Mutex
	closed      bool
}

// HubOption is a functional option for configuring a Hub.
type HubOption func(*Hub)

// WithReadTimeout overrides the per-command response read budget.
func WithReadTimeout(d time.Duration) HubOption {
	return func(h *Hub) {
		h.readTimeout = d
	}
}

// NewHub creates a new Hub wrapping the given HID device.
func NewHub(device hid.Device, opts ...HubOption) *Hub {
	h := &Hub{
		device:      device,
		readTimeout: DefaultReadTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Serial returns the serial number of the hub.
// This method does not require locking as device info is immutable.
func (h *Hub) Serial() string {
	return h.device.Info().Serial
}

// Product returns the product name of the hub.
func (h *Hub) Product() string {
	return h.device.Info().Product
}

// sendCommand builds and writes one command packet, then reads inbound
// reports until one carries the solicited data type. With DataTypeAny the
// first report read is accepted unconditionally. Non-matching reports are
// discarded. The caller must hold h.mu.
func (h *Hub) sendCommand(cmd Command, data []byte, waitFor DataType) (EndpointResponse, error) {
	packet := BuildCommandPacket(PacketSizeOut, cmd, data)
	if _, err := h.device.Write(packet); err != nil {
		return EndpointResponse{}, fmt.Errorf("failed to write command packet: %w", err)
	}

	tag := waitFor.Tag()
	deadline := time.Now().Add(h.readTimeout)
	buf := make([]byte, PacketSize)
	for {
		n, err := h.device.Read(buf)
		if err != nil {
			return EndpointResponse{}, fmt.Errorf("failed to read response packet: %w", err)
		}
		if n > 0 {
			report := make([]byte, n)
			copy(report, buf[:n])
			if tag == nil || matchesTag(report, tag) {
				return EndpointResponse{Raw: report, Type: waitFor}, nil
			}
		}
		if !time.Now().Before(deadline) {
			return EndpointResponse{}, fmt.Errorf("%w: no %s report within %s",
				ErrProtocolTimeout, waitFor, h.readTimeout)
		}
	}
}

// command runs a single command exchange under the hub lock, discarding the
// response payload.
func (h *Hub) command(cmd Command, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}
	_, err := h.sendCommand(cmd, data, DataTypeAny)
	return err
}

// EnterSoftwareMode switches the hub to software-driven cooling control.
func (h *Hub) EnterSoftwareMode() error {
	return h.command(CmdEnterSoftwareMode, nil)
}

// EnterHardwareMode returns the hub to firmware-driven cooling control.
func (h *Hub) EnterHardwareMode() error {
	return h.command(CmdEnterHardwareMode, nil)
}

// FirmwareVersion reads the hub firmware version as "major.minor.patch".
func (h *Hub) FirmwareVersion() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return "", ErrHubClosed
	}

	resp, err := h.sendCommand(CmdReadFirmwareVersion, nil, DataTypeAny)
	if err != nil {
		return "", err
	}

	payload, err := resp.Payload()
	if err != nil {
		return "", err
	}
	if len(payload) < 4 {
		return "", fmt.Errorf("%w: firmware version payload is %d bytes",
			ErrMalformedResponse, len(payload))
	}

	major := payload[0]
	minor := payload[1]
	patch := binary.LittleEndian.Uint16(payload[2:4])
	return fmt.Sprintf("%d.%d.%d", major, minor, patch), nil
}

// ReadEndpoint fetches one typed telemetry snapshot from an endpoint.
//
// The whole close/open/read/close sequence runs under the hub lock. The
// leading close is defensive: the hub's endpoint state is stateful
// server-side, and an endpoint left open by an aborted session must be
// closed before it can be reopened, otherwise reads may stall or return
// stale data.
func (h *Hub) ReadEndpoint(endpoint Endpoint, dataType DataType) (EndpointResponse, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return EndpointResponse{}, ErrHubClosed
	}
	return h.readEndpointLocked(endpoint, dataType)
}

func (h *Hub) readEndpointLocked(endpoint Endpoint, dataType DataType) (EndpointResponse, error) {
	ep := []byte{byte(endpoint)}

	if _, err := h.sendCommand(CmdCloseEndpoint, ep, DataTypeAny); err != nil {
		return EndpointResponse{}, err
	}
	if _, err := h.sendCommand(CmdOpenEndpoint, ep, DataTypeAny); err != nil {
		return EndpointResponse{}, err
	}

	resp, err := h.sendCommand(CmdRead, nil, dataType)
	if err != nil {
		// Best-effort close so the endpoint is not left open device-side;
		// the read failure is the one worth surfacing.
		if _, closeErr := h.sendCommand(CmdCloseEndpoint, ep, DataTypeAny); closeErr != nil {
			log.Warn().Err(closeErr).Uint8("endpoint", byte(endpoint)).
				Msg("Failed to close endpoint after read failure")
		}
		return EndpointResponse{}, err
	}

	if _, err := h.sendCommand(CmdCloseEndpoint, ep, DataTypeAny); err != nil {
		return EndpointResponse{}, err
	}
	return resp, nil
}

// WriteEndpoint pushes a payload to an endpoint and waits for the matching
// acknowledgement, using the same defensive close/open/.../close sequence as
// ReadEndpoint. The written data is framed as a little-endian 16-bit length
// followed by the data-type tag and the payload.
func (h *Hub) WriteEndpoint(endpoint Endpoint, dataType DataType, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}

	ep := []byte{byte(endpoint)}
	tag := dataType.Tag()

	if _, err := h.sendCommand(CmdCloseEndpoint, ep, DataTypeAny); err != nil {
		return err
	}
	if _, err := h.sendCommand(CmdOpenEndpoint, ep, DataTypeAny); err != nil {
		return err
	}

	framed := make([]byte, 0, 2+len(tag)+len(data))
	framed = binary.LittleEndian.AppendUint16(framed, uint16(len(tag)+len(data)))
	framed = append(framed, tag...)
	framed = append(framed, data...)

	_, err := h.sendCommand(CmdWrite, framed, dataType)
	if err != nil {
		if _, closeErr := h.sendCommand(CmdCloseEndpoint, ep, DataTypeAny); closeErr != nil {
			log.Warn().Err(closeErr).Uint8("endpoint", byte(endpoint)).
				Msg("Failed to close endpoint after write failure")
		}
		return err
	}

	_, err = h.sendCommand(CmdCloseEndpoint, ep, DataTypeAny)
	return err
}

// ReadSpeeds polls the speeds endpoint and decodes the fan/pump RPM list.
func (h *Hub) ReadSpeeds() ([]SpeedSensor, error) {
	resp, err := h.ReadEndpoint(EndpointSpeeds, DataTypeSpeeds)
	if err != nil {
		return nil, err
	}
	return DecodeSpeedSensors(resp.Raw)
}

// ReadTemperatures polls the temperatures endpoint and decodes the probe list.
func (h *Hub) ReadTemperatures() ([]TemperatureSensor, error) {
	resp, err := h.ReadEndpoint(EndpointTemperatures, DataTypeTemperatures)
	if err != nil {
		return nil, err
	}
	return DecodeTemperatureSensors(resp.Raw)
}

// ReadSubDevices polls the sub-devices endpoint and returns the raw
// enumeration payload.
func (h *Hub) ReadSubDevices() ([]byte, error) {
	resp, err := h.ReadEndpoint(EndpointSubDevices, DataTypeSubDevices)
	if err != nil {
		return nil, err
	}
	return resp.Payload()
}

// SetFixedPercent drives every cooling channel at a fixed duty cycle.
// The hub expects a channel count followed by one little-endian 16-bit
// percent value per channel. Percentages above 100 are treated as 100%.
func (h *Hub) SetFixedPercent(channels int, percent uint8) error {
	if percent > 100 {
		percent = 100
	}

	data := make([]byte, 1+2*channels)
	data[0] = byte(channels)
	for i := 0; i < channels; i++ {
		binary.LittleEndian.PutUint16(data[1+2*i:], uint16(percent))
	}
	return h.WriteEndpoint(EndpointFixedPercent, DataTypeFixedPercent, data)
}

// Close returns the hub to firmware-driven mode and releases the device.
// Close is idempotent.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	// Best-effort: hand cooling control back to the firmware so fans do not
	// stay pinned at the last software-driven duty cycle.
	if _, err := h.sendCommand(CmdEnterHardwareMode, nil, DataTypeAny); err != nil {
		log.Warn().Err(err).Msg("Failed to restore hardware mode on close")
	}

	return h.device.Close()
}
