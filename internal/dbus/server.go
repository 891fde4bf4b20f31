// SPDX-License-Identifier: GPL-3.0-only

// Package dbus provides the D-Bus service implementation for iCUE LINK hub telemetry.
package dbus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/linkhubd/linkhubd/internal/link"
)

// ErrHubNotConnected is returned when no hub is currently available.
var ErrHubNotConnected = errors.New("hub not connected")

// ErrRateLimitExceeded is returned when fan-control requests exceed the rate limit.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// ErrInvalidChannelCount is returned when an invalid channel count is provided.
var ErrInvalidChannelCount = errors.New("channels must be between 1 and 24")

const (
	// rateLimitPerSecond is the maximum number of fan-control writes per second.
	rateLimitPerSecond = 20

	// rateLimitBurst is the maximum burst size for fan-control writes.
	rateLimitBurst = 5

	// maxChannels is the largest channel count accepted by SetFixedPercent.
	// The iCUE LINK hub fans out to at most 24 devices across both channels.
	maxChannels = 24
)

const (
	// ServiceName is the D-Bus service name.
	ServiceName = "io.github.linkhubd.LinkHub"

	// ObjectPath is the D-Bus object path.
	ObjectPath = "/io/github/linkhubd/LinkHub"

	// InterfaceName is the D-Bus interface name.
	InterfaceName = "io.github.linkhubd.LinkHub"
)

// IntrospectXML is the D-Bus introspection XML for the service.
const IntrospectXML = `
<node name="` + ObjectPath + `">
  <interface name="` + InterfaceName + `">
    <method name="GetSpeeds">
      <arg name="speeds" type="a(bn)" direction="out"/>
    </method>
    <method name="GetTemperatures">
      <arg name="temperatures" type="a(bd)" direction="out"/>
    </method>
    <method name="GetFirmwareVersion">
      <arg name="version" type="s" direction="out"/>
    </method>
    <method name="SetFixedPercent">
      <arg name="channels" type="u" direction="in"/>
      <arg name="percent" type="u" direction="in"/>
    </method>
    <signal name="HubConnected">
      <arg name="serial" type="s"/>
      <arg name="productName" type="s"/>
    </signal>
    <signal name="HubDisconnected">
      <arg name="serial" type="s"/>
    </signal>
    <signal name="TelemetryUpdated">
      <arg name="serial" type="s"/>
    </signal>
  </interface>
  ` + introspect.IntrospectDataString + `
</node>
`

// Telemetry is the hub surface the D-Bus server needs.
// This allows for mocking in tests.
type Telemetry interface {
	// ReadSpeeds polls the hub for fan and pump speeds.
	ReadSpeeds() ([]link.SpeedSensor, error)

	// ReadTemperatures polls the hub for temperature probe readings.
	ReadTemperatures() ([]link.TemperatureSensor, error)

	// FirmwareVersion reads the hub firmware version.
	FirmwareVersion() (string, error)

	// SetFixedPercent drives every cooling channel at a fixed duty cycle.
	SetFixedPercent(channels int, percent uint8) error
}

// HubSource hands out the currently connected hub, or an error when the hub
// is unplugged.
type HubSource interface {
	Hub() (Telemetry, error)
}

// SpeedReading represents one speed slot returned via D-Bus.
// Serializes to D-Bus type (bn) - availability flag plus RPM.
type SpeedReading struct {
	Available bool
	RPM       int16
}

// TemperatureReading represents one temperature slot returned via D-Bus.
// Serializes to D-Bus type (bd) - availability flag plus degrees Celsius.
type TemperatureReading struct {
	Available bool
	Celsius   float64
}

// Server implements the D-Bus service for hub telemetry.
//
// Thread safety: the hub behind HubSource serializes its own command
// sequences; the connMu mutex protects the D-Bus connection field for
// signal emission.
type Server struct {
	conn        *dbus.Conn
	connMu      sync.RWMutex // Protects conn field only
	source      HubSource
	rateLimiter *rate.Limiter
}

// NewServer creates a new D-Bus server backed by the given hub source.
func NewServer(source HubSource) *Server {
	return &Server{
		source:      source,
		rateLimiter: rate.NewLimiter(rateLimitPerSecond, rateLimitBurst),
	}
}

// Start connects to the session bus and exports the service.
func (s *Server) Start() error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}

	// Ensure connection is closed if setup fails
	success := false
	defer func() {
		if !success {
			if closeErr := conn.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("Failed to close D-Bus connection during cleanup")
			}
		}
	}()

	// Export the server object
	err = conn.Export(s, ObjectPath, InterfaceName)
	if err != nil {
		return fmt.Errorf("failed to export server: %w", err)
	}

	// Export introspectable interface
	err = conn.Export(introspect.Introspectable(IntrospectXML), ObjectPath, "org.freedesktop.DBus.Introspectable")
	if err != nil {
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	// Request the service name
	reply, err := conn.RequestName(ServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("name %s already taken", ServiceName)
	}

	// Store connection with mutex protection
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	success = true
	log.Info().Str("service", ServiceName).Msg("D-Bus service started")
	return nil
}

// Stop disconnects from the session bus.
func (s *Server) Stop() error {
	s.connMu.Lock()
	conn := s.conn
	s.conn = nil
	s.connMu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// GetSpeeds returns the current fan and pump speeds.
// Unavailable slots report Available=false and an RPM of zero that carries
// no meaning.
func (s *Server) GetSpeeds() ([]SpeedReading, *dbus.Error) {
	hub, err := s.source.Hub()
	if err != nil {
		return nil, dbus.MakeFailedError(err)
	}

	sensors, err := hub.ReadSpeeds()
	if err != nil {
		log.Error().Err(err).Msg("Failed to read speeds")
		return nil, dbus.MakeFailedError(err)
	}

	result := make([]SpeedReading, len(sensors))
	for i, sensor := range sensors {
		result[i].Available = sensor.Available()
		if sensor.RPM != nil {
			result[i].RPM = *sensor.RPM
		}
	}

	log.Debug().Int("count", len(result)).Msg("Read speeds")
	return result, nil
}

// GetTemperatures returns the current temperature probe readings.
func (s *Server) GetTemperatures() ([]TemperatureReading, *dbus.Error) {
	hub, err := s.source.Hub()
	if err != nil {
		return nil, dbus.MakeFailedError(err)
	}

	sensors, err := hub.ReadTemperatures()
	if err != nil {
		log.Error().Err(err).Msg("Failed to read temperatures")
		return nil, dbus.MakeFailedError(err)
	}

	result := make([]TemperatureReading, len(sensors))
	for i, sensor := range sensors {
		result[i].Available = sensor.Available()
		if sensor.Celsius != nil {
			result[i].Celsius = *sensor.Celsius
		}
	}

	log.Debug().Int("count", len(result)).Msg("Read temperatures")
	return result, nil
}

// GetFirmwareVersion returns the hub firmware version string.
func (s *Server) GetFirmwareVersion() (string, *dbus.Error) {
	hub, err := s.source.Hub()
	if err != nil {
		return "", dbus.MakeFailedError(err)
	}

	version, err := hub.FirmwareVersion()
	if err != nil {
		log.Error().Err(err).Msg("Failed to read firmware version")
		return "", dbus.MakeFailedError(err)
	}

	log.Debug().Str("version", version).Msg("Read firmware version")
	return version, nil
}

// SetFixedPercent drives all cooling channels at a fixed duty cycle (0-100).
func (s *Server) SetFixedPercent(channels, percent uint32) *dbus.Error {
	if !s.rateLimiter.Allow() {
		log.Warn().Msg("Rate limit exceeded for SetFixedPercent")
		return dbus.MakeFailedError(ErrRateLimitExceeded)
	}

	if channels == 0 || channels > maxChannels {
		return dbus.MakeFailedError(ErrInvalidChannelCount)
	}

	hub, err := s.source.Hub()
	if err != nil {
		return dbus.MakeFailedError(err)
	}

	if percent > 100 {
		percent = 100
	}

	// #nosec G115 -- percent is clamped to 0-100, safe for uint8
	err = hub.SetFixedPercent(int(channels), uint8(percent))
	if err != nil {
		log.Error().Err(err).Msg("Failed to set fixed percent")
		return dbus.MakeFailedError(err)
	}

	log.Debug().Uint32("channels", channels).Uint32("percent", percent).Msg("Set fixed percent")
	return nil
}

// EmitHubConnected emits the HubConnected signal.
func (s *Server) EmitHubConnected(serial, productName string) {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	if conn == nil {
		return
	}

	err := conn.Emit(ObjectPath, InterfaceName+".HubConnected", serial, productName)
	if err != nil {
		log.Error().Err(err).Msg("Failed to emit HubConnected signal")
	}
	log.Info().Str("serial", serial).Str("product", productName).Msg("Hub connected")
}

// EmitHubDisconnected emits the HubDisconnected signal.
func (s *Server) EmitHubDisconnected(serial string) {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	if conn == nil {
		return
	}

	err := conn.Emit(ObjectPath, InterfaceName+".HubDisconnected", serial)
	if err != nil {
		log.Error().Err(err).Msg("Failed to emit HubDisconnected signal")
	}
	log.Info().Str("serial", serial).Msg("Hub disconnected")
}

// EmitTelemetryUpdated emits the TelemetryUpdated signal after a poll cycle.
func (s *Server) EmitTelemetryUpdated(serial string) {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	if conn == nil {
		return
	}

	err := conn.Emit(ObjectPath, InterfaceName+".TelemetryUpdated", serial)
	if err != nil {
		log.Error().Err(err).Msg("Failed to emit TelemetryUpdated signal")
	}
}
