package dbus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkhubd/linkhubd/internal/link"
)

// mockTelemetry implements Telemetry for testing.
type mockTelemetry struct {
	speeds       []link.SpeedSensor
	temps        []link.TemperatureSensor
	version      string
	readErr      error
	lastChannels int
	lastPercent  uint8
}

func (m *mockTelemetry) ReadSpeeds() ([]link.SpeedSensor, error) {
	return m.speeds, m.readErr
}

func (m *mockTelemetry) ReadTemperatures() ([]link.TemperatureSensor, error) {
	return m.temps, m.readErr
}

func (m *mockTelemetry) FirmwareVersion() (string, error) {
	return m.version, m.readErr
}

func (m *mockTelemetry) SetFixedPercent(channels int, percent uint8) error {
	if m.readErr != nil {
		return m.readErr
	}
	m.lastChannels = channels
	m.lastPercent = percent
	return nil
}

// mockHubSource implements HubSource for testing.
type mockHubSource struct {
	hub Telemetry
}

func (m *mockHubSource) Hub() (Telemetry, error) {
	if m.hub == nil {
		return nil, ErrHubNotConnected
	}
	return m.hub, nil
}

func int16Ptr(v int16) *int16       { return &v }
func float64Ptr(v float64) *float64 { return &v }

func TestServer_GetSpeeds(t *testing.T) {
	hub := &mockTelemetry{
		speeds: []link.SpeedSensor{
			{Index: 0, Status: link.SensorStatusAvailable, RPM: int16Ptr(1870)},
			{Index: 1, Status: 0x01},
		},
	}
	server := NewServer(&mockHubSource{hub: hub})

	readings, dbusErr := server.GetSpeeds()
	require.Nil(t, dbusErr)
	require.Len(t, readings, 2)

	assert.True(t, readings[0].Available)
	assert.Equal(t, int16(1870), readings[0].RPM)
	assert.False(t, readings[1].Available)
	assert.Equal(t, int16(0), readings[1].RPM)
}

func TestServer_GetTemperatures(t *testing.T) {
	hub := &mockTelemetry{
		temps: []link.TemperatureSensor{
			{Index: 0, Status: link.SensorStatusAvailable, Celsius: float64Ptr(31.5)},
		},
	}
	server := NewServer(&mockHubSource{hub: hub})

	readings, dbusErr := server.GetTemperatures()
	require.Nil(t, dbusErr)
	require.Len(t, readings, 1)
	assert.True(t, readings[0].Available)
	assert.InDelta(t, 31.5, readings[0].Celsius, 0.001)
}

func TestServer_GetFirmwareVersion(t *testing.T) {
	server := NewServer(&mockHubSource{hub: &mockTelemetry{version: "2.5.18"}})

	version, dbusErr := server.GetFirmwareVersion()
	require.Nil(t, dbusErr)
	assert.Equal(t, "2.5.18", version)
}

func TestServer_HubNotConnected(t *testing.T) {
	server := NewServer(&mockHubSource{})

	_, dbusErr := server.GetSpeeds()
	require.NotNil(t, dbusErr)

	_, dbusErr = server.GetTemperatures()
	require.NotNil(t, dbusErr)

	_, dbusErr = server.GetFirmwareVersion()
	require.NotNil(t, dbusErr)

	dbusErr = server.SetFixedPercent(2, 50)
	require.NotNil(t, dbusErr)
}

func TestServer_ReadError(t *testing.T) {
	hub := &mockTelemetry{readErr: errors.New("read budget exhausted")}
	server := NewServer(&mockHubSource{hub: hub})

	_, dbusErr := server.GetSpeeds()
	require.NotNil(t, dbusErr)
	assert.Contains(t, dbusErr.Error(), "read budget exhausted")
}

func TestServer_SetFixedPercent(t *testing.T) {
	hub := &mockTelemetry{}
	server := NewServer(&mockHubSource{hub: hub})

	dbusErr := server.SetFixedPercent(4, 60)
	require.Nil(t, dbusErr)
	assert.Equal(t, 4, hub.lastChannels)
	assert.Equal(t, uint8(60), hub.lastPercent)
}

func TestServer_SetFixedPercent_ClampsPercent(t *testing.T) {
	hub := &mockTelemetry{}
	server := NewServer(&mockHubSource{hub: hub})

	dbusErr := server.SetFixedPercent(1, 250)
	require.Nil(t, dbusErr)
	assert.Equal(t, uint8(100), hub.lastPercent)
}

func TestServer_SetFixedPercent_InvalidChannels(t *testing.T) {
	server := NewServer(&mockHubSource{hub: &mockTelemetry{}})

	dbusErr := server.SetFixedPercent(0, 50)
	require.NotNil(t, dbusErr)
	assert.Contains(t, dbusErr.Error(), "channels")

	dbusErr = server.SetFixedPercent(maxChannels+1, 50)
	require.NotNil(t, dbusErr)
}

func TestServer_SetFixedPercent_RateLimited(t *testing.T) {
	hub := &mockTelemetry{}
	server := NewServer(&mockHubSource{hub: hub})

	// Exhaust the burst allowance; the next call must be rejected.
	for i := 0; i < rateLimitBurst; i++ {
		dbusErr := server.SetFixedPercent(1, 50)
		require.Nil(t, dbusErr, "call %d should be within the burst", i)
	}

	dbusErr := server.SetFixedPercent(1, 50)
	require.NotNil(t, dbusErr)
	assert.Contains(t, dbusErr.Error(), "rate limit")
}

func TestServer_EmitWithoutConnection(t *testing.T) {
	server := NewServer(&mockHubSource{})

	// Signal emission before Start (or after Stop) must be a no-op.
	assert.NotPanics(t, func() {
		server.EmitHubConnected("LH1234", "iCUE LINK System Hub")
		server.EmitHubDisconnected("LH1234")
		server.EmitTelemetryUpdated("LH1234")
	})
}

func TestServer_StopWithoutStart(t *testing.T) {
	server := NewServer(&mockHubSource{})
	assert.NoError(t, server.Stop())
}
