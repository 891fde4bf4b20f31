package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkhubd/linkhubd/internal/dbus"
	"github.com/linkhubd/linkhubd/internal/link"
)

func int16Ptr(v int16) *int16       { return &v }
func float64Ptr(v float64) *float64 { return &v }

func TestFormatTelemetry(t *testing.T) {
	tests := []struct {
		name     string
		speeds   []link.SpeedSensor
		temps    []link.TemperatureSensor
		expected string
	}{
		{
			name:     "no sensors",
			expected: "Liquid: N/A | Pump: N/A RPM | Fans:  RPM",
		},
		{
			name: "pump and fans with liquid temperature",
			speeds: []link.SpeedSensor{
				{Index: 0, RPM: int16Ptr(1870)},
				{Index: 1, RPM: int16Ptr(750)},
				{Index: 2},
			},
			temps: []link.TemperatureSensor{
				{Index: 0, Celsius: float64Ptr(21.0)},
			},
			expected: "Liquid: 21.0°C | Pump: 1870 RPM | Fans: 750, N/A RPM",
		},
		{
			name: "unavailable pump slot",
			speeds: []link.SpeedSensor{
				{Index: 0, Status: 0x01},
				{Index: 1, RPM: int16Ptr(900)},
			},
			temps: []link.TemperatureSensor{
				{Index: 0, Status: 0x01},
			},
			expected: "Liquid: N/A | Pump: N/A RPM | Fans: 900 RPM",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatTelemetry(tt.speeds, tt.temps))
		})
	}
}

func TestHubHolder(t *testing.T) {
	holder := &hubHolder{}

	// Empty holder reports not connected.
	assert.Nil(t, holder.Current())
	_, err := holder.Hub()
	require.Error(t, err)
	assert.ErrorIs(t, err, dbus.ErrHubNotConnected)

	hub := &link.Hub{}
	holder.Set(hub)
	assert.Same(t, hub, holder.Current())

	telemetry, err := holder.Hub()
	require.NoError(t, err)
	assert.NotNil(t, telemetry)

	cleared := holder.Clear()
	assert.Same(t, hub, cleared)
	assert.Nil(t, holder.Current())
	assert.Nil(t, holder.Clear())
}
