package link_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkhubd/linkhubd/internal/link"
)

// telemetryResponse assembles an inbound report with the given record count
// byte and sensor records at the protocol's fixed offsets.
func telemetryResponse(count byte, records ...[]byte) []byte {
	buf := make([]byte, 7)
	buf[6] = count
	for _, rec := range records {
		buf = append(buf, rec...)
	}
	return buf
}

func TestDecodeSpeedSensors(t *testing.T) {
	response := telemetryResponse(2,
		[]byte{0x00, 0xe8, 0x03}, // available, 0x03e8 = 1000 RPM
		[]byte{0x01, 0x00, 0x00}, // unavailable
	)

	sensors, err := link.DecodeSpeedSensors(response)
	require.NoError(t, err)
	require.Len(t, sensors, 2)

	assert.Equal(t, 0, sensors[0].Index)
	assert.True(t, sensors[0].Available())
	require.NotNil(t, sensors[0].RPM)
	assert.Equal(t, int16(1000), *sensors[0].RPM)

	assert.Equal(t, 1, sensors[1].Index)
	assert.False(t, sensors[1].Available())
	assert.Nil(t, sensors[1].RPM, "unavailable reading must be absent, not zero")
}

func TestDecodeSpeedSensors_NegativeValue(t *testing.T) {
	response := telemetryResponse(1, []byte{0x00, 0xff, 0xff})

	sensors, err := link.DecodeSpeedSensors(response)
	require.NoError(t, err)
	require.Len(t, sensors, 1)
	require.NotNil(t, sensors[0].RPM)
	assert.Equal(t, int16(-1), *sensors[0].RPM)
}

func TestDecodeTemperatureSensors(t *testing.T) {
	response := telemetryResponse(1,
		[]byte{0x00, 0xd2, 0x00}, // available, 0x00d2 = 210 -> 21.0 C
	)

	sensors, err := link.DecodeTemperatureSensors(response)
	require.NoError(t, err)
	require.Len(t, sensors, 1)

	assert.Equal(t, 0, sensors[0].Index)
	assert.True(t, sensors[0].Available())
	require.NotNil(t, sensors[0].Celsius)
	assert.InDelta(t, 21.0, *sensors[0].Celsius, 0.001)
}

func TestDecodeTemperatureSensors_Unavailable(t *testing.T) {
	response := telemetryResponse(1, []byte{0x02, 0x34, 0x12})

	sensors, err := link.DecodeTemperatureSensors(response)
	require.NoError(t, err)
	require.Len(t, sensors, 1)
	assert.False(t, sensors[0].Available())
	assert.Equal(t, byte(0x02), sensors[0].Status)
	assert.Nil(t, sensors[0].Celsius)
}

func TestDecodeSensors_EmptyCount(t *testing.T) {
	response := telemetryResponse(0)

	speeds, err := link.DecodeSpeedSensors(response)
	require.NoError(t, err)
	assert.Empty(t, speeds)

	temps, err := link.DecodeTemperatureSensors(response)
	require.NoError(t, err)
	assert.Empty(t, temps)
}

func TestDecodeSensors_CountOverrunsBuffer(t *testing.T) {
	// Count claims 5 records but only one is present.
	response := telemetryResponse(5, []byte{0x00, 0xe8, 0x03})

	_, err := link.DecodeSpeedSensors(response)
	require.Error(t, err)
	assert.ErrorIs(t, err, link.ErrMalformedResponse)

	_, err = link.DecodeTemperatureSensors(response)
	require.Error(t, err)
	assert.ErrorIs(t, err, link.ErrMalformedResponse)
}

func TestDecodeSensors_ResponseTooShortForCount(t *testing.T) {
	_, err := link.DecodeSpeedSensors([]byte{0x00, 0x00, 0x25, 0x00})
	require.Error(t, err)
	assert.ErrorIs(t, err, link.ErrMalformedResponse)

	_, err = link.DecodeTemperatureSensors(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, link.ErrMalformedResponse)
}
