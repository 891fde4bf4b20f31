package link_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkhubd/linkhubd/internal/link"
)

func TestDataTypeTags(t *testing.T) {
	assert.Nil(t, link.DataTypeAny.Tag())
	assert.Equal(t, []byte{0x25, 0x00}, link.DataTypeSpeeds.Tag())
	assert.Equal(t, []byte{0x10, 0x00}, link.DataTypeTemperatures.Tag())
	assert.Equal(t, []byte{0x07, 0x00}, link.DataTypeFixedPercent.Tag())
	assert.Equal(t, []byte{0x21, 0x00}, link.DataTypeSubDevices.Tag())
}

func TestEndpointResponse_Payload(t *testing.T) {
	raw := []byte{0x00, 0x00, 0x25, 0x00, 0xaa, 0xbb, 0x02, 0xcc}

	t.Run("tagged response skips prefix plus tag length", func(t *testing.T) {
		resp := link.EndpointResponse{Raw: raw, Type: link.DataTypeSpeeds}
		payload, err := resp.Payload()
		require.NoError(t, err)
		assert.Equal(t, []byte{0x02, 0xcc}, payload)
	})

	t.Run("wildcard response skips only the fixed prefix", func(t *testing.T) {
		resp := link.EndpointResponse{Raw: raw, Type: link.DataTypeAny}
		payload, err := resp.Payload()
		require.NoError(t, err)
		assert.Equal(t, []byte{0xaa, 0xbb, 0x02, 0xcc}, payload)
	})
}

func TestEndpointResponse_PayloadTooShort(t *testing.T) {
	resp := link.EndpointResponse{
		Raw:  []byte{0x00, 0x00, 0x10, 0x00, 0x01},
		Type: link.DataTypeTemperatures,
	}

	_, err := resp.Payload()
	require.Error(t, err)
	assert.ErrorIs(t, err, link.ErrMalformedResponse)
}
