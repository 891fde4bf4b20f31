package link_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkhubd/linkhubd/internal/link"
)

func TestBuildCommandPacket(t *testing.T) {
	tests := []struct {
		name string
		size int
		cmd  link.Command
		data []byte
	}{
		{
			name: "command without data",
			size: 64,
			cmd:  link.CmdEnterSoftwareMode,
		},
		{
			name: "command with endpoint data",
			size: 64,
			cmd:  link.CmdOpenEndpoint,
			data: []byte{byte(link.EndpointSpeeds)},
		},
		{
			name: "full-size outbound report",
			size: link.PacketSizeOut,
			cmd:  link.CmdCloseEndpoint,
			data: []byte{byte(link.EndpointTemperatures)},
		},
		{
			name: "exact fit",
			size: 8,
			cmd:  link.Command{0xaa, 0xbb},
			data: []byte{0x01, 0x02, 0x03},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packet := link.BuildCommandPacket(tt.size, tt.cmd, tt.data)

			require.Len(t, packet, tt.size)
			assert.Equal(t, byte(0x00), packet[0])
			assert.Equal(t, byte(0x00), packet[1])
			assert.Equal(t, byte(0x01), packet[2])

			// Round trip: the command region reads back unchanged.
			assert.Equal(t, []byte(tt.cmd), packet[3:3+len(tt.cmd)])

			dataStart := 3 + len(tt.cmd)
			if len(tt.data) > 0 {
				assert.Equal(t, tt.data, packet[dataStart:dataStart+len(tt.data)])
			}

			// Everything past command+data stays zero-filled.
			tail := packet[dataStart+len(tt.data):]
			assert.True(t, bytes.Equal(tail, make([]byte, len(tail))), "trailing bytes must be zero")
		})
	}
}

func TestBuildCommandPacket_Overflow(t *testing.T) {
	assert.Panics(t, func() {
		link.BuildCommandPacket(5, link.CmdEnterSoftwareMode, nil)
	})
	assert.Panics(t, func() {
		link.BuildCommandPacket(8, link.Command{0x01, 0x02}, []byte{0x03, 0x04, 0x05, 0x06})
	})
}
