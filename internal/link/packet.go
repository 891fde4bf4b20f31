package link

import "fmt"

// packetHeaderSize is the length of the fixed outbound header 00 00 01.
const packetHeaderSize = 3

// BuildCommandPacket frames a command and optional trailing data into a
// zero-filled outbound report of exactly size bytes: byte 2 carries the
// mode/report marker 0x01, the command starts at byte 3 and the data follows
// the command immediately.
//
// The header, command and data must fit in size bytes; a violation is a bug
// in a protocol constant table, so BuildCommandPacket panics rather than
// returning an error.
func BuildCommandPacket(size int, cmd Command, data []byte) []byte {
	if packetHeaderSize+len(cmd)+len(data) > size {
		panic(fmt.Sprintf("link: command packet overflow: header+command+data is %d bytes, report is %d",
			packetHeaderSize+len(cmd)+len(data), size))
	}

	packet := make([]byte, size)
	packet[2] = 0x01
	n := copy(packet[packetHeaderSize:], cmd)
	copy(packet[packetHeaderSize+n:], data)
	return packet
}
