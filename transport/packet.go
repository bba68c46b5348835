// Package transport implements the datagram transport filebot talks to its
// friends over.
//
// Example:
//
//	t, err := transport.NewUDPTransport(":33445")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	t.RegisterHandler(transport.PacketFileData, func(p *transport.Packet, addr net.Addr) error {
//	    fileID, chunk, err := transport.DecodeFileData(p.Data)
//	    ...
//	})
package transport

import (
	"errors"
	"fmt"
)

// PacketType identifies the type of a packet.
type PacketType byte

const (
	// PacketPing is an empty keepalive sent by friends.
	PacketPing PacketType = iota + 1
	// PacketFriendRequest carries the sender's public key and a message.
	PacketFriendRequest
	// PacketFriendMessage carries UTF-8 text.
	PacketFriendMessage

	// File transfer packet types
	PacketFileRequest
	PacketFileControl
	PacketFileData
)

// String returns the packet type name.
func (p PacketType) String() string {
	switch p {
	case PacketPing:
		return "ping"
	case PacketFriendRequest:
		return "friend_request"
	case PacketFriendMessage:
		return "friend_message"
	case PacketFileRequest:
		return "file_request"
	case PacketFileControl:
		return "file_control"
	case PacketFileData:
		return "file_data"
	default:
		return fmt.Sprintf("PacketType(%d)", byte(p))
	}
}

// Packet represents a protocol packet.
type Packet struct {
	PacketType PacketType
	Data       []byte
}

// Serialize converts a packet to a byte slice for transmission.
func (p *Packet) Serialize() ([]byte, error) {
	if p.Data == nil {
		return nil, errors.New("packet data is nil")
	}

	// Format: [packet type (1 byte)][data (variable length)]
	result := make([]byte, 1+len(p.Data))
	result[0] = byte(p.PacketType)
	copy(result[1:], p.Data)

	return result, nil
}

// ParsePacket converts a byte slice to a Packet structure.
func ParsePacket(data []byte) (*Packet, error) {
	if len(data) < 1 {
		return nil, errors.New("packet too short")
	}

	packet := &Packet{
		PacketType: PacketType(data[0]),
		Data:       make([]byte, len(data)-1),
	}

	copy(packet.Data, data[1:])

	return packet, nil
}
