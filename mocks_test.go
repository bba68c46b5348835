package toxfilebot

import (
	"fmt"
	"net"
	"sync"

	"github.com/opd-ai/toxfilebot/transport"
)

// ---------------------------------------------------------------------------
// mockTransport records sent packets and lets tests inject received ones.
// ---------------------------------------------------------------------------

type mockTransport struct {
	mu       sync.Mutex
	packets  []sentPacket
	handlers map[transport.PacketType]transport.PacketHandler
	closed   bool
}

type sentPacket struct {
	packet *transport.Packet
	addr   net.Addr
}

func newMockTransport() *mockTransport {
	return &mockTransport{handlers: make(map[transport.PacketType]transport.PacketHandler)}
}

func (m *mockTransport) Send(packet *transport.Packet, addr net.Addr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packets = append(m.packets, sentPacket{packet: packet, addr: addr})
	return nil
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockTransport) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: testLocalPort}
}

func (m *mockTransport) RegisterHandler(packetType transport.PacketType, handler transport.PacketHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[packetType] = handler
}

func (m *mockTransport) receive(packetType transport.PacketType, data []byte, addr net.Addr) error {
	m.mu.Lock()
	handler, ok := m.handlers[packetType]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("no handler for %v", packetType)
	}
	return handler(&transport.Packet{PacketType: packetType, Data: data}, addr)
}

// sent returns the packets of one type sent so far.
func (m *mockTransport) sent(packetType transport.PacketType) []sentPacket {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []sentPacket
	for _, p := range m.packets {
		if p.packet.PacketType == packetType {
			out = append(out, p)
		}
	}
	return out
}

func peerAddr(port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
}

func peerKey(seed byte) [32]byte {
	var key [32]byte
	for i := range key {
		key[i] = seed ^ byte(i*7)
	}
	return key
}
