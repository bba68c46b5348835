package file

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/opd-ai/toxfilebot/transport"
)

// mockTimeProvider provides deterministic time for testing.
type mockTimeProvider struct {
	currentTime time.Time
}

func (m *mockTimeProvider) Now() time.Time {
	return m.currentTime
}

func (m *mockTimeProvider) Since(t time.Time) time.Duration {
	return m.currentTime.Sub(t)
}

func (m *mockTimeProvider) advance(d time.Duration) {
	m.currentTime = m.currentTime.Add(d)
}

func newMockTimeProvider() *mockTimeProvider {
	return &mockTimeProvider{
		currentTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// signal is one control signal captured by recordingSignaler.
type signal struct {
	friendID uint32
	fileID   uint32
	control  ControlType
	data     []byte
}

// recordingSignaler implements Signaler and remembers every signal.
type recordingSignaler struct {
	signals []signal
	err     error
}

func (r *recordingSignaler) SendFileControl(friendID, fileID uint32, control ControlType, data []byte) error {
	r.signals = append(r.signals, signal{friendID: friendID, fileID: fileID, control: control, data: data})
	return r.err
}

func (r *recordingSignaler) count(control ControlType) int {
	n := 0
	for _, s := range r.signals {
		if s.control == control {
			n++
		}
	}
	return n
}

func (r *recordingSignaler) last() signal {
	if len(r.signals) == 0 {
		return signal{control: ControlType(255)}
	}
	return r.signals[len(r.signals)-1]
}

func (r *recordingSignaler) reset() {
	r.signals = nil
}

// mockTransport implements transport.Transport for testing.
type mockTransport struct {
	mu      sync.Mutex
	packets []sentPacket
	handler map[transport.PacketType]transport.PacketHandler
}

type sentPacket struct {
	packet *transport.Packet
	addr   net.Addr
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		packets: make([]sentPacket, 0),
		handler: make(map[transport.PacketType]transport.PacketHandler),
	}
}

func (m *mockTransport) Send(packet *transport.Packet, addr net.Addr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packets = append(m.packets, sentPacket{packet: packet, addr: addr})
	return nil
}

func (m *mockTransport) Close() error {
	return nil
}

func (m *mockTransport) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.ParseIP(testIP), Port: testPort}
}

func (m *mockTransport) RegisterHandler(packetType transport.PacketType, handler transport.PacketHandler) {
	m.handler[packetType] = handler
}

func (m *mockTransport) simulateReceive(packetType transport.PacketType, data []byte, addr net.Addr) error {
	handler, exists := m.handler[packetType]
	if !exists {
		return fmt.Errorf("no handler for %v", packetType)
	}
	return handler(&transport.Packet{PacketType: packetType, Data: data}, addr)
}

// controls decodes every file control packet sent so far.
func (m *mockTransport) controls() []transport.FileControl {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []transport.FileControl
	for _, p := range m.packets {
		if p.packet.PacketType != transport.PacketFileControl {
			continue
		}
		ctl, err := transport.DecodeFileControl(p.packet.Data)
		if err == nil {
			out = append(out, ctl)
		}
	}
	return out
}

// mockAddr implements net.Addr for testing.
type mockAddr struct {
	network string
	address string
}

func (m *mockAddr) Network() string {
	return m.network
}

func (m *mockAddr) String() string {
	return m.address
}

// mockResolver implements AddressResolver over a fixed table.
type mockResolver struct {
	byAddr map[string]uint32
	addrs  map[uint32]net.Addr
}

func newMockResolver() *mockResolver {
	return &mockResolver{
		byAddr: make(map[string]uint32),
		addrs:  make(map[uint32]net.Addr),
	}
}

func (m *mockResolver) add(friendID uint32, address string) net.Addr {
	addr := &mockAddr{network: "udp", address: address}
	m.byAddr[address] = friendID
	m.addrs[friendID] = addr
	return addr
}

func (m *mockResolver) ResolveFriendID(addr net.Addr) (uint32, error) {
	id, ok := m.byAddr[addr.String()]
	if !ok {
		return 0, errors.New("unknown address")
	}
	return id, nil
}

func (m *mockResolver) FriendAddr(friendID uint32) (net.Addr, error) {
	addr, ok := m.addrs[friendID]
	if !ok {
		return nil, errors.New("unknown friend")
	}
	return addr, nil
}
