package friend

import (
	"net"
	"sync"
	"time"
)

// mockTimeProvider is a mock implementation of TimeProvider for testing.
type mockTimeProvider struct {
	mu        sync.Mutex
	fixedTime time.Time
}

func (m *mockTimeProvider) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fixedTime
}

func (m *mockTimeProvider) advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fixedTime = m.fixedTime.Add(d)
}

func newMockTimeProvider() *mockTimeProvider {
	return &mockTimeProvider{fixedTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// statusRecorder collects connection status callbacks.
type statusRecorder struct {
	mu      sync.Mutex
	changes []statusChange
}

type statusChange struct {
	friendID uint32
	status   ConnectionStatus
}

func (r *statusRecorder) record(friendID uint32, status ConnectionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, statusChange{friendID: friendID, status: status})
}

func (r *statusRecorder) all() []statusChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]statusChange(nil), r.changes...)
}

func udpAddr(port int) net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
}

func testKey(seed byte) [32]byte {
	var key [32]byte
	for i := range key {
		key[i] = seed + byte(i)
	}
	return key
}
