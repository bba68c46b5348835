package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/opd-ai/toxfilebot/limits"
	"github.com/sirupsen/logrus"
)

// readTimeout bounds each read so the loop notices Close promptly.
const readTimeout = 100 * time.Millisecond

// UDPTransport implements UDP-based communication.
// It satisfies the Transport interface.
type UDPTransport struct {
	conn     net.PacketConn
	handlers map[PacketType]PacketHandler
	mu       sync.RWMutex
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewUDPTransport creates a new UDP transport listener and starts its read
// loop.
func NewUDPTransport(listenAddr string) (*UDPTransport, error) {
	conn, err := net.ListenPacket("udp", listenAddr)
	if err != nil {
		return nil, err
	}
	return newUDPTransport(conn), nil
}

func newUDPTransport(conn net.PacketConn) *UDPTransport {
	ctx, cancel := context.WithCancel(context.Background())

	t := &UDPTransport{
		conn:     conn,
		handlers: make(map[PacketType]PacketHandler),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go t.processPackets()

	logrus.WithFields(logrus.Fields{
		"function":   "NewUDPTransport",
		"local_addr": conn.LocalAddr().String(),
	}).Info("UDP transport listening")

	return t
}

// RegisterHandler registers a handler for a specific packet type.
func (t *UDPTransport) RegisterHandler(packetType PacketType, handler PacketHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.handlers[packetType] = handler
}

// Send sends a packet to the specified address.
func (t *UDPTransport) Send(packet *Packet, addr net.Addr) error {
	data, err := packet.Serialize()
	if err != nil {
		return err
	}
	if len(data) > limits.MaxPacketSize {
		return errors.New("packet exceeds maximum datagram size")
	}

	_, err = t.conn.WriteTo(data, addr)
	return err
}

// Close shuts down the transport and waits for the read loop to exit.
func (t *UDPTransport) Close() error {
	t.cancel()
	err := t.conn.Close()
	<-t.done
	return err
}

// LocalAddr returns the local address the transport is listening on.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// processPackets reads datagrams until the transport is closed. Handlers run
// on this goroutine so packets are handled in the order they arrived.
func (t *UDPTransport) processPackets() {
	defer close(t.done)
	buffer := make([]byte, limits.MaxPacketSize)

	for {
		select {
		case <-t.ctx.Done():
			return
		default:
			t.processIncomingPacket(buffer)
		}
	}
}

// processIncomingPacket reads and processes a single incoming packet.
func (t *UDPTransport) processIncomingPacket(buffer []byte) {
	_ = t.conn.SetReadDeadline(time.Now().Add(readTimeout))

	n, addr, err := t.conn.ReadFrom(buffer)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return
		}
		if t.ctx.Err() == nil {
			logrus.WithFields(logrus.Fields{
				"function": "processIncomingPacket",
				"error":    err.Error(),
			}).Debug("UDP read failed")
		}
		return
	}

	packet, err := ParsePacket(buffer[:n])
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "processIncomingPacket",
			"from":     addr.String(),
			"error":    err.Error(),
		}).Debug("Dropping malformed packet")
		return
	}

	t.dispatchPacketToHandler(packet, addr)
}

// dispatchPacketToHandler finds and executes the appropriate packet handler.
func (t *UDPTransport) dispatchPacketToHandler(packet *Packet, addr net.Addr) {
	t.mu.RLock()
	handler, exists := t.handlers[packet.PacketType]
	t.mu.RUnlock()

	if !exists {
		return
	}

	if err := handler(packet, addr); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "dispatchPacketToHandler",
			"packet_type": packet.PacketType,
			"from":        addr.String(),
			"error":       err.Error(),
		}).Debug("Packet handler returned error")
	}
}
