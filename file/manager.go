package file

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/opd-ai/toxfilebot/limits"
	"github.com/opd-ai/toxfilebot/transport"
	"github.com/sirupsen/logrus"
)

// ErrManagerStopped is returned when an event is submitted after Run exited.
var ErrManagerStopped = errors.New("file manager stopped")

// DefaultEventBuffer is the default capacity of the manager's event channel.
const DefaultEventBuffer = 256

// minStallCheckInterval bounds how often the stall sweep runs.
const minStallCheckInterval = time.Second

// AddressResolver maps between network addresses and friend numbers.
// This interface allows the file transfer manager to attribute incoming
// packets to the correct friend and to address control signals back.
type AddressResolver interface {
	// ResolveFriendID returns the friend ID associated with the given address,
	// or an error if the address does not belong to a known friend.
	ResolveFriendID(addr net.Addr) (uint32, error)

	// FriendAddr returns the last known address of a friend.
	FriendAddr(friendID uint32) (net.Addr, error)
}

// FinishedCallback is invoked on the manager loop when a transfer completes.
type FinishedCallback func(friendID, fileID uint32, path string)

// RejectedCallback is invoked on the manager loop when an offer is refused
// because it exceeds the size ceiling.
type RejectedCallback func(friendID uint32, req transport.FileRequest)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	StagingDir   string
	MaxFileSize  uint64
	ActiveLimit  int
	StallTimeout time.Duration
	EventBuffer  int
	TimeProvider TimeProvider
}

// Manager coordinates the transfer queue with the network transport layer.
// Packet handlers only decode and enqueue; Run applies the events to the queue
// one at a time, in the order the transport delivered them.
type Manager struct {
	transport    transport.Transport
	resolver     AddressResolver
	queue        *Queue
	maxFileSize  uint64
	stallTimeout time.Duration

	events     chan func()
	stopped    chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	onFinished FinishedCallback
	onRejected RejectedCallback
}

// NewManager creates a file transfer manager and registers its packet
// handlers on t.
func NewManager(t transport.Transport, resolver AddressResolver, opts ManagerOptions) *Manager {
	if opts.StagingDir == "" {
		opts.StagingDir = DefaultStagingDir
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}

	m := &Manager{
		transport:    t,
		resolver:     resolver,
		maxFileSize:  opts.MaxFileSize,
		stallTimeout: opts.StallTimeout,
		events:       make(chan func(), opts.EventBuffer),
		stopped:      make(chan struct{}),
	}
	m.queue = NewQueue(opts.StagingDir, m,
		WithActiveLimit(opts.ActiveLimit),
		WithStallTimeout(opts.StallTimeout),
		WithTimeProvider(opts.TimeProvider),
	)

	if t != nil {
		t.RegisterHandler(transport.PacketFileRequest, m.handleFileRequest)
		t.RegisterHandler(transport.PacketFileControl, m.handleFileControl)
		t.RegisterHandler(transport.PacketFileData, m.handleFileData)
	}

	logrus.WithFields(logrus.Fields{
		"function":      "NewManager",
		"staging_dir":   opts.StagingDir,
		"max_file_size": opts.MaxFileSize,
	}).Info("File transfer manager created with handlers registered")

	return m
}

// OnFinished sets the callback invoked when a transfer completes.
func (m *Manager) OnFinished(callback FinishedCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFinished = callback
}

// OnRejected sets the callback invoked when an oversized offer is refused.
func (m *Manager) OnRejected(callback RejectedCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRejected = callback
}

// Run applies queued events until ctx is cancelled. When a stall timeout is
// configured it also sweeps stalled transfers periodically. On return every
// transfer sink is released and further submissions fail with
// ErrManagerStopped.
func (m *Manager) Run(ctx context.Context) error {
	defer m.stop()

	var tick <-chan time.Time
	if m.stallTimeout > 0 {
		interval := m.stallTimeout / 2
		if interval < minStallCheckInterval {
			interval = minStallCheckInterval
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	logrus.WithFields(logrus.Fields{
		"function": "Run",
	}).Info("File transfer loop started")

	for {
		select {
		case <-ctx.Done():
			logrus.WithFields(logrus.Fields{
				"function": "Run",
				"active":   m.queue.ActiveCount(),
				"waiting":  m.queue.WaitingCount(),
			}).Info("File transfer loop stopping")
			return nil
		case fn := <-m.events:
			fn()
		case <-tick:
			m.queue.ExpireStalled()
		}
	}
}

func (m *Manager) stop() {
	m.stopOnce.Do(func() {
		close(m.stopped)
		if err := m.queue.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Run",
				"error":    err.Error(),
			}).Warn("Failed to release transfer sinks")
		}
	})
}

// Do runs fn against the queue on the manager loop and waits for it.
func (m *Manager) Do(ctx context.Context, fn func(q *Queue)) error {
	done := make(chan struct{})
	if err := m.enqueueContext(ctx, func() {
		defer close(done)
		fn(m.queue)
	}); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.stopped:
		return ErrManagerStopped
	}
}

// PeerOffline reports that a friend lost its connection.
func (m *Manager) PeerOffline(friendID uint32) error {
	return m.enqueue(func() {
		m.queue.WentOffline(friendID)
	})
}

// PeerOnline reports that a friend is reachable again.
func (m *Manager) PeerOnline(friendID uint32) error {
	return m.enqueue(func() {
		m.queue.CameOnline(friendID)
	})
}

// SendFileControl implements Signaler by sending a file control packet to the
// friend's last known address.
func (m *Manager) SendFileControl(friendID, fileID uint32, control ControlType, data []byte) error {
	if m.transport == nil {
		return errors.New("no transport configured")
	}
	if m.resolver == nil {
		return errors.New("no address resolver configured")
	}

	addr, err := m.resolver.FriendAddr(friendID)
	if err != nil {
		return fmt.Errorf("resolve friend %d: %w", friendID, err)
	}

	packet := &transport.Packet{
		PacketType: transport.PacketFileControl,
		Data: transport.EncodeFileControl(transport.FileControl{
			FileID:  fileID,
			Control: uint8(control),
			Data:    data,
		}),
	}

	logrus.WithFields(logrus.Fields{
		"function":  "SendFileControl",
		"friend_id": friendID,
		"file_id":   fileID,
		"control":   control,
	}).Debug("Sending file control")

	if err := m.transport.Send(packet, addr); err != nil {
		return fmt.Errorf("failed to send file control: %w", err)
	}
	return nil
}

func (m *Manager) enqueue(fn func()) error {
	return m.enqueueContext(context.Background(), fn)
}

func (m *Manager) enqueueContext(ctx context.Context, fn func()) error {
	select {
	case <-m.stopped:
		return ErrManagerStopped
	default:
	}

	select {
	case m.events <- fn:
		return nil
	case <-m.stopped:
		return ErrManagerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resolveFriend maps the packet source to a friend number.
func (m *Manager) resolveFriend(addr net.Addr, functionName string) (uint32, error) {
	if m.resolver == nil {
		return 0, errors.New("no address resolver configured")
	}

	friendID, err := m.resolver.ResolveFriendID(addr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": functionName,
			"address":  addr.String(),
			"error":    err.Error(),
		}).Warn("Dropping file packet from unknown address")
		return 0, err
	}
	return friendID, nil
}

// handleFileRequest processes incoming file transfer offers.
func (m *Manager) handleFileRequest(packet *transport.Packet, addr net.Addr) error {
	req, err := transport.DecodeFileRequest(packet.Data)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleFileRequest",
			"from":     addr.String(),
			"error":    err.Error(),
		}).Error("Failed to deserialize file request")
		return err
	}

	friendID, err := m.resolveFriend(addr, "handleFileRequest")
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function":  "handleFileRequest",
		"friend_id": friendID,
		"file_id":   req.FileID,
		"file_name": req.FileName,
		"file_size": req.FileSize,
	}).Info("Incoming file offer")

	if err := limits.ValidateFileSize(req.FileSize, m.maxFileSize); err != nil {
		return m.enqueue(func() {
			m.rejectOversize(friendID, req, err)
		})
	}

	return m.enqueue(func() {
		if err := m.queue.Admit(friendID, req.FileID, req.FileName); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":  "handleFileRequest",
				"friend_id": friendID,
				"file_id":   req.FileID,
				"error":     err.Error(),
			}).Warn("File offer refused")
		}
	})
}

func (m *Manager) rejectOversize(friendID uint32, req transport.FileRequest, cause error) {
	logrus.WithFields(logrus.Fields{
		"function":  "rejectOversize",
		"friend_id": friendID,
		"file_id":   req.FileID,
		"file_size": req.FileSize,
		"error":     cause.Error(),
	}).Warn("File offer exceeds size ceiling")

	if err := m.SendFileControl(friendID, req.FileID, ControlKill, nil); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "rejectOversize",
			"friend_id": friendID,
			"file_id":   req.FileID,
			"error":     err.Error(),
		}).Warn("Failed to send file control")
	}

	m.mu.RLock()
	callback := m.onRejected
	m.mu.RUnlock()
	if callback != nil {
		callback(friendID, req)
	}
}

// handleFileControl processes file transfer control messages sent by the
// friend about a transfer it is sending to us.
func (m *Manager) handleFileControl(packet *transport.Packet, addr net.Addr) error {
	ctl, err := transport.DecodeFileControl(packet.Data)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleFileControl",
			"from":     addr.String(),
			"error":    err.Error(),
		}).Error("Failed to deserialize file control")
		return err
	}

	friendID, err := m.resolveFriend(addr, "handleFileControl")
	if err != nil {
		return err
	}

	return m.enqueue(func() {
		m.applyControl(friendID, ctl.FileID, ControlType(ctl.Control))
	})
}

func (m *Manager) applyControl(friendID, fileID uint32, control ControlType) {
	var err error
	switch control {
	case ControlAccept:
		err = m.queue.Resume(friendID, fileID)
	case ControlPause:
		err = m.queue.Pause(friendID, fileID)
	case ControlKill:
		err = m.queue.Kill(friendID, fileID)
	case ControlFinished:
		var path string
		path, err = m.queue.Finish(friendID, fileID)
		if err == nil {
			m.mu.RLock()
			callback := m.onFinished
			m.mu.RUnlock()
			if callback != nil {
				callback(friendID, fileID, path)
			}
		}
	default:
		err = fmt.Errorf("unexpected control type: %v", control)
	}

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "applyControl",
			"friend_id": friendID,
			"file_id":   fileID,
			"control":   control,
			"error":     err.Error(),
		}).Warn("File control not applied")
	}
}

// handleFileData processes incoming file data chunks.
func (m *Manager) handleFileData(packet *transport.Packet, addr net.Addr) error {
	fileID, chunk, err := transport.DecodeFileData(packet.Data)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleFileData",
			"from":     addr.String(),
			"error":    err.Error(),
		}).Error("Failed to deserialize file data")
		return err
	}
	if err := limits.ValidateChunk(chunk); err != nil {
		return err
	}

	friendID, err := m.resolveFriend(addr, "handleFileData")
	if err != nil {
		return err
	}

	return m.enqueue(func() {
		if err := m.queue.Write(friendID, fileID, chunk); err != nil {
			level := logrus.ErrorLevel
			if errors.Is(err, ErrTransferNotFound) {
				level = logrus.WarnLevel
			}
			logrus.WithFields(logrus.Fields{
				"function":  "handleFileData",
				"friend_id": friendID,
				"file_id":   fileID,
				"error":     err.Error(),
			}).Log(level, "Failed to write chunk to transfer")
		}
	})
}
