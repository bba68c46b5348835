package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrInvalidName indicates a peer-supplied file name that cannot be used as a
// staging file name.
var ErrInvalidName = errors.New("invalid transfer name")

// ErrSinkOpen indicates the filesystem rejected creation of the transfer sink.
var ErrSinkOpen = errors.New("cannot open transfer sink")

// ErrWrite indicates an I/O failure while appending received data.
var ErrWrite = errors.New("transfer write failed")

// ErrTransferNotFound indicates an operation referenced a (friend, file) pair
// that is not held in the expected set. Inbound events that produce it were
// routed for a transfer the queue never accepted.
var ErrTransferNotFound = errors.New("transfer not found")

// TransferState represents where a transfer sits in the queue. The queue set
// holding a transfer is derived from its state.
type TransferState uint8

const (
	// StateActive indicates the transfer is receiving and counts against the
	// active limit.
	StateActive TransferState = iota
	// StateQueued indicates the transfer was admitted or resumed while the
	// active set was full and may be promoted when a slot frees up.
	StateQueued
	// StateWaiting indicates the peer paused the transfer, or a broken transfer
	// was offered for resumption and the peer has not resumed it yet.
	StateWaiting
	// StateBroken indicates the transfer was active when its peer went offline.
	StateBroken
)

// String returns a human readable state name.
func (s TransferState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateQueued:
		return "queued"
	case StateWaiting:
		return "waiting"
	case StateBroken:
		return "broken"
	default:
		return fmt.Sprintf("TransferState(%d)", uint8(s))
	}
}

// IsActive reports whether a transfer in this state belongs to the active set.
func (s TransferState) IsActive() bool {
	return s == StateActive
}

// TimeProvider abstracts time operations for deterministic testing.
type TimeProvider interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// DefaultTimeProvider uses the standard library time functions.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

// Since returns the duration since t.
func (DefaultTimeProvider) Since(t time.Time) time.Duration { return time.Since(t) }

// defaultTimeProvider is the package-level default time provider.
var defaultTimeProvider TimeProvider = DefaultTimeProvider{}

// Transfer represents one inbound file transfer and its on-disk sink.
//
// A Transfer is owned by exactly one Queue, which is the only code allowed to
// write to or close the sink.
type Transfer struct {
	FriendID uint32
	FileID   uint32
	FileName string
	Path     string
	State    TransferState
	Received uint64

	sink         *os.File
	lastActivity time.Time
	timeProvider TimeProvider
}

// NewTransfer validates name, creates its sink under dir and returns an
// active transfer with nothing received yet.
func NewTransfer(dir string, friendID, fileID uint32, name string) (*Transfer, error) {
	return newTransfer(dir, friendID, fileID, name, defaultTimeProvider)
}

func newTransfer(dir string, friendID, fileID uint32, name string, tp TimeProvider) (*Transfer, error) {
	logrus.WithFields(logrus.Fields{
		"function":  "NewTransfer",
		"friend_id": friendID,
		"file_id":   fileID,
		"file_name": name,
	}).Debug("Creating inbound transfer")

	safeName, err := ValidateName(name)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "NewTransfer",
			"friend_id": friendID,
			"file_id":   fileID,
			"error":     err.Error(),
		}).Warn("Rejecting transfer name")
		return nil, err
	}

	path := filepath.Join(dir, safeName)
	sink, err := os.Create(path)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "NewTransfer",
			"friend_id": friendID,
			"file_id":   fileID,
			"path":      path,
			"error":     err.Error(),
		}).Error("Failed to create transfer sink")
		return nil, fmt.Errorf("%w: %w", ErrSinkOpen, err)
	}

	if tp == nil {
		tp = defaultTimeProvider
	}

	return &Transfer{
		FriendID:     friendID,
		FileID:       fileID,
		FileName:     safeName,
		Path:         path,
		State:        StateActive,
		sink:         sink,
		lastActivity: tp.Now(),
		timeProvider: tp,
	}, nil
}

// Append writes data to the sink and advances Received. Any error is fatal for
// the transfer; Received is only advanced on success.
func (t *Transfer) Append(data []byte) error {
	if t.sink == nil {
		return fmt.Errorf("%w: sink closed", ErrWrite)
	}

	if _, err := t.sink.Write(data); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "Append",
			"friend_id": t.FriendID,
			"file_id":   t.FileID,
			"received":  t.Received,
			"error":     err.Error(),
		}).Error("Failed to write transfer data")
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}

	t.Received += uint64(len(data))
	t.touch()
	return nil
}

// Close releases the sink. Calling Close more than once is a no-op.
func (t *Transfer) Close() error {
	if t.sink == nil {
		return nil
	}
	err := t.sink.Close()
	t.sink = nil
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "Close",
			"friend_id": t.FriendID,
			"file_id":   t.FileID,
			"path":      t.Path,
			"error":     err.Error(),
		}).Warn("Failed to close transfer sink")
	}
	return err
}

// isOpen reports whether the sink is still held.
func (t *Transfer) isOpen() bool {
	return t.sink != nil
}

// Idle returns how long the transfer has gone without receiving data or
// being (re)activated.
func (t *Transfer) Idle() time.Duration {
	return t.timeProvider.Since(t.lastActivity)
}

func (t *Transfer) touch() {
	t.lastActivity = t.timeProvider.Now()
}

func (t *Transfer) matches(friendID, fileID uint32) bool {
	return t.FriendID == friendID && t.FileID == fileID
}

// TransferInfo is a value snapshot of a transfer for inspection.
type TransferInfo struct {
	FriendID uint32
	FileID   uint32
	FileName string
	Path     string
	State    TransferState
	Received uint64
}

// Info returns a snapshot of the transfer.
func (t *Transfer) Info() TransferInfo {
	return TransferInfo{
		FriendID: t.FriendID,
		FileID:   t.FileID,
		FileName: t.FileName,
		Path:     t.Path,
		State:    t.State,
		Received: t.Received,
	}
}
