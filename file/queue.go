package file

import (
	"fmt"
	"slices"
	"time"

	"github.com/sirupsen/logrus"
)

// ActiveLimit is the default number of transfers allowed to receive at once.
const ActiveLimit = 20

// DefaultStagingDir is the directory incoming files are written to when no
// other directory is configured.
const DefaultStagingDir = "incomplete"

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithActiveLimit overrides ActiveLimit. Non-positive values are ignored.
func WithActiveLimit(limit int) QueueOption {
	return func(q *Queue) {
		if limit > 0 {
			q.limit = limit
		}
	}
}

// WithStallTimeout enables ExpireStalled. Zero disables stall detection.
func WithStallTimeout(timeout time.Duration) QueueOption {
	return func(q *Queue) {
		q.stallTimeout = timeout
	}
}

// WithTimeProvider sets a custom time provider for deterministic testing.
func WithTimeProvider(tp TimeProvider) QueueOption {
	return func(q *Queue) {
		if tp != nil {
			q.timeProvider = tp
		}
	}
}

// Queue owns every in-progress inbound transfer. Transfers are partitioned
// into an ordered, capacity-bounded active set and an insertion-ordered
// waiting set; a transfer's State always agrees with the set holding it.
//
// Queue is not safe for concurrent use. All operations must be issued from a
// single goroutine in the order the transport delivered the events; Manager
// does this.
type Queue struct {
	dir          string
	limit        int
	signaler     Signaler
	active       []*Transfer
	waiting      []*Transfer
	stallTimeout time.Duration
	timeProvider TimeProvider
}

// NewQueue creates an empty queue writing into dir and emitting control
// signals through signaler.
func NewQueue(dir string, signaler Signaler, opts ...QueueOption) *Queue {
	q := &Queue{
		dir:          dir,
		limit:        ActiveLimit,
		signaler:     signaler,
		timeProvider: defaultTimeProvider,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.active = make([]*Transfer, 0, q.limit)

	logrus.WithFields(logrus.Fields{
		"function":      "NewQueue",
		"dir":           dir,
		"active_limit":  q.limit,
		"stall_timeout": q.stallTimeout,
	}).Info("Transfer queue created")

	return q
}

// Admit creates a transfer for an inbound offer. If the name is unusable or
// the sink cannot be created the peer is sent Kill and the error is returned.
// Otherwise the transfer becomes active and the peer is sent Accept, or, when
// the active set is full, it is queued silently until a slot frees up. An
// existing transfer with the same key is discarded first.
func (q *Queue) Admit(friendID, fileID uint32, name string) error {
	staleSlot := q.indexActive(friendID, fileID)
	if stale := q.take(friendID, fileID); stale != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "Admit",
			"friend_id": friendID,
			"file_id":   fileID,
			"state":     stale.State,
			"received":  stale.Received,
		}).Warn("Friend reused a file number; discarding stale transfer")
		_ = stale.Close()
	}

	t, err := newTransfer(q.dir, friendID, fileID, name, q.timeProvider)
	if err != nil {
		q.signal(friendID, fileID, ControlKill, nil)
		if staleSlot >= 0 {
			q.promoteInto(staleSlot)
		}
		return err
	}

	if len(q.active) < q.limit {
		q.active = append(q.active, t)
		q.signal(friendID, fileID, ControlAccept, nil)
	} else {
		t.State = StateQueued
		q.waiting = append(q.waiting, t)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Admit",
		"friend_id": friendID,
		"file_id":   fileID,
		"path":      t.Path,
		"state":     t.State,
		"active":    len(q.active),
		"waiting":   len(q.waiting),
	}).Info("Transfer admitted")

	return nil
}

// Write appends data to an active transfer. A transfer that is not active is a
// routing error and yields ErrTransferNotFound without side effects. A write
// failure sends Kill and evicts the transfer.
func (q *Queue) Write(friendID, fileID uint32, data []byte) error {
	i := q.indexActive(friendID, fileID)
	if i < 0 {
		return notActive(friendID, fileID)
	}

	if err := q.active[i].Append(data); err != nil {
		q.signal(friendID, fileID, ControlKill, nil)
		_ = q.Evict(friendID, fileID)
		return err
	}
	return nil
}

// Pause handles the peer announcing it paused an active transfer. The
// transfer moves to the waiting set; nothing is sent back.
func (q *Queue) Pause(friendID, fileID uint32) error {
	i := q.indexActive(friendID, fileID)
	if i < 0 {
		return notActive(friendID, fileID)
	}

	t := q.active[i]
	q.active = slices.Delete(q.active, i, i+1)
	t.State = StateWaiting
	q.waiting = append(q.waiting, t)

	logrus.WithFields(logrus.Fields{
		"function":  "Pause",
		"friend_id": friendID,
		"file_id":   fileID,
		"received":  t.Received,
	}).Info("Transfer paused by friend")

	return nil
}

// Resume handles the peer resuming a waiting transfer. With a free slot the
// transfer becomes active silently; otherwise it is queued and the peer is
// sent Pause until capacity frees up.
func (q *Queue) Resume(friendID, fileID uint32) error {
	j := q.indexWaiting(friendID, fileID)
	if j < 0 {
		return fmt.Errorf("%w: friend %d file %d is not waiting", ErrTransferNotFound, friendID, fileID)
	}

	t := q.waiting[j]
	if len(q.active) < q.limit {
		q.waiting = slices.Delete(q.waiting, j, j+1)
		q.activate(t)
		q.active = append(q.active, t)
	} else {
		t.State = StateQueued
		q.signal(friendID, fileID, ControlPause, nil)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Resume",
		"friend_id": friendID,
		"file_id":   fileID,
		"state":     t.State,
	}).Info("Transfer resumed by friend")

	return nil
}

// Evict removes an active transfer and releases its sink. The first queued
// transfer in waiting-set insertion order takes over the vacated slot and its
// peer is sent Accept. Apart from a failed re-offer in Admit, this is the only
// way a queued transfer is promoted.
func (q *Queue) Evict(friendID, fileID uint32) error {
	i := q.indexActive(friendID, fileID)
	if i < 0 {
		return notActive(friendID, fileID)
	}

	_ = q.active[i].Close()
	q.active = slices.Delete(q.active, i, i+1)
	q.promoteInto(i)
	return nil
}

// promoteInto moves the first queued transfer into the active set at position
// i and sends its peer Accept. It does nothing when no transfer is queued.
func (q *Queue) promoteInto(i int) {
	j := slices.IndexFunc(q.waiting, func(t *Transfer) bool { return t.State == StateQueued })
	if j < 0 {
		return
	}

	p := q.waiting[j]
	q.waiting = slices.Delete(q.waiting, j, j+1)
	q.activate(p)
	q.active = slices.Insert(q.active, min(i, len(q.active)), p)
	q.signal(p.FriendID, p.FileID, ControlAccept, nil)

	logrus.WithFields(logrus.Fields{
		"function":          "promoteInto",
		"promoted_friend":   p.FriendID,
		"promoted_file":     p.FileID,
		"remaining_waiting": len(q.waiting),
	}).Info("Promoted queued transfer")
}

// Finish completes an active transfer: it is evicted, the peer is sent
// Finished, and the path of the received file is returned. A second Finish for
// the same transfer yields ErrTransferNotFound.
func (q *Queue) Finish(friendID, fileID uint32) (string, error) {
	i := q.indexActive(friendID, fileID)
	if i < 0 {
		return "", notActive(friendID, fileID)
	}

	t := q.active[i]
	path := t.Path
	received := t.Received
	if err := q.Evict(friendID, fileID); err != nil {
		return "", err
	}
	q.signal(friendID, fileID, ControlFinished, nil)

	logrus.WithFields(logrus.Fields{
		"function":  "Finish",
		"friend_id": friendID,
		"file_id":   fileID,
		"path":      path,
		"received":  received,
	}).Info("Transfer finished")

	return path, nil
}

// Kill drops a transfer the peer cancelled, from whichever set holds it. An
// active transfer is evicted so a queued one can take its slot.
func (q *Queue) Kill(friendID, fileID uint32) error {
	if q.indexActive(friendID, fileID) >= 0 {
		return q.Evict(friendID, fileID)
	}

	j := q.indexWaiting(friendID, fileID)
	if j < 0 {
		return fmt.Errorf("%w: friend %d file %d", ErrTransferNotFound, friendID, fileID)
	}
	t := q.waiting[j]
	q.waiting = slices.Delete(q.waiting, j, j+1)
	_ = t.Close()

	logrus.WithFields(logrus.Fields{
		"function":  "Kill",
		"friend_id": friendID,
		"file_id":   fileID,
		"state":     t.State,
	}).Info("Waiting transfer killed by friend")

	return nil
}

// WentOffline marks every active transfer of friendID broken and moves it to
// the waiting set with its sink still open, so it can resume where it stopped.
// Transfers of other friends keep their place. It returns the number of
// transfers that broke.
func (q *Queue) WentOffline(friendID uint32) int {
	kept := make([]*Transfer, 0, q.limit)
	broken := 0
	for _, t := range q.active {
		if t.FriendID != friendID {
			kept = append(kept, t)
			continue
		}
		t.State = StateBroken
		q.waiting = append(q.waiting, t)
		broken++
	}
	q.active = kept

	logrus.WithFields(logrus.Fields{
		"function":  "WentOffline",
		"friend_id": friendID,
		"broken":    broken,
		"active":    len(q.active),
	}).Info("Friend went offline")

	return broken
}

// CameOnline offers every broken transfer of friendID for resumption: the
// friend is sent ResumeBroken with the number of bytes already on disk and the
// transfer waits for the friend to resume it. Broken transfers of other
// friends are left alone. It returns the number of transfers offered.
func (q *Queue) CameOnline(friendID uint32) int {
	offered := 0
	for _, t := range q.waiting {
		if t.FriendID != friendID || t.State != StateBroken {
			continue
		}
		q.signal(t.FriendID, t.FileID, ControlResumeBroken, EncodeResumeOffset(t.Received))
		t.State = StateWaiting
		offered++
	}

	logrus.WithFields(logrus.Fields{
		"function":  "CameOnline",
		"friend_id": friendID,
		"offered":   offered,
	}).Info("Friend came online")

	return offered
}

// ExpireStalled kills every active transfer that has received nothing within
// the stall timeout and evicts it. It does nothing when no timeout is set and
// returns the number of transfers killed.
func (q *Queue) ExpireStalled() int {
	if q.stallTimeout <= 0 {
		return 0
	}

	var stalled []*Transfer
	for _, t := range q.active {
		if t.Idle() >= q.stallTimeout {
			stalled = append(stalled, t)
		}
	}

	for _, t := range stalled {
		logrus.WithFields(logrus.Fields{
			"function":      "ExpireStalled",
			"friend_id":     t.FriendID,
			"file_id":       t.FileID,
			"received":      t.Received,
			"stall_timeout": q.stallTimeout,
		}).Warn("Transfer stalled: no data received within timeout period")
		q.signal(t.FriendID, t.FileID, ControlKill, nil)
		_ = q.Evict(t.FriendID, t.FileID)
	}

	return len(stalled)
}

// Close releases every sink and empties the queue. Nothing is sent to peers.
func (q *Queue) Close() error {
	var firstErr error
	for _, set := range [][]*Transfer{q.active, q.waiting} {
		for _, t := range set {
			if err := t.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	q.active = q.active[:0]
	q.waiting = nil
	return firstErr
}

// ActiveCount returns the number of transfers currently receiving.
func (q *Queue) ActiveCount() int {
	return len(q.active)
}

// WaitingCount returns the number of queued, waiting and broken transfers.
func (q *Queue) WaitingCount() int {
	return len(q.waiting)
}

// Limit returns the active limit.
func (q *Queue) Limit() int {
	return q.limit
}

// Lookup returns a snapshot of the transfer with the given key.
func (q *Queue) Lookup(friendID, fileID uint32) (TransferInfo, bool) {
	if i := q.indexActive(friendID, fileID); i >= 0 {
		return q.active[i].Info(), true
	}
	if j := q.indexWaiting(friendID, fileID); j >= 0 {
		return q.waiting[j].Info(), true
	}
	return TransferInfo{}, false
}

// Snapshot returns every transfer, active set first, each set in order.
func (q *Queue) Snapshot() []TransferInfo {
	infos := make([]TransferInfo, 0, len(q.active)+len(q.waiting))
	for _, t := range q.active {
		infos = append(infos, t.Info())
	}
	for _, t := range q.waiting {
		infos = append(infos, t.Info())
	}
	return infos
}

func (q *Queue) activate(t *Transfer) {
	t.State = StateActive
	t.touch()
}

// take removes a transfer from whichever set holds it without promoting.
func (q *Queue) take(friendID, fileID uint32) *Transfer {
	if i := q.indexActive(friendID, fileID); i >= 0 {
		t := q.active[i]
		q.active = slices.Delete(q.active, i, i+1)
		return t
	}
	if j := q.indexWaiting(friendID, fileID); j >= 0 {
		t := q.waiting[j]
		q.waiting = slices.Delete(q.waiting, j, j+1)
		return t
	}
	return nil
}

func (q *Queue) indexActive(friendID, fileID uint32) int {
	return slices.IndexFunc(q.active, func(t *Transfer) bool { return t.matches(friendID, fileID) })
}

func (q *Queue) indexWaiting(friendID, fileID uint32) int {
	return slices.IndexFunc(q.waiting, func(t *Transfer) bool { return t.matches(friendID, fileID) })
}

func (q *Queue) signal(friendID, fileID uint32, control ControlType, data []byte) {
	if q.signaler == nil {
		return
	}
	if err := q.signaler.SendFileControl(friendID, fileID, control, data); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "signal",
			"friend_id": friendID,
			"file_id":   fileID,
			"control":   control,
			"error":     err.Error(),
		}).Warn("Failed to send file control")
	}
}

func notActive(friendID, fileID uint32) error {
	return fmt.Errorf("%w: friend %d file %d is not active", ErrTransferNotFound, friendID, fileID)
}
