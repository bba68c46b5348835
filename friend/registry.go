package friend

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrUnknownAddress indicates a packet came from an address no friend uses.
var ErrUnknownAddress = errors.New("address does not belong to a friend")

// ErrFriendNotFound indicates an unknown friend number.
var ErrFriendNotFound = errors.New("friend not found")

// ErrNoAddress indicates a friend restored from disk has not been heard from.
var ErrNoAddress = errors.New("friend has no known address")

// ConnectionStatusCallback receives every online/offline transition.
type ConnectionStatusCallback func(friendID uint32, status ConnectionStatus)

// Registry is the thread-safe friend list. It satisfies file.AddressResolver.
type Registry struct {
	// notifyMu is held from a status change until its callback returns, so
	// transitions are delivered in the order they happened.
	notifyMu       sync.Mutex
	mu             sync.RWMutex
	friends        map[uint32]*Friend
	byKey          map[[32]byte]uint32
	byAddr         map[string]uint32
	nextID         uint32
	timeout        time.Duration
	timeProvider   TimeProvider
	statusCallback ConnectionStatusCallback
}

type transition struct {
	friendID uint32
	status   ConnectionStatus
}

// NewRegistry creates an empty registry. Friends not heard from within
// timeout are reported offline by ExpireIdle; zero disables expiry.
func NewRegistry(timeout time.Duration) *Registry {
	return NewRegistryWithTimeProvider(timeout, defaultTimeProvider)
}

// NewRegistryWithTimeProvider creates a registry with a custom time provider.
func NewRegistryWithTimeProvider(timeout time.Duration, tp TimeProvider) *Registry {
	if tp == nil {
		tp = defaultTimeProvider
	}
	return &Registry{
		friends:      make(map[uint32]*Friend),
		byKey:        make(map[[32]byte]uint32),
		byAddr:       make(map[string]uint32),
		timeout:      timeout,
		timeProvider: tp,
	}
}

// OnConnectionStatus sets the callback for online/offline transitions. The
// callback runs on the goroutine that caused the transition, outside the
// registry lock, and transitions are delivered one at a time in order. The
// callback must not call Accept, Touch, ResolveFriendID or ExpireIdle.
func (r *Registry) OnConnectionStatus(callback ConnectionStatusCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusCallback = callback
}

// Accept adds the sender of a friend request, or refreshes the address of an
// existing friend with the same public key. The friend is marked online.
// It returns the friend number and whether the friend is new.
func (r *Registry) Accept(publicKey [32]byte, addr net.Addr) (uint32, bool) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	id, exists := r.byKey[publicKey]
	if !exists {
		id = r.nextID
		r.nextID++
		r.friends[id] = &Friend{ID: id, PublicKey: publicKey}
		r.byKey[publicKey] = id
	}
	f := r.friends[id]
	r.setAddrLocked(f, addr)
	changes := r.markSeenLocked(f)
	callback := r.statusCallback
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "Accept",
		"friend_id":  id,
		"public_key": fmt.Sprintf("%X", publicKey[:8]),
		"address":    addr.String(),
		"new":        !exists,
	}).Info("Friend request accepted")

	r.notify(callback, changes)
	return id, !exists
}

// Touch records that a packet arrived from addr and returns the friend it
// belongs to. A friend that was offline becomes online.
func (r *Registry) Touch(addr net.Addr) (uint32, error) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	id, ok := r.byAddr[addr.String()]
	if !ok {
		r.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrUnknownAddress, addr.String())
	}
	changes := r.markSeenLocked(r.friends[id])
	callback := r.statusCallback
	r.mu.Unlock()

	r.notify(callback, changes)
	return id, nil
}

// ResolveFriendID implements file.AddressResolver. Resolving an address counts
// as hearing from the friend, like Touch.
func (r *Registry) ResolveFriendID(addr net.Addr) (uint32, error) {
	return r.Touch(addr)
}

// FriendAddr implements file.AddressResolver.
func (r *Registry) FriendAddr(friendID uint32) (net.Addr, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.friends[friendID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrFriendNotFound, friendID)
	}
	if f.Addr == nil {
		return nil, fmt.Errorf("%w: %d", ErrNoAddress, friendID)
	}
	return f.Addr, nil
}

// ExpireIdle marks online friends that have not been heard from within the
// timeout offline and returns their numbers in ascending order.
func (r *Registry) ExpireIdle() []uint32 {
	if r.timeout <= 0 {
		return nil
	}

	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	now := r.timeProvider.Now()
	var changes []transition
	for id, f := range r.friends {
		if f.IsOnline() && now.Sub(f.LastSeen) >= r.timeout {
			f.ConnectionStatus = ConnectionNone
			changes = append(changes, transition{friendID: id, status: ConnectionNone})
		}
	}
	callback := r.statusCallback
	r.mu.Unlock()

	sort.Slice(changes, func(i, j int) bool { return changes[i].friendID < changes[j].friendID })
	r.notify(callback, changes)

	expired := make([]uint32, 0, len(changes))
	for _, c := range changes {
		expired = append(expired, c.friendID)
	}
	return expired
}

// Get returns a copy of a friend.
func (r *Registry) Get(friendID uint32) (Friend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.friends[friendID]
	if !ok {
		return Friend{}, false
	}
	return *f, true
}

// Count returns the number of friends.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.friends)
}

// Export returns the persisted form of every friend ordered by friend number.
func (r *Registry) Export() []SavedFriend {
	r.mu.RLock()
	defer r.mu.RUnlock()

	saved := make([]SavedFriend, 0, len(r.friends))
	for _, f := range r.friends {
		s := SavedFriend{
			FriendID:  f.ID,
			PublicKey: f.PublicKey,
			LastSeen:  f.LastSeen.Unix(),
		}
		if f.Addr != nil {
			s.Address = f.Addr.String()
		}
		saved = append(saved, s)
	}
	sort.Slice(saved, func(i, j int) bool { return saved[i].FriendID < saved[j].FriendID })
	return saved
}

// Import restores friends saved by Export. Restored friends are offline until
// heard from; friend numbers are kept so transfers stay attributable.
func (r *Registry) Import(saved []SavedFriend) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range saved {
		f := &Friend{
			ID:        s.FriendID,
			PublicKey: s.PublicKey,
			LastSeen:  time.Unix(s.LastSeen, 0),
		}
		if s.Address != "" {
			addr, err := net.ResolveUDPAddr("udp", s.Address)
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"function":  "Import",
					"friend_id": s.FriendID,
					"address":   s.Address,
					"error":     err.Error(),
				}).Warn("Ignoring unparsable friend address")
			} else {
				r.setAddrLocked(f, addr)
			}
		}
		r.friends[f.ID] = f
		r.byKey[f.PublicKey] = f.ID
		if f.ID >= r.nextID {
			r.nextID = f.ID + 1
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "Import",
		"friends":  len(saved),
	}).Info("Friends restored")
}

func (r *Registry) setAddrLocked(f *Friend, addr net.Addr) {
	if f.Addr != nil {
		delete(r.byAddr, f.Addr.String())
	}
	f.Addr = addr
	r.byAddr[addr.String()] = f.ID
}

func (r *Registry) markSeenLocked(f *Friend) []transition {
	f.LastSeen = r.timeProvider.Now()
	if f.IsOnline() {
		return nil
	}
	f.ConnectionStatus = ConnectionUDP
	return []transition{{friendID: f.ID, status: ConnectionUDP}}
}

func (r *Registry) notify(callback ConnectionStatusCallback, changes []transition) {
	for _, c := range changes {
		logrus.WithFields(logrus.Fields{
			"function":          "notify",
			"friend_id":         c.friendID,
			"connection_status": c.status,
		}).Info("Friend connection status changed")
		if callback != nil {
			callback(c.friendID, c.status)
		}
	}
}
