// Package friend implements the friend list of filebot.
//
// Friends are peers that sent a friend request; filebot accepts every request.
// Each friend gets a stable friend number, and the registry tracks the last
// address the friend was heard from and whether it is currently connected.
//
// Example:
//
//	reg := friend.NewRegistry(30 * time.Second)
//	reg.OnConnectionStatus(func(id uint32, status friend.ConnectionStatus) {
//	    fmt.Printf("friend %d is now %v\n", id, status)
//	})
//	id, _ := reg.Accept(publicKey, addr)
package friend

import (
	"fmt"
	"net"
	"time"
)

// ConnectionStatus represents the connection status to a friend.
type ConnectionStatus uint8

const (
	// ConnectionNone means the friend has not been heard from recently.
	ConnectionNone ConnectionStatus = iota
	// ConnectionUDP means the friend is reachable over UDP.
	ConnectionUDP
)

// String returns "offline" or "online".
func (s ConnectionStatus) String() string {
	switch s {
	case ConnectionNone:
		return "offline"
	case ConnectionUDP:
		return "online"
	default:
		return fmt.Sprintf("ConnectionStatus(%d)", uint8(s))
	}
}

// TimeProvider abstracts time operations for deterministic testing.
type TimeProvider interface {
	Now() time.Time
}

// DefaultTimeProvider uses the standard library time functions.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

var defaultTimeProvider TimeProvider = DefaultTimeProvider{}

// Friend represents a friend in the registry.
type Friend struct {
	ID               uint32
	PublicKey        [32]byte
	Addr             net.Addr
	ConnectionStatus ConnectionStatus
	LastSeen         time.Time
}

// IsOnline checks if the friend is currently online.
func (f *Friend) IsOnline() bool {
	return f.ConnectionStatus != ConnectionNone
}

// SavedFriend is the persisted form of a friend.
type SavedFriend struct {
	FriendID  uint32   `msgpack:"friend_id"`
	PublicKey [32]byte `msgpack:"public_key"`
	Address   string   `msgpack:"address"`
	LastSeen  int64    `msgpack:"last_seen"`
}
