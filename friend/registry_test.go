package friend

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcceptAssignsStableNumbers(t *testing.T) {
	reg := NewRegistry(testPeerTimeout)

	idA, added := reg.Accept(testKey(1), udpAddr(testPortA))
	require.True(t, added)
	idB, added := reg.Accept(testKey(2), udpAddr(testPortB))
	require.True(t, added)
	assert.NotEqual(t, idA, idB)

	// A repeated request keeps the friend number and refreshes the address.
	again, added := reg.Accept(testKey(1), udpAddr(40000))
	assert.False(t, added)
	assert.Equal(t, idA, again)
	assert.Equal(t, 2, reg.Count())

	addr, err := reg.FriendAddr(idA)
	require.NoError(t, err)
	assert.Equal(t, udpAddr(40000).String(), addr.String())

	_, err = reg.Touch(udpAddr(testPortA))
	assert.ErrorIs(t, err, ErrUnknownAddress)
}

func TestAcceptMarksOnline(t *testing.T) {
	rec := &statusRecorder{}
	reg := NewRegistry(testPeerTimeout)
	reg.OnConnectionStatus(rec.record)

	id, _ := reg.Accept(testKey(1), udpAddr(testPortA))
	reg.Accept(testKey(1), udpAddr(testPortA))

	f, ok := reg.Get(id)
	require.True(t, ok)
	assert.True(t, f.IsOnline())
	assert.Equal(t, []statusChange{{friendID: id, status: ConnectionUDP}}, rec.all())
}

func TestResolveFriendID(t *testing.T) {
	reg := NewRegistry(testPeerTimeout)
	id, _ := reg.Accept(testKey(1), udpAddr(testPortA))

	got, err := reg.ResolveFriendID(udpAddr(testPortA))
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = reg.ResolveFriendID(udpAddr(testPortB))
	assert.ErrorIs(t, err, ErrUnknownAddress)

	_, err = reg.FriendAddr(99)
	assert.ErrorIs(t, err, ErrFriendNotFound)
}

func TestExpireIdleAndReconnect(t *testing.T) {
	clock := newMockTimeProvider()
	rec := &statusRecorder{}
	reg := NewRegistryWithTimeProvider(testPeerTimeout, clock)
	reg.OnConnectionStatus(rec.record)

	idA, _ := reg.Accept(testKey(1), udpAddr(testPortA))
	idB, _ := reg.Accept(testKey(2), udpAddr(testPortB))

	clock.advance(20 * time.Second)
	_, err := reg.Touch(udpAddr(testPortB))
	require.NoError(t, err)
	clock.advance(15 * time.Second)

	assert.Equal(t, []uint32{idA}, reg.ExpireIdle())
	assert.Empty(t, reg.ExpireIdle(), "offline friends are reported once")

	f, _ := reg.Get(idA)
	assert.False(t, f.IsOnline())
	f, _ = reg.Get(idB)
	assert.True(t, f.IsOnline())

	// Hearing from the friend again brings it back online.
	_, err = reg.Touch(udpAddr(testPortA))
	require.NoError(t, err)

	assert.Equal(t, []statusChange{
		{friendID: idA, status: ConnectionUDP},
		{friendID: idB, status: ConnectionUDP},
		{friendID: idA, status: ConnectionNone},
		{friendID: idA, status: ConnectionUDP},
	}, rec.all())
}

func TestTransitionsDeliveredInOrder(t *testing.T) {
	clock := newMockTimeProvider()
	reg := NewRegistryWithTimeProvider(testPeerTimeout, clock)
	id, _ := reg.Accept(testKey(1), udpAddr(testPortA))
	clock.advance(testPeerTimeout)

	rec := &statusRecorder{}
	touched := make(chan struct{})
	reg.OnConnectionStatus(func(friendID uint32, status ConnectionStatus) {
		rec.record(friendID, status)
		if status != ConnectionNone {
			return
		}
		// A packet from the friend arrives while the offline transition is
		// still being delivered.
		go func() {
			defer close(touched)
			_, _ = reg.Touch(udpAddr(testPortA))
		}()
		assert.Never(t, func() bool {
			select {
			case <-touched:
				return true
			default:
				return false
			}
		}, 50*time.Millisecond, 5*time.Millisecond)
	})

	assert.Equal(t, []uint32{id}, reg.ExpireIdle())

	select {
	case <-touched:
	case <-time.After(5 * time.Second):
		t.Fatal("Touch did not complete")
	}

	assert.Equal(t, []statusChange{
		{friendID: id, status: ConnectionNone},
		{friendID: id, status: ConnectionUDP},
	}, rec.all())
	f, _ := reg.Get(id)
	assert.True(t, f.IsOnline())
}

func TestExpireIdleDisabled(t *testing.T) {
	clock := newMockTimeProvider()
	reg := NewRegistryWithTimeProvider(0, clock)
	reg.Accept(testKey(1), udpAddr(testPortA))

	clock.advance(24 * time.Hour)
	assert.Nil(t, reg.ExpireIdle())
}

func TestExportImport(t *testing.T) {
	clock := newMockTimeProvider()
	reg := NewRegistryWithTimeProvider(testPeerTimeout, clock)
	idA, _ := reg.Accept(testKey(1), udpAddr(testPortA))
	idB, _ := reg.Accept(testKey(2), udpAddr(testPortB))

	saved := reg.Export()
	require.Len(t, saved, 2)
	assert.Equal(t, idA, saved[0].FriendID)
	assert.Equal(t, idB, saved[1].FriendID)
	assert.Equal(t, udpAddr(testPortA).String(), saved[0].Address)
	assert.Equal(t, clock.Now().Unix(), saved[0].LastSeen)

	restored := NewRegistry(testPeerTimeout)
	restored.Import(saved)
	assert.Equal(t, 2, restored.Count())

	f, ok := restored.Get(idB)
	require.True(t, ok)
	assert.Equal(t, testKey(2), f.PublicKey)
	assert.False(t, f.IsOnline(), "restored friends start offline")

	got, err := restored.ResolveFriendID(udpAddr(testPortB))
	require.NoError(t, err)
	assert.Equal(t, idB, got)

	// New friends never reuse a restored number.
	idC, added := restored.Accept(testKey(3), udpAddr(40001))
	require.True(t, added)
	assert.Greater(t, idC, idB)
}

func TestImportSkipsBadAddress(t *testing.T) {
	reg := NewRegistry(testPeerTimeout)
	reg.Import([]SavedFriend{{FriendID: 4, PublicKey: testKey(4), Address: "not an address"}})

	f, ok := reg.Get(4)
	require.True(t, ok)
	assert.Nil(t, f.Addr)

	_, err := reg.FriendAddr(4)
	assert.ErrorIs(t, err, ErrNoAddress)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry(time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr := udpAddr(40000 + i)
			reg.Accept(testKey(byte(i*10)), addr)
			for j := 0; j < 100; j++ {
				_, _ = reg.Touch(addr)
				reg.ExpireIdle()
				_ = reg.Export()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, reg.Count())
}

func TestConnectionStatusString(t *testing.T) {
	assert.Equal(t, "offline", ConnectionNone.String())
	assert.Equal(t, "online", ConnectionUDP.String())
	assert.Equal(t, fmt.Sprintf("ConnectionStatus(%d)", 9), ConnectionStatus(9).String())
}
