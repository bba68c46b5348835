package friend

import "time"

const (
	// testPeerTimeout is the registry timeout used in expiry tests.
	testPeerTimeout = 30 * time.Second

	testPortA = 33446
	testPortB = 33447
)
