package toxfilebot

import "time"

const (
	testLocalPort = 33445
	testPeerPortA = 33446
	testPeerPortB = 33447
)

// testSaveInterval keeps maintenance ticks fast in tests.
const testSaveInterval = 20 * time.Millisecond

// testWait bounds every Eventually in this package.
const testWait = 5 * time.Second
