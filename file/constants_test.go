package file

// Test network configuration constants.
const (
	testIP        = "127.0.0.1"
	testPort      = 33445
	testPeerAddr  = "127.0.0.1:33446"
	testPeerAddr2 = "127.0.0.1:33447"
)

// Test friend numbers.
const (
	testFriendA uint32 = 1
	testFriendB uint32 = 2
)

// testSmallLimit keeps capacity scenarios short.
const testSmallLimit = 2

// testResumeOffset is the byte count a broken transfer reports on reconnect.
const testResumeOffset = 4096
