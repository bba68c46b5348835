// Package file implements the receiving side of Tox file transfers: a bounded
// transfer queue and the packet-driven manager that owns it.
//
// # Overview
//
//   - Transfer: one incoming file, identified by (friend number, file number),
//     streaming its bytes into a staging file
//   - Queue: the active and waiting sets, enforcing the active limit and
//     emitting control signals to the sender
//   - Manager: decodes file packets, resolves friends and applies every queue
//     mutation on a single event-loop goroutine
//
// # Queue Placement
//
// A transfer is in exactly one of two sets. The active set holds at most
// Limit() transfers, each in StateActive; its order is significant because a
// freed slot is refilled in place. The waiting set holds everything else:
//
//	StateQueued   admitted over the limit, or resumed while full
//	StateWaiting  paused by the sender
//	StateBroken   its friend went offline mid-transfer
//
// When an active transfer leaves (finished, killed, failed, or replaced by a
// re-offer that could not be opened) the first StateQueued transfer takes its
// slot and the sender receives ControlAccept. Nothing else promotes a waiting
// transfer.
//
// # Control Signals
//
//	ControlAccept        start or continue sending
//	ControlPause         hold; the transfer is queued behind a full set
//	ControlKill          the transfer is abandoned
//	ControlFinished      the file was received completely
//	ControlResumeBroken  continue from an 8-byte big-endian offset
//
// # Manager
//
//	mgr := file.NewManager(udp, registry, file.ManagerOptions{
//	    StagingDir:  "incomplete",
//	    MaxFileSize: limits.DefaultMaxFileSize,
//	})
//	mgr.OnFinished(func(friendID, fileID uint32, path string) {
//	    log.Printf("received %s", path)
//	})
//	go mgr.Run(ctx)
//
// Transport handlers never touch the queue directly. They enqueue closures
// which Run executes in arrival order, so the queue needs no locking.
package file
