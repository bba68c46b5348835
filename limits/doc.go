// Package limits provides centralized size constants and validation functions
// for filebot.
//
// # Size Hierarchy
//
//   - MaxPacketSize (2048 bytes): the datagram buffer of the UDP transport.
//   - MaxChunkSize: the largest file data chunk that fits in one packet after the
//     packet type byte and the 4-byte file id.
//   - MaxFileNameLength (255 bytes): typical filesystem limit for a single name.
//   - MaxMessageLength (1372 bytes): the Tox protocol limit for plaintext messages.
//   - DefaultMaxFileSize (240 MiB): ceiling applied to transfer offers before they
//     reach the transfer queue.
//
// # Validation Functions
//
//	if err := limits.ValidateFileSize(size, opts.MaxFileSize); err != nil {
//	    // errors.Is(err, limits.ErrFileTooLarge)
//	}
package limits
