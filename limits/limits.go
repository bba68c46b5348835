// Package limits provides centralized size limits for the filebot protocol.
// This ensures consistent validation across the transport, the transfer queue
// and the bot.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxPacketSize is the largest datagram the transport reads or writes.
	MaxPacketSize = 2048

	// PacketHeaderSize is the packet type byte.
	PacketHeaderSize = 1

	// FileDataHeaderSize is the file id prefix of a file data payload.
	FileDataHeaderSize = 4

	// MaxChunkSize is the largest file data chunk that fits in one packet.
	MaxChunkSize = MaxPacketSize - PacketHeaderSize - FileDataHeaderSize

	// MaxFileNameLength is the maximum allowed file name length in bytes.
	// The value matches typical filesystem limits and fits in a uint16.
	MaxFileNameLength = 255

	// MaxMessageLength is the Tox protocol limit for plaintext friend messages.
	MaxMessageLength = 1372

	// MaxNameLength is the Tox protocol limit for a self name.
	MaxNameLength = 128

	// MaxStatusMessageLength is the Tox protocol limit for a status message.
	MaxStatusMessageLength = 1007

	// DefaultMaxFileSize is the default ceiling for inbound transfers (240 MiB).
	DefaultMaxFileSize uint64 = 240 * 1024 * 1024
)

var (
	// ErrFileTooLarge indicates an offered transfer exceeds the size ceiling.
	ErrFileTooLarge = errors.New("file too large")

	// ErrChunkTooLarge indicates that a chunk exceeds MaxChunkSize.
	ErrChunkTooLarge = errors.New("chunk too large")

	// ErrMessageEmpty indicates an empty message was provided
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates message exceeds maximum size
	ErrMessageTooLarge = errors.New("message too large")
)

// ValidateFileSize checks an offered transfer size against a ceiling.
// A zero ceiling disables the check.
func ValidateFileSize(size, ceiling uint64) error {
	if ceiling != 0 && size > ceiling {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, size, ceiling)
	}
	return nil
}

// ValidateChunk checks a file data chunk against MaxChunkSize.
func ValidateChunk(chunk []byte) error {
	if len(chunk) > MaxChunkSize {
		return fmt.Errorf("%w: chunk size %d exceeds limit %d", ErrChunkTooLarge, len(chunk), MaxChunkSize)
	}
	return nil
}

// ValidateMessage validates a friend message against MaxMessageLength.
// Returns an error with context if the message is empty or exceeds the limit.
func ValidateMessage(message []byte) error {
	if len(message) == 0 {
		return ErrMessageEmpty
	}
	if len(message) > MaxMessageLength {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrMessageTooLarge, len(message), MaxMessageLength)
	}
	return nil
}

// FormatSize renders a byte count using binary units, e.g. "240 MiB".
func FormatSize(size uint64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := uint64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	value := float64(size) / float64(div)
	suffix := "KMGTPE"[exp]
	if size%div == 0 {
		return fmt.Sprintf("%d %ciB", size/div, suffix)
	}
	return fmt.Sprintf("%.1f %ciB", value, suffix)
}
