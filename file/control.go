package file

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ControlType is a file control signal exchanged with the peer that owns a
// transfer, out-of-band from the file bytes.
type ControlType uint8

const (
	// ControlAccept tells the peer it may start or continue sending.
	ControlAccept ControlType = iota
	// ControlPause tells the peer to stop sending until accepted again.
	ControlPause
	// ControlKill aborts the transfer.
	ControlKill
	// ControlFinished acknowledges a completed transfer.
	ControlFinished
	// ControlResumeBroken asks the peer to resume from the offset carried in
	// the control data.
	ControlResumeBroken
)

// String returns the control name.
func (c ControlType) String() string {
	switch c {
	case ControlAccept:
		return "accept"
	case ControlPause:
		return "pause"
	case ControlKill:
		return "kill"
	case ControlFinished:
		return "finished"
	case ControlResumeBroken:
		return "resume_broken"
	default:
		return fmt.Sprintf("ControlType(%d)", uint8(c))
	}
}

// Signaler delivers control signals to the peer identified by friendID.
type Signaler interface {
	SendFileControl(friendID, fileID uint32, control ControlType, data []byte) error
}

// SignalerFunc is a function type that implements Signaler.
type SignalerFunc func(friendID, fileID uint32, control ControlType, data []byte) error

// SendFileControl implements Signaler for SignalerFunc.
func (f SignalerFunc) SendFileControl(friendID, fileID uint32, control ControlType, data []byte) error {
	return f(friendID, fileID, control, data)
}

// ResumeOffsetSize is the length of the ResumeBroken control data.
const ResumeOffsetSize = 8

// EncodeResumeOffset builds the ResumeBroken control data.
func EncodeResumeOffset(offset uint64) []byte {
	data := make([]byte, ResumeOffsetSize)
	binary.BigEndian.PutUint64(data, offset)
	return data
}

// DecodeResumeOffset parses the ResumeBroken control data.
func DecodeResumeOffset(data []byte) (uint64, error) {
	if len(data) < ResumeOffsetSize {
		return 0, errors.New("resume offset too short")
	}
	return binary.BigEndian.Uint64(data[:ResumeOffsetSize]), nil
}
