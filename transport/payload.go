package transport

import (
	"encoding/binary"
	"errors"
	"unicode/utf8"
)

// PublicKeySize is the length of a friend public key.
const PublicKeySize = 32

// FileRequest is the payload of a PacketFileRequest: a friend offering a file.
type FileRequest struct {
	FileID   uint32
	FileSize uint64
	FileName string
}

// EncodeFileRequest creates a file request packet payload.
func EncodeFileRequest(req FileRequest) []byte {
	// Format: [file_id (4 bytes)][file_size (8 bytes)][name_len (2 bytes)][file_name]
	nameBytes := []byte(req.FileName)
	data := make([]byte, 4+8+2+len(nameBytes))

	binary.BigEndian.PutUint32(data[0:4], req.FileID)
	binary.BigEndian.PutUint64(data[4:12], req.FileSize)
	binary.BigEndian.PutUint16(data[12:14], uint16(len(nameBytes)))
	copy(data[14:], nameBytes)

	return data
}

// DecodeFileRequest parses a file request packet payload. The name is returned
// as received; validating it is up to the receiver.
func DecodeFileRequest(data []byte) (FileRequest, error) {
	if len(data) < 14 {
		return FileRequest{}, errors.New("file request packet too short")
	}

	nameLen := int(binary.BigEndian.Uint16(data[12:14]))
	if len(data) < 14+nameLen {
		return FileRequest{}, errors.New("file request packet truncated")
	}

	return FileRequest{
		FileID:   binary.BigEndian.Uint32(data[0:4]),
		FileSize: binary.BigEndian.Uint64(data[4:12]),
		FileName: string(data[14 : 14+nameLen]),
	}, nil
}

// FileControl is the payload of a PacketFileControl.
type FileControl struct {
	FileID  uint32
	Control uint8
	Data    []byte
}

// EncodeFileControl creates a file control packet payload.
func EncodeFileControl(ctl FileControl) []byte {
	// Format: [file_id (4 bytes)][control_type (1 byte)][control data]
	data := make([]byte, 5+len(ctl.Data))
	binary.BigEndian.PutUint32(data[0:4], ctl.FileID)
	data[4] = ctl.Control
	copy(data[5:], ctl.Data)
	return data
}

// DecodeFileControl parses a file control packet payload.
func DecodeFileControl(data []byte) (FileControl, error) {
	if len(data) < 5 {
		return FileControl{}, errors.New("file control packet too short")
	}

	ctl := FileControl{
		FileID:  binary.BigEndian.Uint32(data[0:4]),
		Control: data[4],
	}
	if len(data) > 5 {
		ctl.Data = make([]byte, len(data)-5)
		copy(ctl.Data, data[5:])
	}
	return ctl, nil
}

// EncodeFileData creates a file data packet payload.
func EncodeFileData(fileID uint32, chunk []byte) []byte {
	// Format: [file_id (4 bytes)][chunk_data]
	data := make([]byte, 4+len(chunk))
	binary.BigEndian.PutUint32(data[0:4], fileID)
	copy(data[4:], chunk)
	return data
}

// DecodeFileData parses a file data packet payload.
func DecodeFileData(data []byte) (uint32, []byte, error) {
	if len(data) < 4 {
		return 0, nil, errors.New("file data packet too short")
	}

	fileID := binary.BigEndian.Uint32(data[0:4])
	chunk := make([]byte, len(data)-4)
	copy(chunk, data[4:])

	return fileID, chunk, nil
}

// FriendRequest is the payload of a PacketFriendRequest.
type FriendRequest struct {
	PublicKey [PublicKeySize]byte
	Message   string
}

// EncodeFriendRequest creates a friend request packet payload.
func EncodeFriendRequest(req FriendRequest) []byte {
	// Format: [public_key (32 bytes)][message]
	data := make([]byte, PublicKeySize+len(req.Message))
	copy(data[:PublicKeySize], req.PublicKey[:])
	copy(data[PublicKeySize:], req.Message)
	return data
}

// DecodeFriendRequest parses a friend request packet payload.
func DecodeFriendRequest(data []byte) (FriendRequest, error) {
	if len(data) < PublicKeySize {
		return FriendRequest{}, errors.New("friend request packet too short")
	}

	var req FriendRequest
	copy(req.PublicKey[:], data[:PublicKeySize])
	req.Message = string(data[PublicKeySize:])
	return req, nil
}

// DecodeFriendMessage parses a friend message payload.
func DecodeFriendMessage(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", errors.New("friend message is not valid UTF-8")
	}
	return string(data), nil
}
