package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
)

// AddressSize is the length of a binary address: public key, nospam, checksum.
const AddressSize = 38

// Address is the printable identifier of the bot, consisting of a public key,
// a nospam value and a checksum.
type Address struct {
	PublicKey [32]byte
	Nospam    [4]byte
	Checksum  [2]byte
}

// NewAddress creates an Address from a public key and nospam value.
func NewAddress(publicKey [32]byte, nospam [4]byte) *Address {
	a := &Address{
		PublicKey: publicKey,
		Nospam:    nospam,
	}
	a.Checksum = a.calculateChecksum()
	return a
}

// ParseAddress parses an address from its hexadecimal representation and
// verifies its checksum.
func ParseAddress(s string) (*Address, error) {
	if len(s) != AddressSize*2 {
		return nil, errors.New("invalid address length")
	}

	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}

	a := &Address{}
	copy(a.PublicKey[:], data[0:32])
	copy(a.Nospam[:], data[32:36])
	copy(a.Checksum[:], data[36:38])

	if a.Checksum != a.calculateChecksum() {
		return nil, errors.New("invalid checksum")
	}

	return a, nil
}

// String returns the upper-case hexadecimal representation of the address.
func (a *Address) String() string {
	data := make([]byte, AddressSize)
	copy(data[0:32], a.PublicKey[:])
	copy(data[32:36], a.Nospam[:])
	copy(data[36:38], a.Checksum[:])
	return strings.ToUpper(hex.EncodeToString(data))
}

// calculateChecksum XORs the public key and nospam into two bytes.
func (a *Address) calculateChecksum() [2]byte {
	var checksum [2]byte
	for i := 0; i < 32; i++ {
		checksum[i%2] ^= a.PublicKey[i]
	}
	for i := 0; i < 4; i++ {
		checksum[i%2] ^= a.Nospam[i]
	}
	return checksum
}

// GenerateNospam returns a random nospam value.
func GenerateNospam() ([4]byte, error) {
	var nospam [4]byte
	_, err := rand.Read(nospam[:])
	return nospam, err
}
