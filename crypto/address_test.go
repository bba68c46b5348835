package crypto

import (
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}
	nospam, err := GenerateNospam()
	if err != nil {
		t.Fatalf("GenerateNospam failed: %v", err)
	}

	addr := NewAddress(kp.Public, nospam)
	s := addr.String()

	if len(s) != AddressSize*2 {
		t.Fatalf("Expected %d hex characters, got %d", AddressSize*2, len(s))
	}
	if s != strings.ToUpper(s) {
		t.Errorf("Address should be upper case: %s", s)
	}

	parsed, err := ParseAddress(s)
	if err != nil {
		t.Fatalf("ParseAddress failed: %v", err)
	}
	if *parsed != *addr {
		t.Errorf("Parsed address %+v differs from %+v", parsed, addr)
	}
}

func TestAddressChecksum(t *testing.T) {
	var pk [32]byte
	pk[0], pk[1] = 0xF0, 0x0F
	addr := NewAddress(pk, [4]byte{0x01, 0x02, 0x03, 0x04})

	// Even bytes fold into checksum[0], odd bytes into checksum[1].
	if want := [2]byte{0xF0 ^ 0x01 ^ 0x03, 0x0F ^ 0x02 ^ 0x04}; addr.Checksum != want {
		t.Errorf("Expected checksum %X, got %X", want, addr.Checksum)
	}
}

func TestParseAddressErrors(t *testing.T) {
	valid := NewAddress([32]byte{1, 2, 3}, [4]byte{9, 9, 9, 9}).String()

	tests := []struct {
		name  string
		input string
	}{
		{"too short", valid[:10]},
		{"not hex", strings.Repeat("Z", AddressSize*2)},
		{"bad checksum", valid[:len(valid)-2] + "00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseAddress(tt.input); err == nil {
				t.Errorf("Expected error for %q", tt.input)
			}
		})
	}
}
