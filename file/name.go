package file

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/opd-ai/toxfilebot/limits"
)

// ValidateName checks that a peer-supplied file name is usable as a single
// path segment inside the staging directory. It returns the name unchanged on
// success so the file lands under exactly the name the peer chose.
func ValidateName(name string) (string, error) {
	if !utf8.ValidString(name) {
		return "", fmt.Errorf("%w: not valid UTF-8", ErrInvalidName)
	}
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if len(name) > limits.MaxFileNameLength {
		return "", fmt.Errorf("%w: length %d exceeds %d", ErrInvalidName, len(name), limits.MaxFileNameLength)
	}
	// Both separators are rejected regardless of platform.
	if strings.ContainsAny(name, "/\\") {
		return "", fmt.Errorf("%w: contains a path separator", ErrInvalidName)
	}
	if strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: contains NUL", ErrInvalidName)
	}
	return name, nil
}
