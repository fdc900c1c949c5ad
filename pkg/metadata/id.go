package metadata

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// IDLen is the length in bytes of PV and VG identifiers. Identifiers are
// fixed-length binary values; lookups compare all IDLen bytes exactly.
const IDLen = 32

// ID is a fixed-length binary identifier for a PV or VG.
//
// The zero value means "no identifier". Textual identifiers shorter than
// IDLen are zero-padded on the right, so identifiers created from the same
// text always compare equal.
type ID [IDLen]byte

// MakeID builds an ID from text, zero-padding to IDLen bytes. Text longer
// than IDLen bytes is truncated.
func MakeID(s string) ID {
	var id ID
	copy(id[:], s)
	return id
}

// ParseID builds an ID from text, rejecting text that does not fit.
func ParseID(s string) (ID, error) {
	if len(s) > IDLen {
		return ID{}, fmt.Errorf("identifier %q exceeds %d bytes", s, IDLen)
	}
	return MakeID(s), nil
}

// NewID generates a random identifier. The 16 random bytes of a UUID are
// hex-expanded to fill all IDLen bytes.
func NewID() ID {
	u := uuid.New()
	var id ID
	hex.Encode(id[:], u[:])
	return id
}

// IsZero reports whether no identifier is set.
func (id ID) IsZero() bool {
	return id == ID{}
}

// String returns the identifier as text with right zero-padding removed.
func (id ID) String() string {
	return string(bytes.TrimRight(id[:], "\x00"))
}
