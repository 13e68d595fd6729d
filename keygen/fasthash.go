package keygen

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// FastHash generates keys as "{methodID}_{16 hex chars}" where the hex
// suffix is a 64-bit xxHash of the canonical argument encoding plus the
// policy version. This is the default generator: cheapest to compute,
// at the cost of human-unreadable keys.
type FastHash struct{}

// NewFastHash creates a FastHash generator.
func NewFastHash() *FastHash { return &FastHash{} }

// Generate implements Generator.
func (FastHash) Generate(methodID string, args []Arg, material KeyMaterial) (string, error) {
	h := xxhash.New()
	h.WriteString(methodID)
	h.Write(canonicalArgs(args))

	var versionBuf [8]byte
	binary.BigEndian.PutUint64(versionBuf[:], uint64(material.Version))
	h.Write(versionBuf[:])

	return fmt.Sprintf("%s_%016x", methodID, h.Sum64()), nil
}

var _ Generator = FastHash{}
