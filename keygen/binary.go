package keygen

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// binaryPayload is the schema-agnostic wire shape hashed by Binary. Only
// exported fields participate in gob encoding, and gob's encoding is
// stable for a fixed concrete type, which is what determinism here
// depends on (not wire compatibility across Go versions/types).
type binaryPayload struct {
	MethodID string
	Encoded  []string // canonicalValue(arg) per argument, in order
	Version  int
}

// Binary generates keys by gob-encoding (methodID, args, version) and
// hashing the result, trailing the output with "b" so Binary keys never
// collide with FastHash keys even on identical inputs.
type Binary struct{}

// NewBinary creates a Binary generator.
func NewBinary() *Binary { return &Binary{} }

// Generate implements Generator.
func (Binary) Generate(methodID string, args []Arg, material KeyMaterial) (string, error) {
	payload := binaryPayload{
		MethodID: methodID,
		Encoded:  make([]string, len(args)),
		Version:  material.Version,
	}
	for i, a := range args {
		payload.Encoded[i] = a.Name + "=" + canonicalValue(a.Value)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
		return "", fmt.Errorf("keygen: binary encode failed: %w", err)
	}

	sum := xxhash.Sum64(buf.Bytes())
	return fmt.Sprintf("%s_%016xb", methodID, sum), nil
}

var _ Generator = Binary{}
