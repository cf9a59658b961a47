package loader

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode encodes records canonically so equal records are byte-equal.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("loader: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Record is a persisted source: enough to recompile a class without the
// file it came from.
type Record struct {
	Hash       Hash   `cbor:"1,keyasint"`
	Name       string `cbor:"2,keyasint"`
	Path       string `cbor:"3,keyasint,omitempty"`
	Text       string `cbor:"4,keyasint"`
	Generation string `cbor:"5,keyasint"`
	CompiledAt int64  `cbor:"6,keyasint"` // unix nanoseconds
}

// MarshalRecord serializes a Record to CBOR bytes.
func MarshalRecord(r *Record) ([]byte, error) {
	return cborEncMode.Marshal(r)
}

// UnmarshalRecord deserializes a Record from CBOR bytes.
func UnmarshalRecord(data []byte) (*Record, error) {
	var r Record
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("loader: unmarshal record: %w", err)
	}
	return &r, nil
}
