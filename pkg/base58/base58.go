// Package base58 wraps the base58 alphabet used for Solana addresses.
package base58

import (
	"fmt"

	"github.com/mr-tron/base58"
)

func Encode(b []byte) string {
	return base58.Encode(b)
}

// DecodeFromString decodes a base58 string that must hold exactly 32 bytes.
func DecodeFromString(s string) ([32]byte, error) {
	var out [32]byte
	b, err := base58.Decode(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("invalid length %d for address %s", len(b), s)
	}
	copy(out[:], b)
	return out, nil
}

func MustDecodeFromString(s string) [32]byte {
	out, err := DecodeFromString(s)
	if err != nil {
		panic(err.Error())
	}
	return out
}
