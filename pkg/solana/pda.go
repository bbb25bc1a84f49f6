package solana

import (
	"bytes"
	"errors"
	"math"

	"filippo.io/edwards25519"
	"github.com/minio/sha256-simd"
)

const MaxSeeds = 16
const MaxSeedLen = 32
const PublicKeyLength = 32
const PdaMarker = "ProgramDerivedAddress"

var (
	ErrSeedLength          = errors.New("Max seeds (16) exceeded")
	ErrAddressLength       = errors.New("Wrong key length; addresses are 32 bytes long")
	ErrOnCurveInvalidSeeds = errors.New("Invalid seeds - generated address must be off-curve")
	ErrNoViableBumpSeed    = errors.New("Unable to find a viable program address bump seed")
)

func CreateProgramAddressBytes(seeds [][]byte, programID []byte) ([]byte, error) {
	if len(seeds) > MaxSeeds {
		return nil, ErrSeedLength
	}

	if len(programID) != PublicKeyLength {
		return nil, ErrAddressLength
	}

	hasher := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLen {
			return nil, ErrSeedLength
		}
		hasher.Write(seed)
	}

	hasher.Write(programID)
	hasher.Write([]byte(PdaMarker))
	hash := hasher.Sum(nil)

	if IsOnCurve(hash[:]) {
		return nil, ErrOnCurveInvalidSeeds
	}

	return hash[:], nil
}

// FindProgramAddressBytes searches bump seeds from 255 downwards and returns
// the first off-curve address together with the bump that produced it. The
// bump is appended as the final seed.
func FindProgramAddressBytes(seeds [][]byte, programID []byte) ([]byte, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return nil, 0, ErrSeedLength
	}

	seedsWithBump := make([][]byte, len(seeds)+1)
	copy(seedsWithBump, seeds)

	for bump := uint8(math.MaxUint8); bump > 0; bump-- {
		seedsWithBump[len(seeds)] = []byte{bump}
		addr, err := CreateProgramAddressBytes(seedsWithBump, programID)
		if err == nil {
			return addr, bump, nil
		} else if err != ErrOnCurveInvalidSeeds {
			return nil, 0, err
		}
	}

	return nil, 0, ErrNoViableBumpSeed
}

// VerifyProgramAddressBytes re-derives the address from seeds (bump included)
// and compares it against candidate.
func VerifyProgramAddressBytes(candidate []byte, seeds [][]byte, programID []byte) bool {
	addr, err := CreateProgramAddressBytes(seeds, programID)
	if err != nil {
		return false
	}
	return bytes.Equal(addr, candidate)
}

// IsOnCurve checks if 'b' is on the ed25519 curve
func IsOnCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	onCurve := err == nil
	return onCurve
}
