package solana

import (
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fundraiserProgramID = solanago.MustPublicKeyFromBase58("EiJfMHkdFRYVts5Kvxg6ooBaZ1TV6qEiY41xjZuSFLSw")

func TestPda_FindMatchesReference(t *testing.T) {
	maker := solanago.NewWallet().PublicKey()
	seeds := [][]byte{[]byte("fundraiser"), maker[:]}

	addr, bump, err := FindProgramAddressBytes(seeds, fundraiserProgramID[:])
	require.NoError(t, err)

	refAddr, refBump, err := solanago.FindProgramAddress(seeds, fundraiserProgramID)
	require.NoError(t, err)

	assert.Equal(t, refAddr[:], addr)
	assert.Equal(t, refBump, bump)
	assert.False(t, IsOnCurve(addr))
}

func TestPda_VerifyRoundTrip(t *testing.T) {
	maker := solanago.NewWallet().PublicKey()
	seeds := [][]byte{[]byte("escrow"), maker[:]}

	addr, bump, err := FindProgramAddressBytes(seeds, fundraiserProgramID[:])
	require.NoError(t, err)

	assert.True(t, VerifyProgramAddressBytes(addr, append(seeds, []byte{bump}), fundraiserProgramID[:]))

	// other maker, same bump: must not verify
	other := solanago.NewWallet().PublicKey()
	assert.False(t, VerifyProgramAddressBytes(addr, [][]byte{[]byte("escrow"), other[:], {bump}}, fundraiserProgramID[:]))

	// wrong seed prefix
	assert.False(t, VerifyProgramAddressBytes(addr, [][]byte{[]byte("fundraiser"), maker[:], {bump}}, fundraiserProgramID[:]))
}

func TestPda_SeedLimits(t *testing.T) {
	tooLong := make([]byte, MaxSeedLen+1)
	_, err := CreateProgramAddressBytes([][]byte{tooLong}, fundraiserProgramID[:])
	assert.ErrorIs(t, err, ErrSeedLength)

	tooMany := make([][]byte, MaxSeeds+1)
	_, err = CreateProgramAddressBytes(tooMany, fundraiserProgramID[:])
	assert.ErrorIs(t, err, ErrSeedLength)

	_, _, err = FindProgramAddressBytes(make([][]byte, MaxSeeds), fundraiserProgramID[:])
	assert.ErrorIs(t, err, ErrSeedLength)

	_, err = CreateProgramAddressBytes([][]byte{[]byte("x")}, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrAddressLength)
}
