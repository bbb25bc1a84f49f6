package sealevel

import (
	"github.com/gagliardetto/solana-go"
	solanapda "go.firedancer.io/settle/pkg/solana"
)

const (
	EscrowSeed            = "escrow"
	FundraiserSeed        = "fundraiser"
	ContributorSeed       = "contributor"
	PermitSeed            = "permit"
	ExtraAccountMetasSeed = "extra-account-metas"
)

func EscrowSeeds(maker solana.PublicKey) [][]byte {
	return [][]byte{[]byte(EscrowSeed), maker[:]}
}

func FundraiserSeeds(maker solana.PublicKey) [][]byte {
	return [][]byte{[]byte(FundraiserSeed), maker[:]}
}

func ContributorSeeds(contributor solana.PublicKey) [][]byte {
	return [][]byte{[]byte(ContributorSeed), contributor[:]}
}

func PermitSeeds(mint solana.PublicKey, owner solana.PublicKey) [][]byte {
	return [][]byte{[]byte(PermitSeed), mint[:], owner[:]}
}

func ExtraAccountMetasSeeds(mint solana.PublicKey) [][]byte {
	return [][]byte{[]byte(ExtraAccountMetasSeed), mint[:]}
}

// withBump appends the bump seed to seeds.
func withBump(seeds [][]byte, bump uint8) [][]byte {
	out := make([][]byte, 0, len(seeds)+1)
	out = append(out, seeds...)
	return append(out, []byte{bump})
}

func FindProgramAddress(seeds [][]byte, programId solana.PublicKey) (solana.PublicKey, uint8, error) {
	addr, bump, err := solanapda.FindProgramAddressBytes(seeds, programId[:])
	if err != nil {
		return solana.PublicKey{}, 0, err
	}
	return solana.PublicKeyFromBytes(addr), bump, nil
}

func FindEscrowAddress(maker solana.PublicKey) (solana.PublicKey, uint8, error) {
	return FindProgramAddress(EscrowSeeds(maker), EscrowProgramAddr)
}

func FindFundraiserAddress(maker solana.PublicKey) (solana.PublicKey, uint8, error) {
	return FindProgramAddress(FundraiserSeeds(maker), FundraiserProgramAddr)
}

func FindContributorAddress(contributor solana.PublicKey) (solana.PublicKey, uint8, error) {
	return FindProgramAddress(ContributorSeeds(contributor), FundraiserProgramAddr)
}

func FindPermitAddress(mint solana.PublicKey, owner solana.PublicKey) (solana.PublicKey, uint8, error) {
	return FindProgramAddress(PermitSeeds(mint, owner), TransferPermitProgramAddr)
}

func FindExtraAccountMetasAddress(mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return FindProgramAddress(ExtraAccountMetasSeeds(mint), TransferPermitProgramAddr)
}
