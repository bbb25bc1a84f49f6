package sealevel

import (
	"github.com/gagliardetto/solana-go"
	solanapda "go.firedancer.io/settle/pkg/solana"
	"k8s.io/klog/v2"
)

// loadTokenAccount decodes the token account at instrAcctIdx. The borrow is
// released before returning.
func loadTokenAccount(txCtx *TransactionCtx, instrCtx *InstructionCtx, instrAcctIdx uint64) (*TokenAccount, solana.PublicKey, error) {
	acct, err := instrCtx.BorrowInstructionAccount(txCtx, instrAcctIdx)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	defer acct.Drop()

	if acct.Owner() != TokenProgramAddr {
		klog.Errorf("%s is owned by %s, not the token program", acct.Key(), acct.Owner())
		return nil, acct.Key(), InstrErrInvalidAccountOwner
	}
	tokenAcct, err := UnmarshalTokenAccount(acct.Data())
	return tokenAcct, acct.Key(), err
}

func loadMint(txCtx *TransactionCtx, instrCtx *InstructionCtx, instrAcctIdx uint64) (*Mint, solana.PublicKey, error) {
	acct, err := instrCtx.BorrowInstructionAccount(txCtx, instrAcctIdx)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	defer acct.Drop()

	if acct.Owner() != TokenProgramAddr {
		klog.Errorf("mint %s is owned by %s, not the token program", acct.Key(), acct.Owner())
		return nil, acct.Key(), InstrErrInvalidAccountOwner
	}
	mint, err := UnmarshalMint(acct.Data())
	return mint, acct.Key(), err
}

// validateTokenAccount checks the mint and the beneficial owner of acct.
// ownerErr is returned on an owner mismatch.
func validateTokenAccount(acct *TokenAccount, expectedMint, expectedOwner solana.PublicKey, ownerErr error) error {
	err := validateTokenAccountMint(acct, expectedMint)
	if err != nil {
		return err
	}
	if acct.Owner != expectedOwner {
		klog.V(2).Infof("token account owner %s, expected %s", acct.Owner, expectedOwner)
		return ownerErr
	}
	return nil
}

func validateTokenAccountMint(acct *TokenAccount, expectedMint solana.PublicKey) error {
	if acct.Mint != expectedMint {
		klog.V(2).Infof("token account mint %s, expected %s", acct.Mint, expectedMint)
		return InstrErrInvalidAccountData
	}
	return nil
}

// verifyDerivedAuthority re-derives the address for seeds and bump under
// programId and requires it to be key.
func verifyDerivedAuthority(key solana.PublicKey, seeds [][]byte, bump uint8, programId solana.PublicKey) error {
	if !solanapda.VerifyProgramAddressBytes(key[:], withBump(seeds, bump), programId[:]) {
		klog.Errorf("%s is not the derived address of program %s for the given seeds", key, programId)
		return InstrErrInvalidAccountData
	}
	return nil
}
