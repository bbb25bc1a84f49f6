package sealevel

import (
	"github.com/gagliardetto/solana-go"
	"go.firedancer.io/settle/pkg/accounts"
	"go.firedancer.io/settle/pkg/features"
	"go.firedancer.io/settle/pkg/safemath"
)

const MaxPermittedDataLength = 10 * 1024 * 1024

type BorrowedAccount struct {
	TxCtx              *TransactionCtx
	InstrCtx           *InstructionCtx
	IndexInTransaction uint64
	IndexInInstruction uint64
	Account            *accounts.Account
	dropped            bool
}

// Drop releases the borrow. Safe to call more than once.
func (acct *BorrowedAccount) Drop() {
	if acct.dropped {
		return
	}
	acct.dropped = true
	acct.TxCtx.Accounts.release(acct.IndexInTransaction)
}

func (acct *BorrowedAccount) Key() solana.PublicKey {
	return acct.Account.Key
}

func (acct *BorrowedAccount) Owner() solana.PublicKey {
	return acct.Account.Owner
}

func (acct *BorrowedAccount) Lamports() uint64 {
	return acct.Account.Lamports
}

func (acct *BorrowedAccount) Data() []byte {
	return acct.Account.Data
}

func (acct *BorrowedAccount) Touch() error {
	return acct.TxCtx.Accounts.Touch(acct.IndexInTransaction)
}

func (acct *BorrowedAccount) IsExecutable() bool {
	return acct.Account.Executable
}

func (acct *BorrowedAccount) IsSigner() bool {
	instrCtx := acct.InstrCtx
	if acct.IndexInInstruction < instrCtx.NumberOfProgramAccounts() {
		return false
	}

	instrAcctIdx := safemath.SaturatingSubU64(acct.IndexInInstruction, instrCtx.NumberOfProgramAccounts())
	isSigner, err := instrCtx.IsInstructionAccountSigner(instrAcctIdx)
	if err != nil {
		return false
	}
	return isSigner
}

func (acct *BorrowedAccount) IsWritable() bool {
	instrCtx := acct.InstrCtx
	if acct.IndexInInstruction < instrCtx.NumberOfProgramAccounts() {
		return false
	}

	instrAcctIdx := safemath.SaturatingSubU64(acct.IndexInInstruction, instrCtx.NumberOfProgramAccounts())
	writable, err := instrCtx.IsInstructionAccountWritable(instrAcctIdx)
	if err != nil {
		return false
	}

	return writable
}

func (acct *BorrowedAccount) IsOwnedByCurrentProgram() bool {
	lastProgramKey, err := acct.InstrCtx.LastProgramKey(acct.TxCtx)
	if err != nil {
		return false
	}
	return lastProgramKey == acct.Owner()
}

func (acct *BorrowedAccount) DataCanBeChanged(f features.Features) error {
	if acct.IsExecutable() {
		return InstrErrExecutableDataModified
	}
	if !acct.IsWritable() {
		return InstrErrReadonlyDataModified
	}
	if !acct.IsOwnedByCurrentProgram() {
		return InstrErrExternalAccountDataModified
	}
	return nil
}

func (acct *BorrowedAccount) CanDataBeResized(newLen uint64) error {
	oldLen := uint64(len(acct.Account.Data))
	if newLen != oldLen && !acct.IsOwnedByCurrentProgram() {
		return InstrErrAccountDataSizeChanged
	}
	if newLen > MaxPermittedDataLength {
		return InstrErrInvalidRealloc
	}
	return nil
}

func (acct *BorrowedAccount) SetData(f features.Features, data []byte) error {
	err := acct.CanDataBeResized(uint64(len(data)))
	if err != nil {
		return err
	}
	err = acct.DataCanBeChanged(f)
	if err != nil {
		return err
	}
	err = acct.Touch()
	if err != nil {
		return err
	}

	acct.Account.SetData(data)
	return nil
}

func (acct *BorrowedAccount) SetDataLength(newLen uint64, f features.Features) error {
	err := acct.CanDataBeResized(newLen)
	if err != nil {
		return err
	}
	err = acct.DataCanBeChanged(f)
	if err != nil {
		return err
	}
	if uint64(len(acct.Account.Data)) == newLen {
		return nil
	}
	err = acct.Touch()
	if err != nil {
		return err
	}

	data := make([]byte, newLen)
	copy(data, acct.Account.Data)
	acct.Account.Data = data
	return nil
}

func isZeroed(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}

func (acct *BorrowedAccount) SetOwner(f features.Features, owner solana.PublicKey) error {
	if !acct.IsOwnedByCurrentProgram() || !acct.IsWritable() || acct.IsExecutable() || !isZeroed(acct.Account.Data) {
		return InstrErrModifiedProgramId
	}
	if acct.Owner() == owner {
		return nil
	}
	err := acct.Touch()
	if err != nil {
		return err
	}
	acct.Account.Owner = owner
	return nil
}

func (acct *BorrowedAccount) SetLamports(lamports uint64, f features.Features) error {
	if !acct.IsOwnedByCurrentProgram() && lamports < acct.Lamports() {
		return InstrErrExternalAccountLamportSpend
	}
	if !acct.IsWritable() {
		return InstrErrReadonlyLamportChange
	}
	if acct.IsExecutable() {
		return InstrErrExecutableLamportChange
	}
	if acct.Lamports() == lamports {
		return nil
	}
	err := acct.Touch()
	if err != nil {
		return err
	}
	acct.Account.Lamports = lamports
	return nil
}

func (acct *BorrowedAccount) CheckedAddLamports(lamports uint64, f features.Features) error {
	newLamports, err := safemath.CheckedAddU64(acct.Lamports(), lamports)
	if err != nil {
		return InstrErrArithmeticOverflow
	}
	return acct.SetLamports(newLamports, f)
}

func (acct *BorrowedAccount) CheckedSubLamports(lamports uint64, f features.Features) error {
	newLamports, err := safemath.CheckedSubU64(acct.Lamports(), lamports)
	if err != nil {
		return InstrErrArithmeticOverflow
	}
	return acct.SetLamports(newLamports, f)
}
