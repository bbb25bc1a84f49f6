package sealevel

import (
	"github.com/gagliardetto/solana-go"
	"go.firedancer.io/settle/pkg/safemath"
	"k8s.io/klog/v2"
)

// TransferHookAccountsLen is the number of trailing accounts one hooked leg
// consumes.
const TransferHookAccountsLen = 4

func requireSigner(txCtx *TransactionCtx, instrCtx *InstructionCtx, instrAcctIdx uint64) (solana.PublicKey, error) {
	key, err := extractAddress(txCtx, instrCtx, instrAcctIdx)
	if err != nil {
		return solana.PublicKey{}, err
	}
	isSigner, err := instrCtx.IsInstructionAccountSigner(instrAcctIdx)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if !isSigner {
		klog.Errorf("%s must sign", key)
		return solana.PublicKey{}, InstrErrMissingRequiredSignature
	}
	return key, nil
}

func accountOwner(txCtx *TransactionCtx, instrCtx *InstructionCtx, instrAcctIdx uint64) (solana.PublicKey, error) {
	acct, err := instrCtx.BorrowInstructionAccount(txCtx, instrAcctIdx)
	if err != nil {
		return solana.PublicKey{}, err
	}
	defer acct.Drop()
	return acct.Owner(), nil
}

// programAccountState reports whether the account at instrAcctIdx can back a
// fresh record of space bytes. reusable is set for an account the current
// program already owns whose data is all zero.
func programAccountState(txCtx *TransactionCtx, instrCtx *InstructionCtx, instrAcctIdx uint64, space uint64) (reusable bool, err error) {
	acct, err := instrCtx.BorrowInstructionAccount(txCtx, instrAcctIdx)
	if err != nil {
		return false, err
	}
	defer acct.Drop()

	if acct.Owner() == SystemProgramAddr && len(acct.Data()) == 0 {
		return false, nil
	}
	if acct.IsOwnedByCurrentProgram() && uint64(len(acct.Data())) == space && isZeroed(acct.Data()) {
		return true, nil
	}
	klog.Errorf("%s already holds data (owner %s)", acct.Key(), acct.Owner())
	return false, InstrErrAccountAlreadyInitialized
}

func requireUninitialized(txCtx *TransactionCtx, instrCtx *InstructionCtx, instrAcctIdx uint64) error {
	acct, err := instrCtx.BorrowInstructionAccount(txCtx, instrAcctIdx)
	if err != nil {
		return err
	}
	defer acct.Drop()

	if acct.Owner() != SystemProgramAddr || len(acct.Data()) != 0 {
		return InstrErrAccountAlreadyInitialized
	}
	return nil
}

// createProgramAccount funds, sizes and assigns target to the current program.
// seeds (bump included) sign for target. A target that already holds
// lamports is topped up to the rent-exempt minimum instead of created.
func createProgramAccount(execCtx *ExecutionCtx, payer, target solana.PublicKey, space uint64, seeds [][]byte) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}
	programId, err := instrCtx.LastProgramKey(txCtx)
	if err != nil {
		return err
	}
	rent, err := execCtx.SysvarCache.GetRent()
	if err != nil {
		return err
	}
	required := rent.MinimumBalance(space)

	targetIdx, err := instrCtx.IndexOfInstructionAccount(txCtx, target)
	if err != nil {
		return err
	}
	acct, err := instrCtx.BorrowInstructionAccount(txCtx, targetIdx)
	if err != nil {
		return err
	}
	lamports := acct.Lamports()
	acct.Drop()

	signerSeeds := [][][]byte{seeds}
	if lamports == 0 {
		klog.V(2).Infof("creating %s (%d bytes) for %s", target, space, programId)
		return execCtx.NativeInvokeSigned(newCreateAccountInstruction(payer, target, required, space, programId), signerSeeds)
	}

	if topUp := safemath.SaturatingSubU64(required, lamports); topUp > 0 {
		err = execCtx.NativeInvoke(NewSystemTransferInstruction(payer, target, topUp), nil)
		if err != nil {
			return err
		}
	}
	err = execCtx.NativeInvokeSigned(newAllocateInstruction(target, space), signerSeeds)
	if err != nil {
		return err
	}
	return execCtx.NativeInvokeSigned(newAssignInstruction(target, programId), signerSeeds)
}

func writeProgramState(execCtx *ExecutionCtx, instrCtx *InstructionCtx, instrAcctIdx uint64, state binMarshaler) error {
	acct, err := instrCtx.BorrowInstructionAccount(execCtx.TransactionContext, instrAcctIdx)
	if err != nil {
		return err
	}
	defer acct.Drop()
	return acct.SetData(execCtx.GlobalCtx.Features, mustMarshal(state))
}

// hookAccountsFor consumes the transfer hook accounts of one leg starting at
// *cursor. Legs whose mint has no hook consume nothing.
func hookAccountsFor(txCtx *TransactionCtx, instrCtx *InstructionCtx, mint *Mint, cursor *uint64) ([]AccountMeta, error) {
	if mint.TransferHook == nil {
		return nil, nil
	}
	err := instrCtx.CheckNumOfInstructionAccounts(*cursor + TransferHookAccountsLen)
	if err != nil {
		klog.Errorf("hooked mint needs %d trailing accounts from index %d", TransferHookAccountsLen, *cursor)
		return nil, err
	}

	metas := make([]AccountMeta, 0, TransferHookAccountsLen)
	for idx := *cursor; idx < *cursor+TransferHookAccountsLen; idx++ {
		key, err := extractAddress(txCtx, instrCtx, idx)
		if err != nil {
			return nil, err
		}
		metas = append(metas, readonly(key))
	}
	*cursor += TransferHookAccountsLen
	return metas, nil
}
