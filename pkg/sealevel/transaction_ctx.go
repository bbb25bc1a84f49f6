package sealevel

import (
	"github.com/gagliardetto/solana-go"
	"go.firedancer.io/settle/pkg/accounts"
)

const (
	MaxInstructionStackDepth = 5
	MaxInstructionTraceLen   = 64
)

// TransactionAccounts is the working set of one transaction. Accounts are
// private copies; nothing here reaches the ledger until the caller commits.
type TransactionAccounts struct {
	Accounts []*accounts.Account
	Touched  []bool
	borrowed []bool
}

func NewTransactionAccounts(accts []accounts.Account) *TransactionAccounts {
	txAccts := new(TransactionAccounts)
	txAccts.Accounts = make([]*accounts.Account, 0, len(accts))
	for idx := range accts {
		txAccts.Accounts = append(txAccts.Accounts, accts[idx].Clone())
	}
	txAccts.Touched = make([]bool, len(accts))
	txAccts.borrowed = make([]bool, len(accts))
	return txAccts
}

func (txAccounts *TransactionAccounts) GetAccount(idx uint64) (*accounts.Account, error) {
	if idx >= uint64(len(txAccounts.Accounts)) {
		return nil, InstrErrMissingAccount
	}
	return txAccounts.Accounts[idx], nil
}

func (txAccounts *TransactionAccounts) Touch(idx uint64) error {
	if idx >= uint64(len(txAccounts.Touched)) {
		return InstrErrNotEnoughAccountKeys
	}
	txAccounts.Touched[idx] = true
	return nil
}

func (txAccounts *TransactionAccounts) IsTouched(idx uint64) bool {
	return idx < uint64(len(txAccounts.Touched)) && txAccounts.Touched[idx]
}

func (txAccounts *TransactionAccounts) tryBorrow(idx uint64) error {
	if idx >= uint64(len(txAccounts.borrowed)) {
		return InstrErrMissingAccount
	}
	if txAccounts.borrowed[idx] {
		return InstrErrAccountBorrowFailed
	}
	txAccounts.borrowed[idx] = true
	return nil
}

func (txAccounts *TransactionAccounts) release(idx uint64) {
	if idx < uint64(len(txAccounts.borrowed)) {
		txAccounts.borrowed[idx] = false
	}
}

func (txAccounts *TransactionAccounts) isBorrowed(idx uint64) bool {
	return idx < uint64(len(txAccounts.borrowed)) && txAccounts.borrowed[idx]
}

type TxReturnData struct {
	programId solana.PublicKey
	data      []byte
}

type TransactionCtx struct {
	Accounts                     TransactionAccounts
	InstructionCtxMaxStackHeight uint64
	InstructionTraceCapacity     uint64
	instructionStack             []uint64
	instructionTrace             []InstructionCtx
	returnData                   TxReturnData
}

func NewTransactionCtx(txAccts TransactionAccounts, maxStackHeight uint64, traceCapacity uint64) *TransactionCtx {
	trace := make([]InstructionCtx, 1, traceCapacity+1)
	return &TransactionCtx{
		Accounts:                     txAccts,
		InstructionCtxMaxStackHeight: maxStackHeight,
		InstructionTraceCapacity:     traceCapacity,
		instructionTrace:             trace,
	}
}

func (txCtx *TransactionCtx) KeyOfAccountAtIndex(index uint64) (solana.PublicKey, error) {
	acct, err := txCtx.Accounts.GetAccount(index)
	if err != nil {
		return solana.PublicKey{}, InstrErrNotEnoughAccountKeys
	}
	return acct.Key, nil
}

func (txCtx *TransactionCtx) IndexOfAccount(pubkey solana.PublicKey) (uint64, error) {
	for idx, acct := range txCtx.Accounts.Accounts {
		if acct.Key == pubkey {
			return uint64(idx), nil
		}
	}
	return 0, InstrErrMissingAccount
}

func (txCtx *TransactionCtx) InstructionCtxStackHeight() uint64 {
	return uint64(len(txCtx.instructionStack))
}

func (txCtx *TransactionCtx) InstructionTraceLength() uint64 {
	return uint64(len(txCtx.instructionTrace) - 1)
}

func (txCtx *TransactionCtx) InstructionCtxAtIndexInTrace(idx uint64) (*InstructionCtx, error) {
	if idx >= uint64(len(txCtx.instructionTrace)) {
		return nil, InstrErrCallDepth
	}
	return &txCtx.instructionTrace[idx], nil
}

func (txCtx *TransactionCtx) InstructionCtxAtNestingLevel(level uint64) (*InstructionCtx, error) {
	if level >= uint64(len(txCtx.instructionStack)) {
		return nil, InstrErrCallDepth
	}
	return txCtx.InstructionCtxAtIndexInTrace(txCtx.instructionStack[level])
}

func (txCtx *TransactionCtx) CurrentInstructionCtx() (*InstructionCtx, error) {
	if len(txCtx.instructionStack) == 0 {
		return nil, InstrErrCallDepth
	}
	return txCtx.InstructionCtxAtNestingLevel(uint64(len(txCtx.instructionStack) - 1))
}

func (txCtx *TransactionCtx) NextInstructionCtx() (*InstructionCtx, error) {
	return &txCtx.instructionTrace[len(txCtx.instructionTrace)-1], nil
}

func (txCtx *TransactionCtx) Push() error {
	nestingLevel := txCtx.InstructionCtxStackHeight()
	if nestingLevel >= txCtx.InstructionCtxMaxStackHeight {
		return InstrErrCallDepth
	}
	if txCtx.InstructionTraceLength() >= txCtx.InstructionTraceCapacity {
		return InstrErrMaxInstructionTraceLengthExceeded
	}

	idxInTrace := uint64(len(txCtx.instructionTrace) - 1)
	txCtx.instructionTrace[idxInTrace].nestingLevel = nestingLevel
	txCtx.instructionStack = append(txCtx.instructionStack, idxInTrace)
	txCtx.instructionTrace = append(txCtx.instructionTrace, InstructionCtx{})
	return nil
}

func (txCtx *TransactionCtx) Pop() error {
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}
	txCtx.instructionStack = txCtx.instructionStack[:len(txCtx.instructionStack)-1]

	for _, idx := range instrCtx.ProgramAccounts {
		if txCtx.Accounts.isBorrowed(idx) {
			return InstrErrAccountBorrowOutstanding
		}
	}
	for _, instrAcct := range instrCtx.InstructionAccounts {
		if txCtx.Accounts.isBorrowed(instrAcct.IndexInTransaction) {
			return InstrErrAccountBorrowOutstanding
		}
	}
	return nil
}

func (txCtx *TransactionCtx) SetReturnData(programId solana.PublicKey, data []byte) {
	txCtx.returnData = TxReturnData{programId: programId, data: data}
}

func (txCtx *TransactionCtx) GetReturnData() (solana.PublicKey, []byte) {
	return txCtx.returnData.programId, txCtx.returnData.data
}
