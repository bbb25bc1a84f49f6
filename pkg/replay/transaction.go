package replay

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/samber/lo"
	"go.firedancer.io/settle/pkg/accounts"
	"go.firedancer.io/settle/pkg/cu"
	"go.firedancer.io/settle/pkg/global"
	"go.firedancer.io/settle/pkg/sealevel"
	"k8s.io/klog/v2"
)

// Transaction is an ordered list of instructions executed atomically.
// Signers lists the accounts that authorized it; an instruction may only
// mark one of them as a signer.
type Transaction struct {
	Signers      []solana.PublicKey
	Instructions []sealevel.Instruction

	// ComputeUnitLimit overrides the default budget when non-zero.
	ComputeUnitLimit uint64
}

type TxResult struct {
	Committed        bool
	ComputeUnitsUsed uint64
	ComputeUsage     map[string]uint64
	Logs             []string
	ModifiedAccounts []solana.PublicKey
	DeltaHash        [32]byte
}

var ErrEmptyTransaction = errors.New("transaction has no instructions")

type TxErrMissingSignature struct {
	Pubkey solana.PublicKey
}

func (err *TxErrMissingSignature) Error() string {
	return fmt.Sprintf("account %s is marked as a signer but did not sign", err.Pubkey)
}

// InstructionError reports the instruction that aborted a transaction.
type InstructionError struct {
	Index int
	Err   error
}

func (err *InstructionError) Error() string {
	return fmt.Sprintf("instruction %d failed: %s", err.Index, err.Err)
}

func (err *InstructionError) Unwrap() error {
	return err.Err
}

func transactionKeys(tx *Transaction) []solana.PublicKey {
	return lo.Uniq(lo.FlatMap(tx.Instructions, func(ix sealevel.Instruction, _ int) []solana.PublicKey {
		keys := []solana.PublicKey{ix.ProgramId}
		return append(keys, lo.Map(ix.Accounts, func(meta sealevel.AccountMeta, _ int) solana.PublicKey {
			return meta.Pubkey
		})...)
	}))
}

func verifySigners(tx *Transaction) error {
	for _, ix := range tx.Instructions {
		for _, meta := range ix.Accounts {
			if meta.IsSigner && !lo.Contains(tx.Signers, meta.Pubkey) {
				return &TxErrMissingSignature{Pubkey: meta.Pubkey}
			}
		}
	}
	return nil
}

// loadTransactionAccounts copies every account the transaction references
// out of the ledger. Builtin programs are synthesized; unknown keys become
// empty system accounts.
func loadTransactionAccounts(accts accounts.Accounts, tx *Transaction) (*sealevel.TransactionAccounts, error) {
	keys := transactionKeys(tx)
	acctsForTx := make([]accounts.Account, 0, len(keys))

	for _, key := range keys {
		if sealevel.IsNativeProgram(key) {
			acctsForTx = append(acctsForTx, sealevel.NativeProgramAccount(key))
			continue
		}

		pubkey := [32]byte(key)
		acct, err := accts.GetAccount(&pubkey)
		if err != nil {
			return nil, fmt.Errorf("loading account %s: %w", key, err)
		}
		if acct == nil {
			acct = &accounts.Account{Key: key, Owner: sealevel.SystemProgramAddr}
		}
		acctsForTx = append(acctsForTx, *acct.Clone())
	}

	return sealevel.NewTransactionAccounts(acctsForTx), nil
}

func newExecCtx(globalCtx *global.GlobalCtx, sysvars Sysvars, txAccts *sealevel.TransactionAccounts, computeUnitLimit uint64, log *sealevel.LogRecorder) *sealevel.ExecutionCtx {
	txCtx := sealevel.NewTransactionCtx(*txAccts, sealevel.MaxInstructionStackDepth, sealevel.MaxInstructionTraceLen)
	execCtx := &sealevel.ExecutionCtx{Log: log, TransactionContext: txCtx, ComputeMeter: cu.NewComputeMeterDefault()}
	if computeUnitLimit != 0 {
		execCtx.ComputeMeter = cu.NewComputeMeter(computeUnitLimit)
	}

	execCtx.GlobalCtx = *globalCtx
	execCtx.SysvarCache.SetClock(sysvars.Clock)
	execCtx.SysvarCache.SetRent(sysvars.Rent)
	return execCtx
}

// recordModifiedAccounts writes every account the transaction touched back
// to the ledger.
func recordModifiedAccounts(accts accounts.Accounts, execCtx *sealevel.ExecutionCtx) ([]*accounts.Account, error) {
	txAccts := &execCtx.TransactionContext.Accounts
	var modified []*accounts.Account

	for idx, acct := range txAccts.Accounts {
		if !txAccts.IsTouched(uint64(idx)) {
			continue
		}
		pubkey := [32]byte(acct.Key)
		err := accts.SetAccount(&pubkey, acct)
		if err != nil {
			return nil, fmt.Errorf("unable to commit account %s: %w", acct.Key, err)
		}
		klog.V(2).Infof("modified account %s after tx", acct.Key)
		modified = append(modified, acct)
	}
	return modified, nil
}

// ProcessTransaction runs tx against accts. Account changes are committed
// only when every instruction succeeds and no account is left rent paying;
// on failure the ledger is untouched and the returned result still carries
// the logs and compute usage.
func ProcessTransaction(accts accounts.Accounts, globalCtx *global.GlobalCtx, sysvars Sysvars, tx *Transaction) (*TxResult, error) {
	if len(tx.Instructions) == 0 {
		return nil, ErrEmptyTransaction
	}
	err := verifySigners(tx)
	if err != nil {
		return nil, err
	}

	txAccts, err := loadTransactionAccounts(accts, tx)
	if err != nil {
		return nil, err
	}

	var log sealevel.LogRecorder
	execCtx := newExecCtx(globalCtx, sysvars, txAccts, tx.ComputeUnitLimit, &log)
	txCtx := execCtx.TransactionContext
	preRentStates := rentStates(&txCtx.Accounts, &sysvars.Rent)

	var instrErr error
	for instrIdx, ix := range tx.Instructions {
		instrAccts, err := sealevel.InstructionAcctsFromAccountMetas(ix.Accounts, &txCtx.Accounts)
		if err != nil {
			return nil, err
		}
		programIndices, err := sealevel.ProgramIndices(ix, &txCtx.Accounts)
		if err != nil {
			return nil, err
		}

		err = execCtx.ProcessInstruction(ix.Data, instrAccts, programIndices)
		if err != nil {
			instrErr = &InstructionError{Index: instrIdx, Err: err}
			break
		}
	}
	if instrErr == nil {
		instrErr = verifyRentStateChanges(preRentStates, &txCtx.Accounts, &sysvars.Rent)
	}

	result := &TxResult{
		ComputeUnitsUsed: execCtx.ComputeMeter.Used(),
		ComputeUsage:     execCtx.ComputeMeter.Usage(),
		Logs:             log.Logs,
	}
	klog.Infof("tx with %d instructions - compute units consumed: %d", len(tx.Instructions), result.ComputeUnitsUsed)

	globalCtx.Metrics.ObserveTransaction(instrErr)
	if instrErr != nil {
		klog.Infof("tx failed: %s", instrErr)
		return result, instrErr
	}

	modified, err := recordModifiedAccounts(accts, execCtx)
	if err != nil {
		return result, err
	}
	result.Committed = true
	result.ModifiedAccounts = lo.Map(modified, func(acct *accounts.Account, _ int) solana.PublicKey {
		return acct.Key
	})
	result.DeltaHash = DeltaHash(modified)
	return result, nil
}
