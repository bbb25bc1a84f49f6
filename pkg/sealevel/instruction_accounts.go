package sealevel

import (
	"github.com/gagliardetto/solana-go"
)

// InstructionAcctsFromAccountMetas resolves the account metas of a top-level
// instruction against the transaction's accounts. A repeated account points
// back at its first occurrence.
func InstructionAcctsFromAccountMetas(metas []AccountMeta, txAccounts *TransactionAccounts) ([]InstructionAccount, error) {
	instrAccts := make([]InstructionAccount, 0, len(metas))

	for instrAcctIdx, meta := range metas {
		idxInTx, err := indexOfKey(txAccounts, meta.Pubkey)
		if err != nil {
			return nil, err
		}

		idxInCallee := uint64(instrAcctIdx)
		for pos, instrAcct := range instrAccts {
			if instrAcct.IndexInTransaction == idxInTx {
				idxInCallee = uint64(pos)
				break
			}
		}

		instrAccts = append(instrAccts, InstructionAccount{
			IndexInTransaction: idxInTx,
			IndexInCaller:      idxInTx,
			IndexInCallee:      idxInCallee,
			IsSigner:           meta.IsSigner,
			IsWritable:         meta.IsWritable,
		})
	}

	return instrAccts, nil
}

// ProgramIndices returns the transaction index of the instruction's program.
func ProgramIndices(ix Instruction, txAccounts *TransactionAccounts) ([]uint64, error) {
	idx, err := indexOfKey(txAccounts, ix.ProgramId)
	if err != nil {
		return nil, err
	}
	return []uint64{idx}, nil
}

func indexOfKey(txAccounts *TransactionAccounts, key solana.PublicKey) (uint64, error) {
	for pos, acct := range txAccounts.Accounts {
		if acct.Key == key {
			return uint64(pos), nil
		}
	}
	return 0, InstrErrMissingAccount
}
