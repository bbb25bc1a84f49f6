package sealevel

import (
	"github.com/gagliardetto/solana-go"
	"k8s.io/klog/v2"
)

// TokenTransfer is one leg of a settlement. A zero Mint selects the plain
// Transfer instruction.
type TokenTransfer struct {
	Source       solana.PublicKey
	Mint         solana.PublicKey
	Destination  solana.PublicKey
	Authority    solana.PublicKey
	Amount       uint64
	Decimals     uint8
	HookAccounts []AccountMeta
}

func (t *TokenTransfer) instruction() Instruction {
	if t.Mint == (solana.PublicKey{}) {
		return NewTokenTransferInstruction(t.Source, t.Destination, t.Authority, t.Amount)
	}
	return NewTokenTransferCheckedInstruction(t.Source, t.Mint, t.Destination, t.Authority, t.Amount, t.Decimals, t.HookAccounts)
}

// transferTokens runs t through the token program. Each seed set in
// signerSeeds adds its derived address, under the calling program, to the
// signers of the transfer.
func (execCtx *ExecutionCtx) transferTokens(t TokenTransfer, signerSeeds [][][]byte) error {
	klog.V(2).Infof("transfer %d from %s to %s (authority %s, %d hook accounts)",
		t.Amount, t.Source, t.Destination, t.Authority, len(t.HookAccounts))
	ix := t.instruction()
	if len(signerSeeds) == 0 {
		return execCtx.NativeInvoke(ix, nil)
	}
	return execCtx.NativeInvokeSigned(ix, signerSeeds)
}
