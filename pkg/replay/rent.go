package replay

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.firedancer.io/settle/pkg/accounts"
	"go.firedancer.io/settle/pkg/sealevel"
)

type rentState int

const (
	rentStateUninitialized rentState = iota
	rentStateRentPaying
	rentStateRentExempt
)

type rentStateInfo struct {
	state    rentState
	lamports uint64
	dataLen  uint64
}

// TxErrInsufficientFundsForRent is returned when a transaction would leave
// an account below the rent-exempt minimum.
type TxErrInsufficientFundsForRent struct {
	Pubkey solana.PublicKey
}

func (err *TxErrInsufficientFundsForRent) Error() string {
	return fmt.Sprintf("account %s would be left with insufficient funds for rent", err.Pubkey)
}

func rentStateFromAcct(acct *accounts.Account, rent *sealevel.SysvarRent) rentStateInfo {
	info := rentStateInfo{lamports: acct.Lamports, dataLen: uint64(len(acct.Data))}
	switch {
	case acct.Lamports == 0:
		info.state = rentStateUninitialized
	case rent.IsExempt(acct.Lamports, info.dataLen):
		info.state = rentStateRentExempt
	default:
		info.state = rentStateRentPaying
	}
	return info
}

func rentStates(txAccts *sealevel.TransactionAccounts, rent *sealevel.SysvarRent) []rentStateInfo {
	states := make([]rentStateInfo, len(txAccts.Accounts))
	for idx, acct := range txAccts.Accounts {
		states[idx] = rentStateFromAcct(acct, rent)
	}
	return states
}

// rentTransitionAllowed reports whether an account may move from pre to
// post. An account may end up rent paying only if it already was, kept its
// size and did not gain lamports.
func rentTransitionAllowed(pre, post rentStateInfo) bool {
	if post.state != rentStateRentPaying {
		return true
	}
	return pre.state == rentStateRentPaying && pre.dataLen == post.dataLen && post.lamports <= pre.lamports
}

func verifyRentStateChanges(pre []rentStateInfo, txAccts *sealevel.TransactionAccounts, rent *sealevel.SysvarRent) error {
	for idx, acct := range txAccts.Accounts {
		if !txAccts.IsTouched(uint64(idx)) {
			continue
		}
		post := rentStateFromAcct(acct, rent)
		if !rentTransitionAllowed(pre[idx], post) {
			return &TxErrInsufficientFundsForRent{Pubkey: acct.Key}
		}
	}
	return nil
}
