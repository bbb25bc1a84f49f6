package sealevel

import (
	"bytes"
	"errors"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"go.firedancer.io/settle/pkg/safemath"
	"k8s.io/klog/v2"
)

const (
	TokenProgramInstrTypeTransfer        = 3
	TokenProgramInstrTypeMintTo          = 7
	TokenProgramInstrTypeTransferChecked = 12
)

var (
	TokenErrInsufficientFunds       = errors.New("TokenErrInsufficientFunds")
	TokenErrMintMismatch            = errors.New("TokenErrMintMismatch")
	TokenErrOwnerMismatch           = errors.New("TokenErrOwnerMismatch")
	TokenErrFixedSupply             = errors.New("TokenErrFixedSupply")
	TokenErrOverflow                = errors.New("TokenErrOverflow")
	TokenErrAccountFrozen           = errors.New("TokenErrAccountFrozen")
	TokenErrMintDecimalsMismatch    = errors.New("TokenErrMintDecimalsMismatch")
	TokenErrMintRequiredForTransfer = errors.New("TokenErrMintRequiredForTransfer")
)

func init() {
	registerCustomErrs(map[error]uint32{
		TokenErrInsufficientFunds:       1,
		TokenErrMintMismatch:            3,
		TokenErrOwnerMismatch:           4,
		TokenErrFixedSupply:             5,
		TokenErrOverflow:                14,
		TokenErrAccountFrozen:           17,
		TokenErrMintDecimalsMismatch:    18,
		TokenErrMintRequiredForTransfer: 31,
	})
}

type TokenInstrAmount struct {
	Amount uint64
}

type TokenInstrTransferChecked struct {
	Amount   uint64
	Decimals uint8
}

func (instr *TokenInstrAmount) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	var err error
	instr.Amount, err = decoder.ReadUint64(bin.LE)
	return err
}

func (instr *TokenInstrTransferChecked) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	var err error
	instr.Amount, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	instr.Decimals, err = decoder.ReadUint8()
	return err
}

func tokenInstrData(instrType uint8, amount uint64, decimals *uint8) []byte {
	buf := new(bytes.Buffer)
	encoder := bin.NewBinEncoder(buf)
	var err error
	if err = encoder.WriteUint8(instrType); err == nil {
		err = encoder.WriteUint64(amount, bin.LE)
	}
	if err == nil && decimals != nil {
		err = encoder.WriteUint8(*decimals)
	}
	if err != nil {
		panic("shouldn't fail")
	}
	return buf.Bytes()
}

func NewTokenTransferInstruction(source, destination, authority solana.PublicKey, amount uint64) Instruction {
	return Instruction{
		Accounts:  []AccountMeta{writable(source), writable(destination), signer(authority)},
		Data:      tokenInstrData(TokenProgramInstrTypeTransfer, amount, nil),
		ProgramId: TokenProgramAddr,
	}
}

// NewTokenTransferCheckedInstruction builds a TransferChecked; extra
// accounts are forwarded to the mint's transfer hook.
func NewTokenTransferCheckedInstruction(source, mint, destination, authority solana.PublicKey, amount uint64, decimals uint8, extra []AccountMeta) Instruction {
	accts := []AccountMeta{writable(source), readonly(mint), writable(destination), signer(authority)}
	accts = append(accts, extra...)
	return Instruction{
		Accounts:  accts,
		Data:      tokenInstrData(TokenProgramInstrTypeTransferChecked, amount, &decimals),
		ProgramId: TokenProgramAddr,
	}
}

func NewTokenMintToInstruction(mint, destination, authority solana.PublicKey, amount uint64) Instruction {
	return Instruction{
		Accounts:  []AccountMeta{writable(mint), writable(destination), signer(authority)},
		Data:      tokenInstrData(TokenProgramInstrTypeMintTo, amount, nil),
		ProgramId: TokenProgramAddr,
	}
}

func TokenProgramExecute(execCtx *ExecutionCtx) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	decoder := bin.NewBinDecoder(instrCtx.Data)
	instrType, err := decoder.ReadUint8()
	if err != nil {
		return InstrErrInvalidInstructionData
	}

	switch instrType {
	case TokenProgramInstrTypeTransfer:
		var transfer TokenInstrAmount
		if err = transfer.UnmarshalWithDecoder(decoder); err != nil {
			return InstrErrInvalidInstructionData
		}
		err = instrCtx.CheckNumOfInstructionAccounts(3)
		if err != nil {
			return err
		}
		return TokenProgramTransfer(execCtx, transfer.Amount, nil)

	case TokenProgramInstrTypeTransferChecked:
		var transfer TokenInstrTransferChecked
		if err = transfer.UnmarshalWithDecoder(decoder); err != nil {
			return InstrErrInvalidInstructionData
		}
		err = instrCtx.CheckNumOfInstructionAccounts(4)
		if err != nil {
			return err
		}
		return TokenProgramTransfer(execCtx, transfer.Amount, &transfer.Decimals)

	case TokenProgramInstrTypeMintTo:
		var mintTo TokenInstrAmount
		if err = mintTo.UnmarshalWithDecoder(decoder); err != nil {
			return InstrErrInvalidInstructionData
		}
		err = instrCtx.CheckNumOfInstructionAccounts(3)
		if err != nil {
			return err
		}
		return TokenProgramMintTo(execCtx, mintTo.Amount)
	}

	return InstrErrInvalidInstructionData
}

// readTokenAccount decodes the token account at instrAcctIdx and returns its
// key. The borrow is released before returning.
func readTokenAccount(txCtx *TransactionCtx, instrCtx *InstructionCtx, instrAcctIdx uint64) (*TokenAccount, solana.PublicKey, error) {
	acct, err := instrCtx.BorrowInstructionAccount(txCtx, instrAcctIdx)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	defer acct.Drop()

	if acct.Owner() != TokenProgramAddr {
		return nil, acct.Key(), InstrErrIncorrectProgramId
	}
	tokenAcct, err := UnmarshalTokenAccount(acct.Data())
	return tokenAcct, acct.Key(), err
}

func readMint(txCtx *TransactionCtx, instrCtx *InstructionCtx, instrAcctIdx uint64) (*Mint, solana.PublicKey, error) {
	acct, err := instrCtx.BorrowInstructionAccount(txCtx, instrAcctIdx)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	defer acct.Drop()

	if acct.Owner() != TokenProgramAddr {
		return nil, acct.Key(), InstrErrIncorrectProgramId
	}
	mint, err := UnmarshalMint(acct.Data())
	return mint, acct.Key(), err
}

func writeTokenState(execCtx *ExecutionCtx, instrCtx *InstructionCtx, instrAcctIdx uint64, state interface{ Marshal() ([]byte, error) }) error {
	txCtx := execCtx.TransactionContext
	acct, err := instrCtx.BorrowInstructionAccount(txCtx, instrAcctIdx)
	if err != nil {
		return err
	}
	defer acct.Drop()

	data, err := state.Marshal()
	if err != nil {
		return InstrErrInvalidAccountData
	}
	return acct.SetData(execCtx.GlobalCtx.Features, data)
}

func TokenProgramTransfer(execCtx *ExecutionCtx, amount uint64, expectedDecimals *uint8) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	checked := expectedDecimals != nil
	srcIdx, dstIdx, authIdx := uint64(0), uint64(1), uint64(2)
	if checked {
		dstIdx, authIdx = 2, 3
	}

	source, sourceKey, err := readTokenAccount(txCtx, instrCtx, srcIdx)
	if err != nil {
		return err
	}
	destination, destinationKey, err := readTokenAccount(txCtx, instrCtx, dstIdx)
	if err != nil {
		return err
	}

	if source.IsFrozen() || destination.IsFrozen() {
		return TokenErrAccountFrozen
	}
	if source.Amount < amount {
		klog.V(2).Infof("Transfer: %s holds %d, need %d", sourceKey, source.Amount, amount)
		return TokenErrInsufficientFunds
	}
	if source.Mint != destination.Mint {
		return TokenErrMintMismatch
	}

	var mint *Mint
	var mintKey solana.PublicKey
	if checked {
		mint, mintKey, err = readMint(txCtx, instrCtx, 1)
		if err != nil {
			return err
		}
		if mintKey != source.Mint {
			return TokenErrMintMismatch
		}
		if mint.Decimals != *expectedDecimals {
			return TokenErrMintDecimalsMismatch
		}
	} else if source.TransferHookAccount || destination.TransferHookAccount {
		return TokenErrMintRequiredForTransfer
	}

	authority, err := extractAddress(txCtx, instrCtx, authIdx)
	if err != nil {
		return err
	}
	if authority != source.Owner {
		klog.V(2).Infof("Transfer: authority %s does not own %s", authority, sourceKey)
		return TokenErrOwnerMismatch
	}
	isSigner, err := instrCtx.IsInstructionAccountSigner(authIdx)
	if err != nil {
		return err
	}
	if !isSigner {
		return InstrErrMissingRequiredSignature
	}

	if sourceKey == destinationKey {
		return nil
	}

	source.Amount -= amount
	destination.Amount, err = safemath.CheckedAddU64(destination.Amount, amount)
	if err != nil {
		return TokenErrOverflow
	}

	err = writeTokenState(execCtx, instrCtx, srcIdx, source)
	if err != nil {
		return err
	}
	err = writeTokenState(execCtx, instrCtx, dstIdx, destination)
	if err != nil {
		return err
	}

	execCtx.GlobalCtx.Metrics.ObserveTransfer(amount)
	execCtx.logf("Program log: Instruction: Transfer %d from %s to %s", amount, sourceKey, destinationKey)

	if mint != nil && mint.TransferHook != nil {
		return invokeTransferHook(execCtx, instrCtx, mint.TransferHook.ProgramId, amount)
	}
	return nil
}

// invokeTransferHook calls the mint's hook program with the transfer
// accounts followed by every account after the hook program itself.
func invokeTransferHook(execCtx *ExecutionCtx, instrCtx *InstructionCtx, hookProgramId solana.PublicKey, amount uint64) error {
	txCtx := execCtx.TransactionContext

	const hookProgramIdx = 4
	err := instrCtx.CheckNumOfInstructionAccounts(hookProgramIdx + 1)
	if err != nil {
		klog.Errorf("TransferChecked: hooked mint but no hook accounts supplied")
		return err
	}
	hookKey, err := extractAddress(txCtx, instrCtx, hookProgramIdx)
	if err != nil {
		return err
	}
	if hookKey != hookProgramId {
		klog.Errorf("TransferChecked: hook program %s, mint expects %s", hookKey, hookProgramId)
		return InstrErrIncorrectProgramId
	}

	var metas []AccountMeta
	for idx := uint64(0); idx < instrCtx.NumberOfInstructionAccounts(); idx++ {
		if idx == hookProgramIdx {
			continue
		}
		key, err := extractAddress(txCtx, instrCtx, idx)
		if err != nil {
			return err
		}
		metas = append(metas, readonly(key))
	}

	return execCtx.NativeInvoke(NewTransferHookExecuteInstruction(hookProgramId, metas, amount), nil)
}

func TokenProgramMintTo(execCtx *ExecutionCtx, amount uint64) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	mint, mintKey, err := readMint(txCtx, instrCtx, 0)
	if err != nil {
		return err
	}
	destination, _, err := readTokenAccount(txCtx, instrCtx, 1)
	if err != nil {
		return err
	}

	if destination.IsFrozen() {
		return TokenErrAccountFrozen
	}
	if destination.Mint != mintKey {
		return TokenErrMintMismatch
	}
	if mint.MintAuthority == nil {
		return TokenErrFixedSupply
	}

	authority, err := extractAddress(txCtx, instrCtx, 2)
	if err != nil {
		return err
	}
	if authority != *mint.MintAuthority {
		return TokenErrOwnerMismatch
	}
	isSigner, err := instrCtx.IsInstructionAccountSigner(2)
	if err != nil {
		return err
	}
	if !isSigner {
		return InstrErrMissingRequiredSignature
	}

	mint.Supply, err = safemath.CheckedAddU64(mint.Supply, amount)
	if err != nil {
		return TokenErrOverflow
	}
	destination.Amount, err = safemath.CheckedAddU64(destination.Amount, amount)
	if err != nil {
		return TokenErrOverflow
	}

	err = writeTokenState(execCtx, instrCtx, 0, mint)
	if err != nil {
		return err
	}
	return writeTokenState(execCtx, instrCtx, 1, destination)
}
