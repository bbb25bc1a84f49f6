package sealevel

import (
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"k8s.io/klog/v2"
)

const (
	EscrowInstrTypeMake = 0
	EscrowInstrTypeTake = 1
)

// fixed account counts, hook accounts follow
const (
	escrowMakeNumAccounts = 8
	escrowTakeNumAccounts = 9
)

type EscrowInstrMake struct {
	Bump            uint8
	AmountToReceive uint64
	AmountToGive    uint64
}

type EscrowInstrTake struct {
	AmountToReceive uint64
	AmountToGive    uint64
}

func (instr *EscrowInstrMake) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	var err error
	instr.Bump, err = decoder.ReadUint8()
	if err != nil {
		return err
	}
	instr.AmountToReceive, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	instr.AmountToGive, err = decoder.ReadUint64(bin.LE)
	return err
}

func (instr *EscrowInstrMake) MarshalWithEncoder(encoder *bin.Encoder) error {
	err := encoder.WriteUint8(EscrowInstrTypeMake)
	if err != nil {
		return err
	}
	err = encoder.WriteUint8(instr.Bump)
	if err != nil {
		return err
	}
	err = encoder.WriteUint64(instr.AmountToReceive, bin.LE)
	if err != nil {
		return err
	}
	return encoder.WriteUint64(instr.AmountToGive, bin.LE)
}

func (instr *EscrowInstrTake) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	var err error
	instr.AmountToReceive, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	instr.AmountToGive, err = decoder.ReadUint64(bin.LE)
	return err
}

func (instr *EscrowInstrTake) MarshalWithEncoder(encoder *bin.Encoder) error {
	err := encoder.WriteUint8(EscrowInstrTypeTake)
	if err != nil {
		return err
	}
	err = encoder.WriteUint64(instr.AmountToReceive, bin.LE)
	if err != nil {
		return err
	}
	return encoder.WriteUint64(instr.AmountToGive, bin.LE)
}

// EscrowMakeAccounts names the accounts of a Make.
type EscrowMakeAccounts struct {
	Maker     solana.PublicKey
	MintA     solana.PublicKey
	MintB     solana.PublicKey
	MakerAtaA solana.PublicKey
	Vault     solana.PublicKey
}

// EscrowTakeAccounts names the accounts of a Take.
type EscrowTakeAccounts struct {
	Taker     solana.PublicKey
	Maker     solana.PublicKey
	MintA     solana.PublicKey
	MintB     solana.PublicKey
	MakerAtaB solana.PublicKey
	TakerAtaB solana.PublicKey
	TakerAtaA solana.PublicKey
	Vault     solana.PublicKey
}

// NewEscrowMakeInstruction builds a Make. hookAccounts are appended for a
// hooked mint A.
func NewEscrowMakeInstruction(accts EscrowMakeAccounts, bump uint8, amountToReceive, amountToGive uint64, hookAccounts []AccountMeta) Instruction {
	escrow, _, _ := FindEscrowAddress(accts.Maker)
	instr := EscrowInstrMake{Bump: bump, AmountToReceive: amountToReceive, AmountToGive: amountToGive}
	metas := []AccountMeta{
		writableSigner(accts.Maker),
		readonly(accts.MintA),
		readonly(accts.MintB),
		writable(escrow),
		writable(accts.MakerAtaA),
		writable(accts.Vault),
		readonly(SystemProgramAddr),
		readonly(TokenProgramAddr),
	}
	return Instruction{
		Accounts:  append(metas, hookAccounts...),
		Data:      mustMarshal(&instr),
		ProgramId: EscrowProgramAddr,
	}
}

// NewEscrowTakeInstruction builds a Take. hookAccounts carry the mint B leg's
// hook accounts first, then the mint A leg's.
func NewEscrowTakeInstruction(accts EscrowTakeAccounts, amountToReceive, amountToGive uint64, hookAccounts []AccountMeta) Instruction {
	escrow, _, _ := FindEscrowAddress(accts.Maker)
	take := EscrowInstrTake{AmountToReceive: amountToReceive, AmountToGive: amountToGive}
	metas := []AccountMeta{
		signer(accts.Taker),
		readonly(accts.MintA),
		readonly(accts.MintB),
		writable(escrow),
		writable(accts.MakerAtaB),
		writable(accts.TakerAtaB),
		writable(accts.TakerAtaA),
		writable(accts.Vault),
		readonly(TokenProgramAddr),
	}
	return Instruction{
		Accounts:  append(metas, hookAccounts...),
		Data:      mustMarshal(&take),
		ProgramId: EscrowProgramAddr,
	}
}

func EscrowProgramExecute(execCtx *ExecutionCtx) error {
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
	case EscrowInstrTypeMake:
		var instr EscrowInstrMake
		if err = instr.UnmarshalWithDecoder(decoder); err != nil {
			return InstrErrInvalidInstructionData
		}
		err = instrCtx.CheckNumOfInstructionAccounts(escrowMakeNumAccounts)
		if err != nil {
			return err
		}
		return EscrowMake(execCtx, instr)

	case EscrowInstrTypeTake:
		var instr EscrowInstrTake
		if err = instr.UnmarshalWithDecoder(decoder); err != nil {
			return InstrErrInvalidInstructionData
		}
		err = instrCtx.CheckNumOfInstructionAccounts(escrowTakeNumAccounts)
		if err != nil {
			return err
		}
		return EscrowTake(execCtx, instr)
	}

	return InstrErrInvalidInstructionData
}

func EscrowMake(execCtx *ExecutionCtx, instr EscrowInstrMake) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	maker, err := requireSigner(txCtx, instrCtx, 0)
	if err != nil {
		return err
	}
	mintA, mintAKey, err := loadMint(txCtx, instrCtx, 1)
	if err != nil {
		return err
	}
	_, mintBKey, err := loadMint(txCtx, instrCtx, 2)
	if err != nil {
		return err
	}

	escrowKey, err := extractAddress(txCtx, instrCtx, 3)
	if err != nil {
		return err
	}
	err = verifyDerivedAuthority(escrowKey, EscrowSeeds(maker), instr.Bump, EscrowProgramAddr)
	if err != nil {
		return err
	}
	reuse, err := programAccountState(txCtx, instrCtx, 3, EscrowLen)
	if err != nil {
		return err
	}

	if instr.AmountToReceive == 0 || instr.AmountToGive == 0 {
		klog.Errorf("Make: zero amounts (receive %d, give %d)", instr.AmountToReceive, instr.AmountToGive)
		return InstrErrInvalidArgument
	}

	makerAtaA, makerAtaAKey, err := loadTokenAccount(txCtx, instrCtx, 4)
	if err != nil {
		return err
	}
	err = validateTokenAccount(makerAtaA, mintAKey, maker, InstrErrIllegalOwner)
	if err != nil {
		return err
	}
	vault, vaultKey, err := loadTokenAccount(txCtx, instrCtx, 5)
	if err != nil {
		return err
	}
	err = validateTokenAccount(vault, mintAKey, escrowKey, InstrErrIllegalOwner)
	if err != nil {
		return err
	}

	cursor := uint64(escrowMakeNumAccounts)
	hookAccts, err := hookAccountsFor(txCtx, instrCtx, mintA, &cursor)
	if err != nil {
		return err
	}

	if !reuse {
		err = createProgramAccount(execCtx, maker, escrowKey, EscrowLen, withBump(EscrowSeeds(maker), instr.Bump))
		if err != nil {
			return err
		}
	}
	escrow := Escrow{
		Maker:           maker,
		MintA:           mintAKey,
		MintB:           mintBKey,
		AmountToReceive: instr.AmountToReceive,
		AmountToGive:    instr.AmountToGive,
		Bump:            instr.Bump,
	}
	err = writeProgramState(execCtx, instrCtx, 3, &escrow)
	if err != nil {
		return err
	}

	err = execCtx.transferTokens(TokenTransfer{
		Source:       makerAtaAKey,
		Mint:         mintAKey,
		Destination:  vaultKey,
		Authority:    maker,
		Amount:       instr.AmountToGive,
		Decimals:     mintA.Decimals,
		HookAccounts: hookAccts,
	}, nil)
	if err != nil {
		return err
	}

	execCtx.logf("Program log: escrow %s opened by %s", escrowKey, maker)
	return nil
}

func EscrowTake(execCtx *ExecutionCtx, take EscrowInstrTake) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	taker, err := requireSigner(txCtx, instrCtx, 0)
	if err != nil {
		return err
	}
	mintA, mintAKey, err := loadMint(txCtx, instrCtx, 1)
	if err != nil {
		return err
	}
	mintB, mintBKey, err := loadMint(txCtx, instrCtx, 2)
	if err != nil {
		return err
	}

	makerAtaB, makerAtaBKey, err := loadTokenAccount(txCtx, instrCtx, 4)
	if err != nil {
		return err
	}
	maker := makerAtaB.Owner

	escrowAcct, err := instrCtx.BorrowInstructionAccount(txCtx, 3)
	if err != nil {
		return err
	}
	escrowKey := escrowAcct.Key()
	if escrowAcct.Owner() != EscrowProgramAddr {
		escrowAcct.Drop()
		expected, _, err := FindEscrowAddress(maker)
		if err != nil || expected != escrowKey {
			return InstrErrInvalidAccountData
		}
		return InstrErrUninitializedAccount
	}
	escrow, err := UnmarshalEscrow(escrowAcct.Data())
	escrowAcct.Drop()
	if err != nil {
		return err
	}

	takerAtaB, takerAtaBKey, err := loadTokenAccount(txCtx, instrCtx, 5)
	if err != nil {
		return err
	}
	takerAtaA, takerAtaAKey, err := loadTokenAccount(txCtx, instrCtx, 6)
	if err != nil {
		return err
	}
	if takerAtaA.Owner != taker || takerAtaB.Owner != taker {
		klog.Errorf("Take: taker accounts not owned by %s", taker)
		return InstrErrIllegalOwner
	}
	if err = validateTokenAccountMint(takerAtaA, mintAKey); err != nil {
		return err
	}
	if err = validateTokenAccountMint(takerAtaB, mintBKey); err != nil {
		return err
	}
	if err = validateTokenAccountMint(makerAtaB, mintBKey); err != nil {
		return err
	}

	// the maker is whoever owns the receiving account; the derivation
	// binds that identity to this record
	err = verifyDerivedAuthority(escrowKey, EscrowSeeds(maker), escrow.Bump, EscrowProgramAddr)
	if err != nil {
		return err
	}
	if escrow.Maker != maker || escrow.MintA != mintAKey || escrow.MintB != mintBKey {
		klog.Errorf("Take: accounts do not match escrow %s", escrowKey)
		return InstrErrInvalidAccountData
	}
	if take.AmountToReceive != escrow.AmountToReceive || take.AmountToGive != escrow.AmountToGive {
		klog.Errorf("Take: terms %d/%d, escrow holds %d/%d", take.AmountToReceive, take.AmountToGive, escrow.AmountToReceive, escrow.AmountToGive)
		return InstrErrInvalidArgument
	}

	vault, vaultKey, err := loadTokenAccount(txCtx, instrCtx, 7)
	if err != nil {
		return err
	}
	err = validateTokenAccount(vault, mintAKey, escrowKey, InstrErrIllegalOwner)
	if err != nil {
		return err
	}

	cursor := uint64(escrowTakeNumAccounts)
	hookAcctsB, err := hookAccountsFor(txCtx, instrCtx, mintB, &cursor)
	if err != nil {
		return err
	}
	hookAcctsA, err := hookAccountsFor(txCtx, instrCtx, mintA, &cursor)
	if err != nil {
		return err
	}

	err = execCtx.transferTokens(TokenTransfer{
		Source:       takerAtaBKey,
		Mint:         mintBKey,
		Destination:  makerAtaBKey,
		Authority:    taker,
		Amount:       escrow.AmountToReceive,
		Decimals:     mintB.Decimals,
		HookAccounts: hookAcctsB,
	}, nil)
	if err != nil {
		return err
	}

	err = execCtx.transferTokens(TokenTransfer{
		Source:       vaultKey,
		Mint:         mintAKey,
		Destination:  takerAtaAKey,
		Authority:    escrowKey,
		Amount:       escrow.AmountToGive,
		Decimals:     mintA.Decimals,
		HookAccounts: hookAcctsA,
	}, [][][]byte{withBump(EscrowSeeds(maker), escrow.Bump)})
	if err != nil {
		return err
	}

	err = writeProgramState(execCtx, instrCtx, 3, &Escrow{})
	if err != nil {
		return err
	}

	execCtx.logf("Program log: escrow %s settled with %s", escrowKey, taker)
	return nil
}
