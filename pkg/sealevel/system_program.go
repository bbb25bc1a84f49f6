package sealevel

import (
	"bytes"
	"errors"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"k8s.io/klog/v2"
)

const SystemProgMaxPermittedDataLen = 10 * 1024 * 1024

// instruction data past this offset is rejected, matching the packet limit
const systemInstrMaxDataLen = 1232

// system instruction discriminators are little-endian u32s
const (
	SystemInstrTypeCreateAccount = 0
	SystemInstrTypeAssign        = 1
	SystemInstrTypeTransfer      = 2
	SystemInstrTypeAllocate      = 8
)

var (
	SystemProgErrAccountAlreadyInUse        = errors.New("SystemProgErrAccountAlreadyInUse")
	SystemProgErrInvalidAccountDataLength   = errors.New("SystemProgErrInvalidAccountDataLength")
	SystemProgErrResultWithNegativeLamports = errors.New("SystemProgErrResultWithNegativeLamports")
)

func init() {
	registerCustomErrs(map[error]uint32{
		SystemProgErrAccountAlreadyInUse:        0,
		SystemProgErrResultWithNegativeLamports: 1,
		SystemProgErrInvalidAccountDataLength:   3,
	})
}

// SystemInstr is the decoded form of the system instructions this runtime
// serves. Fields not carried by Type are left zero.
type SystemInstr struct {
	Type     uint32
	Lamports uint64
	Space    uint64
	Owner    solana.PublicKey
}

func (instr *SystemInstr) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	var err error
	instr.Type, err = decoder.ReadUint32(bin.LE)
	if err != nil {
		return err
	}

	readOwner := func() error {
		owner, err := decoder.ReadBytes(solana.PublicKeyLength)
		if err == nil {
			instr.Owner = solana.PublicKeyFromBytes(owner)
		}
		return err
	}

	switch instr.Type {
	case SystemInstrTypeCreateAccount:
		if instr.Lamports, err = decoder.ReadUint64(bin.LE); err != nil {
			return err
		}
		if instr.Space, err = decoder.ReadUint64(bin.LE); err != nil {
			return err
		}
		err = readOwner()
	case SystemInstrTypeAssign:
		err = readOwner()
	case SystemInstrTypeTransfer:
		instr.Lamports, err = decoder.ReadUint64(bin.LE)
	case SystemInstrTypeAllocate:
		instr.Space, err = decoder.ReadUint64(bin.LE)
	default:
		return InstrErrInvalidInstructionData
	}
	if err != nil {
		return err
	}

	if decoder.Position() > systemInstrMaxDataLen {
		return InstrErrInvalidInstructionData
	}
	return nil
}

func (instr *SystemInstr) MarshalWithEncoder(encoder *bin.Encoder) error {
	err := encoder.WriteUint32(instr.Type, bin.LE)
	if err != nil {
		return err
	}

	switch instr.Type {
	case SystemInstrTypeCreateAccount:
		if err = encoder.WriteUint64(instr.Lamports, bin.LE); err != nil {
			return err
		}
		if err = encoder.WriteUint64(instr.Space, bin.LE); err != nil {
			return err
		}
		return encoder.WriteBytes(instr.Owner[:], false)
	case SystemInstrTypeAssign:
		return encoder.WriteBytes(instr.Owner[:], false)
	case SystemInstrTypeTransfer:
		return encoder.WriteUint64(instr.Lamports, bin.LE)
	case SystemInstrTypeAllocate:
		return encoder.WriteUint64(instr.Space, bin.LE)
	}
	return InstrErrInvalidInstructionData
}

type binMarshaler interface {
	MarshalWithEncoder(encoder *bin.Encoder) error
}

// mustMarshal encodes instruction data and program state built in-process,
// where an encoding failure is a programming error.
func mustMarshal(v binMarshaler) []byte {
	buf := new(bytes.Buffer)
	if err := v.MarshalWithEncoder(bin.NewBinEncoder(buf)); err != nil {
		panic("shouldn't fail")
	}
	return buf.Bytes()
}

func systemInstruction(instr SystemInstr, accts ...AccountMeta) Instruction {
	return Instruction{
		Accounts:  accts,
		Data:      mustMarshal(&instr),
		ProgramId: SystemProgramAddr,
	}
}

func newCreateAccountInstruction(payer, target solana.PublicKey, lamports, space uint64, owner solana.PublicKey) Instruction {
	instr := SystemInstr{Type: SystemInstrTypeCreateAccount, Lamports: lamports, Space: space, Owner: owner}
	return systemInstruction(instr, writableSigner(payer), writableSigner(target))
}

func NewSystemTransferInstruction(from, to solana.PublicKey, lamports uint64) Instruction {
	return systemInstruction(SystemInstr{Type: SystemInstrTypeTransfer, Lamports: lamports}, writableSigner(from), writable(to))
}

func newAllocateInstruction(target solana.PublicKey, space uint64) Instruction {
	return systemInstruction(SystemInstr{Type: SystemInstrTypeAllocate, Space: space}, writableSigner(target))
}

func newAssignInstruction(target, owner solana.PublicKey) Instruction {
	return systemInstruction(SystemInstr{Type: SystemInstrTypeAssign, Owner: owner}, writableSigner(target))
}

// extractAddress returns the key of the instruction account at instrAcctIdx.
func extractAddress(txCtx *TransactionCtx, instrCtx *InstructionCtx, instrAcctIdx uint64) (solana.PublicKey, error) {
	idx, err := instrCtx.IndexOfInstructionAccountInTransaction(instrAcctIdx)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return txCtx.KeyOfAccountAtIndex(idx)
}

func SystemProgramExecute(execCtx *ExecutionCtx) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	var instr SystemInstr
	if err = instr.UnmarshalWithDecoder(bin.NewBinDecoder(instrCtx.Data)); err != nil {
		return InstrErrInvalidInstructionData
	}

	signers, err := instrCtx.Signers(txCtx)
	if err != nil {
		return err
	}

	switch instr.Type {
	case SystemInstrTypeCreateAccount:
		if err = instrCtx.CheckNumOfInstructionAccounts(2); err != nil {
			return err
		}
		return systemCreateAccount(execCtx, instrCtx, &instr, signers)

	case SystemInstrTypeTransfer:
		if err = instrCtx.CheckNumOfInstructionAccounts(2); err != nil {
			return err
		}
		return systemTransfer(execCtx, instrCtx, instr.Lamports)
	}

	// Assign and Allocate act on a single account.
	if err = instrCtx.CheckNumOfInstructionAccounts(1); err != nil {
		return err
	}
	target, err := instrCtx.BorrowInstructionAccount(txCtx, 0)
	if err != nil {
		return err
	}
	defer target.Drop()

	if instr.Type == SystemInstrTypeAssign {
		return systemAssign(execCtx, target, instr.Owner, signers)
	}
	return systemAllocate(execCtx, target, instr.Space, signers)
}

func systemCreateAccount(execCtx *ExecutionCtx, instrCtx *InstructionCtx, instr *SystemInstr, signers []solana.PublicKey) error {
	target, err := instrCtx.BorrowInstructionAccount(execCtx.TransactionContext, 1)
	if err != nil {
		return err
	}
	defer target.Drop()

	if target.Lamports() != 0 {
		klog.Errorf("CreateAccount: %s already holds %d lamports", target.Key(), target.Lamports())
		return SystemProgErrAccountAlreadyInUse
	}

	if err = systemAllocate(execCtx, target, instr.Space, signers); err != nil {
		return err
	}
	if err = systemAssign(execCtx, target, instr.Owner, signers); err != nil {
		return err
	}
	target.Drop()

	return systemTransfer(execCtx, instrCtx, instr.Lamports)
}

func systemAllocate(execCtx *ExecutionCtx, acct *BorrowedAccount, space uint64, signers []solana.PublicKey) error {
	key := acct.Key()
	if verifySigner(key, signers) != nil {
		klog.Errorf("Allocate: %s did not sign", key)
		return InstrErrMissingRequiredSignature
	}

	if acct.Owner() != SystemProgramAddr || len(acct.Data()) != 0 {
		klog.Errorf("Allocate: %s already in use", key)
		return SystemProgErrAccountAlreadyInUse
	}

	if space > SystemProgMaxPermittedDataLen {
		klog.Errorf("Allocate: %d bytes exceeds limit of %d", space, SystemProgMaxPermittedDataLen)
		return SystemProgErrInvalidAccountDataLength
	}

	return acct.SetDataLength(space, execCtx.GlobalCtx.Features)
}

func systemAssign(execCtx *ExecutionCtx, acct *BorrowedAccount, owner solana.PublicKey, signers []solana.PublicKey) error {
	if acct.Owner() == owner {
		return nil
	}

	if verifySigner(acct.Key(), signers) != nil {
		klog.Errorf("Assign: %s did not sign", acct.Key())
		return InstrErrMissingRequiredSignature
	}

	return acct.SetOwner(execCtx.GlobalCtx.Features, owner)
}

// systemTransfer moves lamports from instruction account 0 to account 1.
// The source must sign and carry no data.
func systemTransfer(execCtx *ExecutionCtx, instrCtx *InstructionCtx, lamports uint64) error {
	isSigner, err := instrCtx.IsInstructionAccountSigner(0)
	if err != nil {
		return err
	}
	if !isSigner {
		klog.Errorf("Transfer: source did not sign")
		return InstrErrMissingRequiredSignature
	}

	txCtx := execCtx.TransactionContext
	f := execCtx.GlobalCtx.Features

	from, err := instrCtx.BorrowInstructionAccount(txCtx, 0)
	if err != nil {
		return err
	}
	defer from.Drop()

	if len(from.Data()) != 0 {
		klog.Errorf("Transfer: source %s carries data", from.Key())
		return InstrErrInvalidArgument
	}

	if from.Lamports() < lamports {
		klog.Errorf("Transfer: source holds %d lamports, need %d", from.Lamports(), lamports)
		return SystemProgErrResultWithNegativeLamports
	}

	if err = from.CheckedSubLamports(lamports, f); err != nil {
		return err
	}
	from.Drop()

	to, err := instrCtx.BorrowInstructionAccount(txCtx, 1)
	if err != nil {
		return err
	}
	defer to.Drop()

	return to.CheckedAddLamports(lamports, f)
}
