package sealevel

import (
	"errors"

	"github.com/gagliardetto/solana-go"
	"github.com/samber/lo"
	"go.firedancer.io/settle/pkg/cu"
	"go.firedancer.io/settle/pkg/global"
	solanapda "go.firedancer.io/settle/pkg/solana"
	"k8s.io/klog/v2"
)

type ExecutionCtx struct {
	Log                Logger
	TransactionContext *TransactionCtx
	GlobalCtx          global.GlobalCtx
	ComputeMeter       cu.ComputeMeter
	SysvarCache        SysvarCache
}

// PrepareInstruction resolves a cross-program call's account metas against
// the caller's accounts. Repeated metas collapse onto their first occurrence
// with the union of their privileges, and neither privilege may exceed what
// the caller holds unless the key is one of the derived signers.
func (execCtx *ExecutionCtx) PrepareInstruction(ix Instruction, signers []solana.PublicKey) ([]InstructionAccount, []uint64, error) {
	txCtx := execCtx.TransactionContext
	caller, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return nil, nil, err
	}

	var unique []InstructionAccount
	positions := make([]int, len(ix.Accounts))
	for calleeIdx, meta := range ix.Accounts {
		txIdx, err := txCtx.IndexOfAccount(meta.Pubkey)
		if err != nil {
			klog.Errorf("instruction references unknown account %s", meta.Pubkey)
			return nil, nil, err
		}

		_, pos, found := lo.FindIndexOf(unique, func(a InstructionAccount) bool {
			return a.IndexInTransaction == txIdx
		})
		if found {
			unique[pos].IsSigner = unique[pos].IsSigner || meta.IsSigner
			unique[pos].IsWritable = unique[pos].IsWritable || meta.IsWritable
			positions[calleeIdx] = pos
			continue
		}

		callerIdx, err := caller.IndexOfInstructionAccount(txCtx, meta.Pubkey)
		if err != nil {
			klog.Errorf("instruction account %s not passed to the caller", meta.Pubkey)
			return nil, nil, err
		}
		positions[calleeIdx] = len(unique)
		unique = append(unique, InstructionAccount{
			IndexInTransaction: txIdx,
			IndexInCaller:      callerIdx,
			IndexInCallee:      uint64(calleeIdx),
			IsSigner:           meta.IsSigner,
			IsWritable:         meta.IsWritable,
		})
	}

	for _, instrAcct := range unique {
		if err = checkPrivileges(txCtx, caller, instrAcct, signers); err != nil {
			return nil, nil, err
		}
	}

	programIdx, err := caller.IndexOfInstructionAccount(txCtx, ix.ProgramId)
	if err != nil {
		klog.Errorf("unknown program %s", ix.ProgramId)
		return nil, nil, err
	}
	program, err := caller.BorrowInstructionAccount(txCtx, programIdx)
	if err != nil {
		return nil, nil, err
	}
	defer program.Drop()

	if !program.IsExecutable() {
		klog.Errorf("account %s is not executable", ix.ProgramId)
		return nil, nil, InstrErrAccountNotExecutable
	}

	calleeAccts := lo.Map(positions, func(pos int, _ int) InstructionAccount {
		return unique[pos]
	})
	return calleeAccts, []uint64{program.IndexInTransaction}, nil
}

func checkPrivileges(txCtx *TransactionCtx, caller *InstructionCtx, instrAcct InstructionAccount, signers []solana.PublicKey) error {
	acct, err := caller.BorrowInstructionAccount(txCtx, instrAcct.IndexInCaller)
	if err != nil {
		return err
	}
	defer acct.Drop()

	if instrAcct.IsWritable && !acct.IsWritable() {
		klog.Errorf("%s: writable privilege escalated", acct.Key())
		return InstrErrPrivilegeEscalation
	}
	if instrAcct.IsSigner && !acct.IsSigner() && !lo.Contains(signers, acct.Key()) {
		klog.Errorf("%s: signer privilege escalated", acct.Key())
		return InstrErrPrivilegeEscalation
	}
	return nil
}

func (execCtx *ExecutionCtx) ProcessInstruction(instrData []byte, instructionAccts []InstructionAccount, programIndices []uint64) error {
	nextInstrCtx, err := execCtx.TransactionContext.NextInstructionCtx()
	if err != nil {
		return err
	}

	nextInstrCtx.Configure(programIndices, instructionAccts, instrData)

	if err = execCtx.Push(); err != nil {
		return err
	}

	execErr := execCtx.ExecuteInstruction()
	popErr := execCtx.Pop()
	if execErr != nil {
		return execErr
	}
	return popErr
}

func (execCtx *ExecutionCtx) ExecuteInstruction() error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	borrowedRootAccount, err := instrCtx.BorrowProgramAccount(txCtx, 0)
	if err != nil {
		klog.Infof("BorrowProgramAccount failed: %s", err)
		return InstrErrUnsupportedProgramId
	}

	programKey := borrowedRootAccount.Key()
	ownerId := borrowedRootAccount.Owner()
	borrowedRootAccount.Drop()

	if ownerId != NativeLoaderAddr {
		klog.Errorf("program %s is not a builtin (owner %s)", programKey, ownerId)
		return InstrErrUnsupportedProgramId
	}

	nativeProgram, err := resolveNativeProgramById(programKey)
	if err != nil {
		return err
	}

	klog.V(2).Infof("ExecuteInstruction: %s (%s) at stack height %d", nativeProgram.name, programKey, instrCtx.StackHeight())
	execCtx.logf("Program %s invoke [%d]", programKey, instrCtx.StackHeight())

	err = execCtx.ComputeMeter.ConsumeFor(nativeProgram.name, nativeProgram.cost)
	if err == nil {
		err = nativeProgram.execute(execCtx)
	}
	if errors.Is(err, cu.ErrComputeExceeded) {
		err = InstrErrComputationalBudgetExceeded
	}

	execCtx.GlobalCtx.Metrics.ObserveInstruction(nativeProgram.name, err)
	if err != nil {
		execCtx.logf("Program %s failed: %s", programKey, err)
	} else {
		execCtx.logf("Program %s success", programKey)
	}
	return err
}

// Push enters the next instruction context. A program already on the stack
// may only be re-entered directly from itself.
func (execCtx *ExecutionCtx) Push() error {
	txCtx := execCtx.TransactionContext

	next, err := txCtx.NextInstructionCtx()
	if err != nil {
		return err
	}
	programId, err := next.LastProgramKey(txCtx)
	if err != nil {
		return InstrErrUnsupportedProgramId
	}

	height := txCtx.InstructionCtxStackHeight()
	if height == 0 {
		return txCtx.Push()
	}

	onStack := make([]solana.PublicKey, 0, height)
	for level := uint64(0); level < height; level++ {
		ic, err := txCtx.InstructionCtxAtNestingLevel(level)
		if err != nil {
			continue
		}
		if key, err := ic.LastProgramKey(txCtx); err == nil {
			onStack = append(onStack, key)
		}
	}

	current, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}
	currentKey, err := current.LastProgramKey(txCtx)
	if lo.Contains(onStack, programId) && (err != nil || currentKey != programId) {
		return InstrErrReentrancyNotAllowed
	}

	return txCtx.Push()
}

func (execCtx *ExecutionCtx) Pop() error {
	return execCtx.TransactionContext.Pop()
}

func (execCtx *ExecutionCtx) StackHeight() uint64 {
	return execCtx.TransactionContext.InstructionCtxStackHeight()
}

func (execCtx *ExecutionCtx) NativeInvoke(instruction Instruction, signers []solana.PublicKey) error {
	klog.V(2).Infof("NativeInvoke: %s", instruction.ProgramId)
	err := execCtx.ComputeMeter.Consume(CUInvokeUnits)
	if err != nil {
		return err
	}

	instrAccts, programIndices, err := execCtx.PrepareInstruction(instruction, signers)
	if err != nil {
		return err
	}

	return execCtx.ProcessInstruction(instruction.Data, instrAccts, programIndices)
}

// NativeInvokeSigned invokes instruction with the addresses derived from
// each seed set under the calling program's id added to the signer set.
func (execCtx *ExecutionCtx) NativeInvokeSigned(instruction Instruction, signerSeeds [][][]byte) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	callerProgramId, err := instrCtx.LastProgramKey(txCtx)
	if err != nil {
		return err
	}

	signers := make([]solana.PublicKey, 0, len(signerSeeds))
	for _, seeds := range signerSeeds {
		err = execCtx.ComputeMeter.Consume(CUCreateProgramAddressUnits)
		if err != nil {
			return err
		}
		addr, err := solanapda.CreateProgramAddressBytes(seeds, callerProgramId[:])
		if errors.Is(err, solanapda.ErrSeedLength) {
			return InstrErrMaxSeedLengthExceeded
		} else if err != nil {
			klog.Errorf("NativeInvokeSigned: bad signer seeds for %s: %s", callerProgramId, err)
			return InstrErrInvalidSeeds
		}
		signers = append(signers, solana.PublicKeyFromBytes(addr))
	}

	return execCtx.NativeInvoke(instruction, signers)
}
