package sealevel

import (
	"errors"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"go.firedancer.io/settle/pkg/features"
	"go.firedancer.io/settle/pkg/safemath"
	"k8s.io/klog/v2"
)

const (
	FundraiserInstrTypeInitialize         = 0
	FundraiserInstrTypeContribute         = 1
	FundraiserInstrTypeCheckContributions = 2
	FundraiserInstrTypeRefund             = 3
)

const (
	fundraiserInitializeNumAccounts         = 5
	fundraiserContributeNumAccounts         = 8
	fundraiserCheckContributionsNumAccounts = 6
	fundraiserRefundNumAccounts             = 8
)

var (
	FundraiserErrTargetNotReached = errors.New("FundraiserErrTargetNotReached")
	ContributeErrFundraiserEnded  = errors.New("ContributeErrFundraiserEnded")
	RefundErrTimeNotElapsed       = errors.New("RefundErrTimeNotElapsed")
	RefundErrTargetAlreadyReached = errors.New("RefundErrTargetAlreadyReached")
	RefundErrNoContribution       = errors.New("RefundErrNoContribution")
)

func init() {
	registerCustomErrs(map[error]uint32{
		FundraiserErrTargetNotReached: 0,
		RefundErrTimeNotElapsed:       0,
		RefundErrTargetAlreadyReached: 1,
		RefundErrNoContribution:       2,
		ContributeErrFundraiserEnded:  3,
	})
}

type FundraiserInstrInitialize struct {
	AmountToRaise uint64
	Duration      uint64
}

type FundraiserInstrContribute struct {
	Amount uint64
}

func (instr *FundraiserInstrInitialize) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	var err error
	instr.AmountToRaise, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	instr.Duration, err = decoder.ReadUint64(bin.LE)
	return err
}

func (instr *FundraiserInstrInitialize) MarshalWithEncoder(encoder *bin.Encoder) error {
	err := encoder.WriteUint8(FundraiserInstrTypeInitialize)
	if err != nil {
		return err
	}
	err = encoder.WriteUint64(instr.AmountToRaise, bin.LE)
	if err != nil {
		return err
	}
	return encoder.WriteUint64(instr.Duration, bin.LE)
}

func (instr *FundraiserInstrContribute) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	var err error
	instr.Amount, err = decoder.ReadUint64(bin.LE)
	return err
}

func (instr *FundraiserInstrContribute) MarshalWithEncoder(encoder *bin.Encoder) error {
	err := encoder.WriteUint8(FundraiserInstrTypeContribute)
	if err != nil {
		return err
	}
	return encoder.WriteUint64(instr.Amount, bin.LE)
}

func NewFundraiserInitializeInstruction(maker, mint, vault solana.PublicKey, amountToRaise, duration uint64) Instruction {
	fundraiser, _, _ := FindFundraiserAddress(maker)
	instr := FundraiserInstrInitialize{AmountToRaise: amountToRaise, Duration: duration}
	return Instruction{
		Accounts: []AccountMeta{
			writableSigner(maker), readonly(mint), writable(fundraiser), readonly(vault), readonly(SystemProgramAddr),
		},
		Data:      mustMarshal(&instr),
		ProgramId: FundraiserProgramAddr,
	}
}

func NewFundraiserContributeInstruction(contributor, maker, mint, vault, contributorAta solana.PublicKey, amount uint64, hookAccounts []AccountMeta) Instruction {
	fundraiser, _, _ := FindFundraiserAddress(maker)
	record, _, _ := FindContributorAddress(contributor)
	instr := FundraiserInstrContribute{Amount: amount}
	metas := []AccountMeta{
		writableSigner(contributor),
		readonly(mint),
		writable(fundraiser),
		writable(vault),
		writable(contributorAta),
		writable(record),
		readonly(SystemProgramAddr),
		readonly(TokenProgramAddr),
	}
	return Instruction{
		Accounts:  append(metas, hookAccounts...),
		Data:      mustMarshal(&instr),
		ProgramId: FundraiserProgramAddr,
	}
}

func NewFundraiserCheckContributionsInstruction(maker, mint, vault, makerAta solana.PublicKey, hookAccounts []AccountMeta) Instruction {
	fundraiser, _, _ := FindFundraiserAddress(maker)
	metas := []AccountMeta{
		signer(maker),
		readonly(mint),
		readonly(fundraiser),
		writable(vault),
		writable(makerAta),
		readonly(TokenProgramAddr),
	}
	return Instruction{
		Accounts:  append(metas, hookAccounts...),
		Data:      []byte{FundraiserInstrTypeCheckContributions},
		ProgramId: FundraiserProgramAddr,
	}
}

func NewFundraiserRefundInstruction(contributor, maker, mint, vault, contributorAta solana.PublicKey, hookAccounts []AccountMeta) Instruction {
	fundraiser, _, _ := FindFundraiserAddress(maker)
	record, _, _ := FindContributorAddress(contributor)
	metas := []AccountMeta{
		signer(contributor),
		readonly(maker),
		readonly(mint),
		writable(fundraiser),
		writable(vault),
		writable(contributorAta),
		writable(record),
		readonly(TokenProgramAddr),
	}
	return Instruction{
		Accounts:  append(metas, hookAccounts...),
		Data:      []byte{FundraiserInstrTypeRefund},
		ProgramId: FundraiserProgramAddr,
	}
}

func FundraiserProgramExecute(execCtx *ExecutionCtx) error {
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
	case FundraiserInstrTypeInitialize:
		var instr FundraiserInstrInitialize
		if err = instr.UnmarshalWithDecoder(decoder); err != nil {
			return InstrErrInvalidInstructionData
		}
		err = instrCtx.CheckNumOfInstructionAccounts(fundraiserInitializeNumAccounts)
		if err != nil {
			return err
		}
		return FundraiserInitialize(execCtx, instr)

	case FundraiserInstrTypeContribute:
		var instr FundraiserInstrContribute
		if err = instr.UnmarshalWithDecoder(decoder); err != nil {
			return InstrErrInvalidInstructionData
		}
		err = instrCtx.CheckNumOfInstructionAccounts(fundraiserContributeNumAccounts)
		if err != nil {
			return err
		}
		return FundraiserContribute(execCtx, instr.Amount)

	case FundraiserInstrTypeCheckContributions:
		err = instrCtx.CheckNumOfInstructionAccounts(fundraiserCheckContributionsNumAccounts)
		if err != nil {
			return err
		}
		return FundraiserCheckContributions(execCtx)

	case FundraiserInstrTypeRefund:
		err = instrCtx.CheckNumOfInstructionAccounts(fundraiserRefundNumAccounts)
		if err != nil {
			return err
		}
		return FundraiserRefund(execCtx)
	}

	return InstrErrInvalidInstructionData
}

// loadFundraiser decodes the campaign record at instrAcctIdx. ownerErr is
// returned when the account does not belong to the fundraiser program.
func loadFundraiser(txCtx *TransactionCtx, instrCtx *InstructionCtx, instrAcctIdx uint64, ownerErr error) (*Fundraiser, solana.PublicKey, error) {
	acct, err := instrCtx.BorrowInstructionAccount(txCtx, instrAcctIdx)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	defer acct.Drop()

	if acct.Owner() != FundraiserProgramAddr {
		klog.Errorf("fundraiser %s is owned by %s", acct.Key(), acct.Owner())
		return nil, acct.Key(), ownerErr
	}
	f, err := UnmarshalFundraiser(acct.Data())
	return f, acct.Key(), err
}

func FundraiserInitialize(execCtx *ExecutionCtx, instr FundraiserInstrInitialize) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	maker, err := requireSigner(txCtx, instrCtx, 0)
	if err != nil {
		return err
	}

	fundraiserKey, err := extractAddress(txCtx, instrCtx, 2)
	if err != nil {
		return err
	}
	expected, bump, err := FindFundraiserAddress(maker)
	if err != nil {
		return InstrErrInvalidSeeds
	}
	if expected != fundraiserKey {
		klog.Errorf("Initialize: fundraiser %s, expected %s", fundraiserKey, expected)
		return InstrErrInvalidAccountData
	}
	err = requireUninitialized(txCtx, instrCtx, 2)
	if err != nil {
		return err
	}

	vault, _, err := loadTokenAccount(txCtx, instrCtx, 3)
	if err != nil {
		return err
	}
	if vault.Owner != fundraiserKey {
		return InstrErrIllegalOwner
	}
	_, mintKey, err := loadMint(txCtx, instrCtx, 1)
	if err != nil {
		return err
	}
	if err = validateTokenAccountMint(vault, mintKey); err != nil {
		return err
	}

	if instr.AmountToRaise == 0 {
		klog.Errorf("Initialize: zero target")
		return InstrErrInvalidArgument
	}

	clock, err := execCtx.SysvarCache.GetClock()
	if err != nil {
		return err
	}

	err = createProgramAccount(execCtx, maker, fundraiserKey, FundraiserLen, withBump(FundraiserSeeds(maker), bump))
	if err != nil {
		return err
	}
	fundraiser := Fundraiser{
		Maker:         maker,
		Mint:          mintKey,
		AmountToRaise: instr.AmountToRaise,
		TimeStarted:   clock.Now(),
		Duration:      instr.Duration,
		Bump:          bump,
	}
	err = writeProgramState(execCtx, instrCtx, 2, &fundraiser)
	if err != nil {
		return err
	}

	execCtx.logf("Program log: fundraiser %s raising %d until %d", fundraiserKey, instr.AmountToRaise, fundraiser.Deadline())
	return nil
}

func FundraiserContribute(execCtx *ExecutionCtx, amount uint64) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	contributor, err := requireSigner(txCtx, instrCtx, 0)
	if err != nil {
		return err
	}
	fundraiser, fundraiserKey, err := loadFundraiser(txCtx, instrCtx, 2, InstrErrIllegalOwner)
	if err != nil {
		return err
	}
	mint, mintKey, err := loadMint(txCtx, instrCtx, 1)
	if err != nil {
		return err
	}
	if mintKey != fundraiser.Mint {
		return InstrErrInvalidAccountData
	}
	err = verifyDerivedAuthority(fundraiserKey, FundraiserSeeds(fundraiser.Maker), fundraiser.Bump, FundraiserProgramAddr)
	if err != nil {
		return err
	}

	vault, vaultKey, err := loadTokenAccount(txCtx, instrCtx, 3)
	if err != nil {
		return err
	}
	err = validateTokenAccount(vault, mintKey, fundraiserKey, InstrErrIllegalOwner)
	if err != nil {
		return err
	}

	if execCtx.GlobalCtx.Features.IsActive(features.ContributionsCloseAtDeadline) {
		clock, err := execCtx.SysvarCache.GetClock()
		if err != nil {
			return err
		}
		if clock.Now() > fundraiser.Deadline() {
			klog.Errorf("Contribute: %s closed at %d", fundraiserKey, fundraiser.Deadline())
			return ContributeErrFundraiserEnded
		}
	}

	contributorAta, contributorAtaKey, err := loadTokenAccount(txCtx, instrCtx, 4)
	if err != nil {
		return err
	}
	err = validateTokenAccount(contributorAta, mintKey, contributor, InstrErrIllegalOwner)
	if err != nil {
		return err
	}
	if contributorAta.Amount < amount {
		klog.Errorf("Contribute: %s holds %d, contributing %d", contributorAtaKey, contributorAta.Amount, amount)
		return InstrErrInvalidArgument
	}
	if amount < MinContribution || amount > MaxContribution {
		klog.Errorf("Contribute: %d outside [%d, %d]", amount, MinContribution, MaxContribution)
		return InstrErrInvalidArgument
	}

	recordKey, err := extractAddress(txCtx, instrCtx, 5)
	if err != nil {
		return err
	}
	expected, recordBump, err := FindContributorAddress(contributor)
	if err != nil {
		return InstrErrInvalidSeeds
	}
	if expected != recordKey {
		klog.Errorf("Contribute: contributor record %s, expected %s", recordKey, expected)
		return InstrErrInvalidAccountData
	}
	record, err := loadContributor(txCtx, instrCtx, 5)
	if err != nil {
		return err
	}

	cursor := uint64(fundraiserContributeNumAccounts)
	hookAccts, err := hookAccountsFor(txCtx, instrCtx, mint, &cursor)
	if err != nil {
		return err
	}

	if record == nil {
		err = createProgramAccount(execCtx, contributor, recordKey, ContributorLen, withBump(ContributorSeeds(contributor), recordBump))
		if err != nil {
			return err
		}
		record = new(Contributor)
	}
	err = record.Accumulate(amount)
	if err != nil {
		return err
	}
	fundraiser.CurrentAmount, err = safemath.CheckedAddU64(fundraiser.CurrentAmount, amount)
	if err != nil {
		return InstrErrArithmeticOverflow
	}
	err = writeProgramState(execCtx, instrCtx, 5, record)
	if err != nil {
		return err
	}
	err = writeProgramState(execCtx, instrCtx, 2, fundraiser)
	if err != nil {
		return err
	}

	err = execCtx.transferTokens(TokenTransfer{
		Source:       contributorAtaKey,
		Mint:         mintKey,
		Destination:  vaultKey,
		Authority:    contributor,
		Amount:       amount,
		Decimals:     mint.Decimals,
		HookAccounts: hookAccts,
	}, nil)
	if err != nil {
		return err
	}

	execCtx.logf("Program log: %s contributed %d to %s, total %d", contributor, amount, fundraiserKey, record.Amount)
	return nil
}

// loadContributor returns the record at instrAcctIdx, or nil when it has not
// been created yet.
func loadContributor(txCtx *TransactionCtx, instrCtx *InstructionCtx, instrAcctIdx uint64) (*Contributor, error) {
	acct, err := instrCtx.BorrowInstructionAccount(txCtx, instrAcctIdx)
	if err != nil {
		return nil, err
	}
	defer acct.Drop()

	if acct.Owner() == FundraiserProgramAddr {
		return UnmarshalContributor(acct.Data())
	}
	if acct.Owner() != SystemProgramAddr || len(acct.Data()) != 0 {
		return nil, InstrErrAccountAlreadyInitialized
	}
	return nil, nil
}

// claimAllowed applies the maker-claim predicate. By default a claim is
// refused once the vault holds the target.
func claimAllowed(f features.Features, vaultBalance, target uint64) bool {
	if f.IsActive(features.CheckContributionsRequiresTarget) {
		return vaultBalance >= target
	}
	return vaultBalance < target
}

func FundraiserCheckContributions(execCtx *ExecutionCtx) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	maker, err := requireSigner(txCtx, instrCtx, 0)
	if err != nil {
		return err
	}
	fundraiser, fundraiserKey, err := loadFundraiser(txCtx, instrCtx, 2, InstrErrInvalidAccountOwner)
	if err != nil {
		return err
	}
	mint, mintKey, err := loadMint(txCtx, instrCtx, 1)
	if err != nil {
		return err
	}
	if mintKey != fundraiser.Mint {
		return InstrErrInvalidAccountData
	}

	vault, vaultKey, err := loadTokenAccount(txCtx, instrCtx, 3)
	if err != nil {
		return err
	}
	err = validateTokenAccount(vault, mintKey, fundraiserKey, InstrErrInvalidAccountOwner)
	if err != nil {
		return err
	}

	if !claimAllowed(execCtx.GlobalCtx.Features, vault.Amount, fundraiser.AmountToRaise) {
		klog.Errorf("CheckContributions: vault holds %d of %d", vault.Amount, fundraiser.AmountToRaise)
		return FundraiserErrTargetNotReached
	}

	makerAta, makerAtaKey, err := loadTokenAccount(txCtx, instrCtx, 4)
	if err != nil {
		return err
	}
	err = validateTokenAccount(makerAta, mintKey, maker, InstrErrInvalidAccountOwner)
	if err != nil {
		return err
	}

	err = verifyDerivedAuthority(fundraiserKey, FundraiserSeeds(maker), fundraiser.Bump, FundraiserProgramAddr)
	if err != nil {
		return err
	}

	cursor := uint64(fundraiserCheckContributionsNumAccounts)
	hookAccts, err := hookAccountsFor(txCtx, instrCtx, mint, &cursor)
	if err != nil {
		return err
	}

	err = execCtx.transferTokens(TokenTransfer{
		Source:       vaultKey,
		Mint:         mintKey,
		Destination:  makerAtaKey,
		Authority:    fundraiserKey,
		Amount:       vault.Amount,
		Decimals:     mint.Decimals,
		HookAccounts: hookAccts,
	}, [][][]byte{withBump(FundraiserSeeds(maker), fundraiser.Bump)})
	if err != nil {
		return err
	}

	execCtx.logf("Program log: %s claimed %d from %s", maker, vault.Amount, fundraiserKey)
	return nil
}

func FundraiserRefund(execCtx *ExecutionCtx) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	contributor, err := requireSigner(txCtx, instrCtx, 0)
	if err != nil {
		return err
	}
	maker, err := extractAddress(txCtx, instrCtx, 1)
	if err != nil {
		return err
	}
	fundraiser, fundraiserKey, err := loadFundraiser(txCtx, instrCtx, 3, InstrErrInvalidAccountOwner)
	if err != nil {
		return err
	}
	err = verifyDerivedAuthority(fundraiserKey, FundraiserSeeds(maker), fundraiser.Bump, FundraiserProgramAddr)
	if err != nil {
		return err
	}
	mint, mintKey, err := loadMint(txCtx, instrCtx, 2)
	if err != nil {
		return err
	}
	if mintKey != fundraiser.Mint {
		return InstrErrInvalidAccountData
	}

	vault, vaultKey, err := loadTokenAccount(txCtx, instrCtx, 4)
	if err != nil {
		return err
	}
	err = validateTokenAccount(vault, mintKey, fundraiserKey, InstrErrIllegalOwner)
	if err != nil {
		return err
	}

	clock, err := execCtx.SysvarCache.GetClock()
	if err != nil {
		return err
	}
	if clock.Now() <= fundraiser.Deadline() {
		klog.Errorf("Refund: %s open until %d, now %d", fundraiserKey, fundraiser.Deadline(), clock.Now())
		return RefundErrTimeNotElapsed
	}
	if vault.Amount >= fundraiser.AmountToRaise {
		return RefundErrTargetAlreadyReached
	}

	recordKey, err := extractAddress(txCtx, instrCtx, 6)
	if err != nil {
		return err
	}
	expected, _, err := FindContributorAddress(contributor)
	if err != nil {
		return InstrErrInvalidSeeds
	}
	if expected != recordKey {
		klog.Errorf("Refund: contributor record %s, expected %s", recordKey, expected)
		return InstrErrInvalidAccountData
	}
	record, err := loadContributor(txCtx, instrCtx, 6)
	if err != nil {
		return err
	}
	if record == nil {
		return InstrErrUninitializedAccount
	}
	if record.Amount == 0 {
		return RefundErrNoContribution
	}
	refund := record.Amount

	contributorAta, contributorAtaKey, err := loadTokenAccount(txCtx, instrCtx, 5)
	if err != nil {
		return err
	}
	err = validateTokenAccount(contributorAta, mintKey, contributor, InstrErrIllegalOwner)
	if err != nil {
		return err
	}

	cursor := uint64(fundraiserRefundNumAccounts)
	hookAccts, err := hookAccountsFor(txCtx, instrCtx, mint, &cursor)
	if err != nil {
		return err
	}

	record.Clear()
	err = writeProgramState(execCtx, instrCtx, 6, record)
	if err != nil {
		return err
	}
	fundraiser.CurrentAmount = safemath.SaturatingSubU64(fundraiser.CurrentAmount, refund)
	err = writeProgramState(execCtx, instrCtx, 3, fundraiser)
	if err != nil {
		return err
	}

	err = execCtx.transferTokens(TokenTransfer{
		Source:       vaultKey,
		Mint:         mintKey,
		Destination:  contributorAtaKey,
		Authority:    fundraiserKey,
		Amount:       refund,
		Decimals:     mint.Decimals,
		HookAccounts: hookAccts,
	}, [][][]byte{withBump(FundraiserSeeds(maker), fundraiser.Bump)})
	if err != nil {
		return err
	}

	execCtx.logf("Program log: refunded %d to %s from %s", refund, contributor, fundraiserKey)
	return nil
}
