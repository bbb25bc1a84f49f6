package sealevel

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.firedancer.io/settle/pkg/features"
)

const (
	testRaiseTarget   = 4_000_000_000_000
	testRaiseDuration = 1_209_600
)

type fundraiserFixture struct {
	l          *testLedger
	admin      solana.PublicKey
	maker      solana.PublicKey
	mint       solana.PublicKey
	vault      solana.PublicKey
	makerAta   solana.PublicKey
	fundraiser solana.PublicKey
	bump       uint8
	hooked     bool
}

func newFundraiserFixture(t *testing.T, hooked bool) *fundraiserFixture {
	l := newTestLedger(t)
	f := &fundraiserFixture{l: l, admin: l.newWallet(), maker: l.newWallet(), hooked: hooked}
	if hooked {
		f.mint = newPermitMint(t, l, f.admin)
	} else {
		f.mint = l.newMint(f.admin, 6, nil)
	}

	var err error
	f.fundraiser, f.bump, err = FindFundraiserAddress(f.maker)
	require.NoError(t, err)
	f.vault = l.newTokenAccount(f.mint, f.fundraiser, 0)
	f.makerAta = l.newTokenAccount(f.mint, f.maker, 0)
	return f
}

func (f *fundraiserFixture) hookAccounts(sourceOwner, destOwner solana.PublicKey) []AccountMeta {
	if !f.hooked {
		return nil
	}
	return TransferHookAccounts(f.mint, sourceOwner, destOwner)
}

func (f *fundraiserFixture) initIx(amountToRaise, duration uint64) Instruction {
	return NewFundraiserInitializeInstruction(f.maker, f.mint, f.vault, amountToRaise, duration)
}

func (f *fundraiserFixture) newContributor(balance uint64) (solana.PublicKey, solana.PublicKey) {
	contributor := f.l.newWallet()
	return contributor, f.l.newTokenAccount(f.mint, contributor, balance)
}

func (f *fundraiserFixture) contributeIx(contributor, contributorAta solana.PublicKey, amount uint64) Instruction {
	return NewFundraiserContributeInstruction(contributor, f.maker, f.mint, f.vault, contributorAta, amount, f.hookAccounts(contributor, f.fundraiser))
}

func (f *fundraiserFixture) checkContributionsIx() Instruction {
	return NewFundraiserCheckContributionsInstruction(f.maker, f.mint, f.vault, f.makerAta, f.hookAccounts(f.fundraiser, f.maker))
}

func (f *fundraiserFixture) refundIx(contributor, contributorAta solana.PublicKey) Instruction {
	return NewFundraiserRefundInstruction(contributor, f.maker, f.mint, f.vault, contributorAta, f.hookAccounts(f.fundraiser, contributor))
}

func (f *fundraiserFixture) record() *Fundraiser {
	fundraiser, err := UnmarshalFundraiser(f.l.account(f.fundraiser).Data)
	require.NoError(f.l.t, err)
	return fundraiser
}

func (f *fundraiserFixture) contribution(contributor solana.PublicKey) *Contributor {
	key, _, err := FindContributorAddress(contributor)
	require.NoError(f.l.t, err)
	record, err := UnmarshalContributor(f.l.account(key).Data)
	require.NoError(f.l.t, err)
	return record
}

func (f *fundraiserFixture) passDeadline() {
	f.l.clock.UnixTimestamp += testRaiseDuration + 1
}

func TestExecute_Fundraiser_Program_Initialize_And_Contribute_Success(t *testing.T) {
	f := newFundraiserFixture(t, false)
	l := f.l
	contributor, contributorAta := f.newContributor(50_000_000)

	require.NoError(t, l.execute(f.initIx(testRaiseTarget, testRaiseDuration)))
	require.NoError(t, l.execute(f.contributeIx(contributor, contributorAta, 10_000_000)))

	assert.Equal(t, Fundraiser{
		Maker:         f.maker,
		Mint:          f.mint,
		AmountToRaise: testRaiseTarget,
		CurrentAmount: 10_000_000,
		TimeStarted:   1_700_000_000,
		Duration:      testRaiseDuration,
		Bump:          f.bump,
	}, *f.record())
	assert.Equal(t, uint64(10_000_000), f.contribution(contributor).Amount)
	assert.Equal(t, uint64(10_000_000), l.balance(f.vault))
	assert.Equal(t, uint64(40_000_000), l.balance(contributorAta))

	acct := l.account(f.fundraiser)
	assert.Equal(t, FundraiserProgramAddr, solana.PublicKeyFromBytes(acct.Owner[:]))
	assert.Equal(t, DefaultRent().MinimumBalance(FundraiserLen), acct.Lamports)
}

func TestExecute_Fundraiser_Program_Initialize_Twice_Failure(t *testing.T) {
	f := newFundraiserFixture(t, false)
	require.NoError(t, f.l.execute(f.initIx(testRaiseTarget, testRaiseDuration)))

	err := f.l.execute(f.initIx(1, 1))
	assert.ErrorIs(t, err, InstrErrAccountAlreadyInitialized)
	assert.Equal(t, uint64(testRaiseTarget), f.record().AmountToRaise)
}

func TestExecute_Fundraiser_Program_Initialize_Zero_Target_Failure(t *testing.T) {
	f := newFundraiserFixture(t, false)

	err := f.l.execute(f.initIx(0, testRaiseDuration))
	assert.ErrorIs(t, err, InstrErrInvalidArgument)
}

func TestExecute_Fundraiser_Program_Initialize_Wrong_Address_Failure(t *testing.T) {
	f := newFundraiserFixture(t, false)
	ix := f.initIx(testRaiseTarget, testRaiseDuration)
	ix.Accounts[2].Pubkey = newTestPubkey(t)

	err := f.l.execute(ix)
	assert.ErrorIs(t, err, InstrErrInvalidAccountData)
}

func TestExecute_Fundraiser_Program_Initialize_Vault_Not_Owned_By_Fundraiser_Failure(t *testing.T) {
	f := newFundraiserFixture(t, false)
	f.vault = f.makerAta

	err := f.l.execute(f.initIx(testRaiseTarget, testRaiseDuration))
	assert.ErrorIs(t, err, InstrErrIllegalOwner)
}

func TestExecute_Fundraiser_Program_Initialize_Maker_Didnt_Sign_Failure(t *testing.T) {
	f := newFundraiserFixture(t, false)
	ix := f.initIx(testRaiseTarget, testRaiseDuration)
	ix.Accounts[0].IsSigner = false

	err := f.l.execute(ix)
	assert.ErrorIs(t, err, InstrErrMissingRequiredSignature)
}

func TestExecute_Fundraiser_Program_Contribute_Bounds(t *testing.T) {
	f := newFundraiserFixture(t, false)
	l := f.l
	require.NoError(t, l.execute(f.initIx(testRaiseTarget, testRaiseDuration)))
	contributor, contributorAta := f.newContributor(2 * MaxContribution)

	err := l.execute(f.contributeIx(contributor, contributorAta, MinContribution-1))
	assert.ErrorIs(t, err, InstrErrInvalidArgument)
	err = l.execute(f.contributeIx(contributor, contributorAta, MaxContribution+1))
	assert.ErrorIs(t, err, InstrErrInvalidArgument)
	assert.Equal(t, uint64(0), l.balance(f.vault))

	require.NoError(t, l.execute(f.contributeIx(contributor, contributorAta, MinContribution)))
	require.NoError(t, l.execute(f.contributeIx(contributor, contributorAta, MaxContribution)))
	assert.Equal(t, uint64(MinContribution+MaxContribution), l.balance(f.vault))
	assert.Equal(t, uint64(MinContribution+MaxContribution), f.contribution(contributor).Amount)
	assert.Equal(t, uint64(MinContribution+MaxContribution), f.record().CurrentAmount)
}

func TestExecute_Fundraiser_Program_Contribute_Insufficient_Balance_Failure(t *testing.T) {
	f := newFundraiserFixture(t, false)
	require.NoError(t, f.l.execute(f.initIx(testRaiseTarget, testRaiseDuration)))
	contributor, contributorAta := f.newContributor(MinContribution - 1)

	err := f.l.execute(f.contributeIx(contributor, contributorAta, MinContribution))
	assert.ErrorIs(t, err, InstrErrInvalidArgument)
}

func TestExecute_Fundraiser_Program_Contribute_Uninitialized_Fundraiser_Failure(t *testing.T) {
	f := newFundraiserFixture(t, false)
	contributor, contributorAta := f.newContributor(MinContribution)

	err := f.l.execute(f.contributeIx(contributor, contributorAta, MinContribution))
	assert.ErrorIs(t, err, InstrErrIllegalOwner)
}

func TestExecute_Fundraiser_Program_Contribute_Foreign_Record_Failure(t *testing.T) {
	f := newFundraiserFixture(t, false)
	require.NoError(t, f.l.execute(f.initIx(testRaiseTarget, testRaiseDuration)))
	contributor, contributorAta := f.newContributor(MinContribution)
	other, _, err := FindContributorAddress(f.maker)
	require.NoError(t, err)

	ix := f.contributeIx(contributor, contributorAta, MinContribution)
	ix.Accounts[5].Pubkey = other

	err = f.l.execute(ix)
	assert.ErrorIs(t, err, InstrErrInvalidAccountData)
}

func TestExecute_Fundraiser_Program_Contribute_Foreign_Token_Account_Failure(t *testing.T) {
	f := newFundraiserFixture(t, false)
	require.NoError(t, f.l.execute(f.initIx(testRaiseTarget, testRaiseDuration)))
	contributor, _ := f.newContributor(0)
	_, otherAta := f.newContributor(MinContribution)

	err := f.l.execute(f.contributeIx(contributor, otherAta, MinContribution))
	assert.ErrorIs(t, err, InstrErrIllegalOwner)
}

func TestExecute_Fundraiser_Program_Contribute_After_Deadline(t *testing.T) {
	f := newFundraiserFixture(t, false)
	l := f.l
	require.NoError(t, l.execute(f.initIx(testRaiseTarget, testRaiseDuration)))
	contributor, contributorAta := f.newContributor(2 * MinContribution)
	f.passDeadline()

	require.NoError(t, l.execute(f.contributeIx(contributor, contributorAta, MinContribution)))

	l.features.EnableFeature(features.ContributionsCloseAtDeadline, 0)
	err := l.execute(f.contributeIx(contributor, contributorAta, MinContribution))
	assert.ErrorIs(t, err, ContributeErrFundraiserEnded)
	code, ok := CustomErrCode(err)
	assert.True(t, ok)
	assert.Equal(t, uint32(3), code)
	assert.Equal(t, uint64(MinContribution), l.balance(f.vault))
}

func TestExecute_Fundraiser_Program_CheckContributions_Below_Target_Success(t *testing.T) {
	f := newFundraiserFixture(t, false)
	l := f.l
	require.NoError(t, l.execute(f.initIx(testRaiseTarget, testRaiseDuration)))
	contributor, contributorAta := f.newContributor(MinContribution)
	require.NoError(t, l.execute(f.contributeIx(contributor, contributorAta, MinContribution)))

	require.NoError(t, l.execute(f.checkContributionsIx()))
	assert.Equal(t, uint64(0), l.balance(f.vault))
	assert.Equal(t, uint64(MinContribution), l.balance(f.makerAta))
}

func TestExecute_Fundraiser_Program_CheckContributions_Target_Met_Failure(t *testing.T) {
	f := newFundraiserFixture(t, false)
	l := f.l
	require.NoError(t, l.execute(f.initIx(2*MinContribution, testRaiseDuration)))
	contributor, contributorAta := f.newContributor(2 * MinContribution)
	require.NoError(t, l.execute(f.contributeIx(contributor, contributorAta, 2*MinContribution)))

	err := l.execute(f.checkContributionsIx())
	assert.ErrorIs(t, err, FundraiserErrTargetNotReached)
	code, ok := CustomErrCode(err)
	assert.True(t, ok)
	assert.Equal(t, uint32(0), code)
	assert.Equal(t, uint64(2*MinContribution), l.balance(f.vault))
}

func TestExecute_Fundraiser_Program_CheckContributions_Requires_Target(t *testing.T) {
	f := newFundraiserFixture(t, false)
	l := f.l
	l.features.EnableFeature(features.CheckContributionsRequiresTarget, 0)
	require.NoError(t, l.execute(f.initIx(2*MinContribution, testRaiseDuration)))
	contributor, contributorAta := f.newContributor(2 * MinContribution)
	require.NoError(t, l.execute(f.contributeIx(contributor, contributorAta, MinContribution)))

	err := l.execute(f.checkContributionsIx())
	assert.ErrorIs(t, err, FundraiserErrTargetNotReached)

	require.NoError(t, l.execute(f.contributeIx(contributor, contributorAta, MinContribution)))
	require.NoError(t, l.execute(f.checkContributionsIx()))
	assert.Equal(t, uint64(0), l.balance(f.vault))
	assert.Equal(t, uint64(2*MinContribution), l.balance(f.makerAta))
}

func TestExecute_Fundraiser_Program_CheckContributions_Impostor_Maker_Failure(t *testing.T) {
	f := newFundraiserFixture(t, false)
	l := f.l
	require.NoError(t, l.execute(f.initIx(testRaiseTarget, testRaiseDuration)))
	contributor, contributorAta := f.newContributor(MinContribution)
	require.NoError(t, l.execute(f.contributeIx(contributor, contributorAta, MinContribution)))

	impostor := l.newWallet()
	ix := f.checkContributionsIx()
	ix.Accounts[0].Pubkey = impostor
	ix.Accounts[4].Pubkey = l.newTokenAccount(f.mint, impostor, 0)

	err := l.execute(ix)
	assert.ErrorIs(t, err, InstrErrInvalidAccountData)
	assert.Equal(t, uint64(MinContribution), l.balance(f.vault))
}

func TestExecute_Fundraiser_Program_CheckContributions_Maker_Account_Wrong_Owner_Failure(t *testing.T) {
	f := newFundraiserFixture(t, false)
	require.NoError(t, f.l.execute(f.initIx(testRaiseTarget, testRaiseDuration)))
	f.makerAta = f.l.newTokenAccount(f.mint, f.admin, 0)

	err := f.l.execute(f.checkContributionsIx())
	assert.ErrorIs(t, err, InstrErrInvalidAccountOwner)
}

func TestExecute_Fundraiser_Program_Refund_Success(t *testing.T) {
	f := newFundraiserFixture(t, false)
	l := f.l
	require.NoError(t, l.execute(f.initIx(testRaiseTarget, testRaiseDuration)))
	alice, aliceAta := f.newContributor(MinContribution)
	bob, bobAta := f.newContributor(3 * MinContribution)
	require.NoError(t, l.execute(f.contributeIx(alice, aliceAta, MinContribution)))
	require.NoError(t, l.execute(f.contributeIx(bob, bobAta, 3*MinContribution)))
	f.passDeadline()

	require.NoError(t, l.execute(f.refundIx(bob, bobAta)))

	assert.Equal(t, uint64(3*MinContribution), l.balance(bobAta))
	assert.Equal(t, uint64(MinContribution), l.balance(f.vault))
	assert.Equal(t, uint64(0), f.contribution(bob).Amount)
	assert.Equal(t, uint64(MinContribution), f.record().CurrentAmount)

	err := l.execute(f.refundIx(bob, bobAta))
	assert.ErrorIs(t, err, RefundErrNoContribution)
	code, ok := CustomErrCode(err)
	assert.True(t, ok)
	assert.Equal(t, uint32(2), code)
}

func TestExecute_Fundraiser_Program_Refund_Time_Not_Elapsed_Failure(t *testing.T) {
	f := newFundraiserFixture(t, false)
	l := f.l
	require.NoError(t, l.execute(f.initIx(testRaiseTarget, testRaiseDuration)))
	contributor, contributorAta := f.newContributor(MinContribution)
	require.NoError(t, l.execute(f.contributeIx(contributor, contributorAta, MinContribution)))

	// the deadline itself is still open
	l.clock.UnixTimestamp += testRaiseDuration
	err := l.execute(f.refundIx(contributor, contributorAta))
	assert.ErrorIs(t, err, RefundErrTimeNotElapsed)
	assert.Equal(t, uint64(MinContribution), l.balance(f.vault))
}

func TestExecute_Fundraiser_Program_Refund_Target_Reached_Failure(t *testing.T) {
	f := newFundraiserFixture(t, false)
	l := f.l
	require.NoError(t, l.execute(f.initIx(MinContribution, testRaiseDuration)))
	contributor, contributorAta := f.newContributor(MinContribution)
	require.NoError(t, l.execute(f.contributeIx(contributor, contributorAta, MinContribution)))
	f.passDeadline()

	err := l.execute(f.refundIx(contributor, contributorAta))
	assert.ErrorIs(t, err, RefundErrTargetAlreadyReached)
	code, ok := CustomErrCode(err)
	assert.True(t, ok)
	assert.Equal(t, uint32(1), code)
}

func TestExecute_Fundraiser_Program_Refund_Never_Contributed_Failure(t *testing.T) {
	f := newFundraiserFixture(t, false)
	l := f.l
	require.NoError(t, l.execute(f.initIx(testRaiseTarget, testRaiseDuration)))
	contributor, contributorAta := f.newContributor(MinContribution)
	f.passDeadline()

	err := l.execute(f.refundIx(contributor, contributorAta))
	assert.ErrorIs(t, err, InstrErrUninitializedAccount)
}

// Contributor records are keyed by contributor only, so a record earned in
// one campaign is honoured by any expired, unfunded campaign of the same mint.
func TestExecute_Fundraiser_Program_Refund_Record_Not_Scoped_To_Campaign(t *testing.T) {
	f := newFundraiserFixture(t, false)
	l := f.l
	require.NoError(t, l.execute(f.initIx(testRaiseTarget, testRaiseDuration)))

	otherMaker := l.newWallet()
	otherFundraiser, _, err := FindFundraiserAddress(otherMaker)
	require.NoError(t, err)
	otherVault := l.newTokenAccount(f.mint, otherFundraiser, 0)
	require.NoError(t, l.execute(NewFundraiserInitializeInstruction(otherMaker, f.mint, otherVault, testRaiseTarget, testRaiseDuration)))

	backer, backerAta := f.newContributor(3 * MinContribution)
	require.NoError(t, l.execute(NewFundraiserContributeInstruction(backer, otherMaker, f.mint, otherVault, backerAta, 3*MinContribution, nil)))

	contributor, contributorAta := f.newContributor(2 * MinContribution)
	require.NoError(t, l.execute(f.contributeIx(contributor, contributorAta, 2*MinContribution)))
	f.passDeadline()

	require.NoError(t, l.execute(NewFundraiserRefundInstruction(contributor, otherMaker, f.mint, otherVault, contributorAta, nil)))

	assert.Equal(t, uint64(2*MinContribution), l.balance(contributorAta))
	assert.Equal(t, uint64(MinContribution), l.balance(otherVault))
	assert.Equal(t, uint64(2*MinContribution), l.balance(f.vault))
	assert.Equal(t, uint64(0), f.contribution(contributor).Amount)

	// the campaign actually contributed to can no longer refund it
	err = l.execute(f.refundIx(contributor, contributorAta))
	assert.ErrorIs(t, err, RefundErrNoContribution)
}

func TestExecute_Fundraiser_Program_Refund_Wrong_Maker_Failure(t *testing.T) {
	f := newFundraiserFixture(t, false)
	l := f.l
	require.NoError(t, l.execute(f.initIx(testRaiseTarget, testRaiseDuration)))
	contributor, contributorAta := f.newContributor(MinContribution)
	require.NoError(t, l.execute(f.contributeIx(contributor, contributorAta, MinContribution)))
	f.passDeadline()

	ix := f.refundIx(contributor, contributorAta)
	ix.Accounts[1].Pubkey = f.admin

	err := l.execute(ix)
	assert.ErrorIs(t, err, InstrErrInvalidAccountData)
}

func TestExecute_Fundraiser_Program_Hooked_Mint_Success(t *testing.T) {
	f := newFundraiserFixture(t, true)
	l := f.l
	require.NoError(t, l.execute(f.initIx(testRaiseTarget, testRaiseDuration)))
	contributor, contributorAta := f.newContributor(MinContribution)

	require.NoError(t, l.execute(f.contributeIx(contributor, contributorAta, MinContribution)))
	f.passDeadline()
	require.NoError(t, l.execute(f.refundIx(contributor, contributorAta)))
	assert.Equal(t, uint64(MinContribution), l.balance(contributorAta))
}

func TestExecute_Fundraiser_Program_Hooked_Mint_Restricted_Contributor_Failure(t *testing.T) {
	f := newFundraiserFixture(t, true)
	l := f.l
	require.NoError(t, l.execute(f.initIx(testRaiseTarget, testRaiseDuration)))
	contributor, contributorAta := f.newContributor(MinContribution)
	require.NoError(t, l.execute(NewSetPermitInstruction(f.admin, f.mint, contributor, true)))

	err := l.execute(f.contributeIx(contributor, contributorAta, MinContribution))
	assert.ErrorIs(t, err, PermitErrTransferRestricted)
	assert.Equal(t, uint64(0), l.balance(f.vault))
	assert.Equal(t, uint64(0), f.record().CurrentAmount)
}

func TestFundraiser_Phase(t *testing.T) {
	f := Fundraiser{AmountToRaise: 100, TimeStarted: 1000, Duration: 50}

	assert.Equal(t, FundraiserPhaseOpen, f.Phase(1000, 0))
	assert.Equal(t, FundraiserPhaseOpen, f.Phase(1050, 99))
	assert.Equal(t, FundraiserPhaseExpiredUnfunded, f.Phase(1051, 99))
	assert.Equal(t, FundraiserPhaseTargetReached, f.Phase(1051, 100))
	assert.Equal(t, FundraiserPhaseTargetReached, f.Phase(1000, 150))
	assert.Equal(t, "ExpiredUnfunded", FundraiserPhaseExpiredUnfunded.String())
}

func TestFundraiser_Deadline_Saturates(t *testing.T) {
	f := Fundraiser{TimeStarted: 10, Duration: ^uint64(0)}
	assert.Equal(t, ^uint64(0), f.Deadline())
}

func TestContributor_Accumulate_Overflow(t *testing.T) {
	c := Contributor{Amount: ^uint64(0)}
	assert.ErrorIs(t, c.Accumulate(1), InstrErrArithmeticOverflow)
	assert.Equal(t, ^uint64(0), c.Amount)

	c.Clear()
	assert.Equal(t, uint64(0), c.Amount)
}
