package sealevel

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.firedancer.io/settle/pkg/accounts"
	"go.firedancer.io/settle/pkg/metrics"
)

// callerInstruction is an instruction of programId over accts. It is never
// executed; invokeFrom uses it to set up the caller's privileges.
func callerInstruction(programId solana.PublicKey, accts ...AccountMeta) Instruction {
	return Instruction{ProgramId: programId, Accounts: accts}
}

func TestExecute_Runtime_Cpi_Writable_Escalation_Failure(t *testing.T) {
	l := newTestLedger(t)
	from := l.newWallet()
	to := l.newWallet()

	caller := callerInstruction(FundraiserProgramAddr, signer(from), writable(to), readonly(SystemProgramAddr))
	err := l.invokeFrom(caller, func(execCtx *ExecutionCtx) error {
		return execCtx.NativeInvoke(NewSystemTransferInstruction(from, to, 1), nil)
	})
	assert.ErrorIs(t, err, InstrErrPrivilegeEscalation)
}

func TestExecute_Runtime_Cpi_Signer_Escalation_Failure(t *testing.T) {
	l := newTestLedger(t)
	from := l.newWallet()
	to := l.newWallet()

	caller := callerInstruction(FundraiserProgramAddr, writable(from), writable(to), readonly(SystemProgramAddr))
	err := l.invokeFrom(caller, func(execCtx *ExecutionCtx) error {
		return execCtx.NativeInvoke(NewSystemTransferInstruction(from, to, 1), nil)
	})
	assert.ErrorIs(t, err, InstrErrPrivilegeEscalation)
	assert.Equal(t, uint64(testWalletLamports), l.account(from).Lamports)
}

func TestExecute_Runtime_Cpi_Signed_By_Derived_Address_Success(t *testing.T) {
	l := newTestLedger(t)
	seeds := FundraiserSeeds(l.newWallet())
	pda, bump, err := FindProgramAddress(seeds, FundraiserProgramAddr)
	require.NoError(t, err)
	l.setAccount(accounts.Account{Key: pda, Lamports: 1000, Owner: SystemProgramAddr})
	to := l.newWallet()

	caller := callerInstruction(FundraiserProgramAddr, writable(pda), writable(to), readonly(SystemProgramAddr))
	err = l.invokeFrom(caller, func(execCtx *ExecutionCtx) error {
		return execCtx.NativeInvokeSigned(NewSystemTransferInstruction(pda, to, 400), [][][]byte{withBump(seeds, bump)})
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(600), l.account(pda).Lamports)
	assert.Equal(t, uint64(testWalletLamports+400), l.account(to).Lamports)
}

func TestExecute_Runtime_Cpi_Signed_Under_Other_Program_Failure(t *testing.T) {
	l := newTestLedger(t)
	seeds := FundraiserSeeds(l.newWallet())
	pda, bump, err := FindProgramAddress(seeds, FundraiserProgramAddr)
	require.NoError(t, err)
	l.setAccount(accounts.Account{Key: pda, Lamports: 1000, Owner: SystemProgramAddr})
	to := l.newWallet()

	// the same seeds under the escrow program name a different address
	caller := callerInstruction(EscrowProgramAddr, writable(pda), writable(to), readonly(SystemProgramAddr))
	err = l.invokeFrom(caller, func(execCtx *ExecutionCtx) error {
		return execCtx.NativeInvokeSigned(NewSystemTransferInstruction(pda, to, 400), [][][]byte{withBump(seeds, bump)})
	})
	assert.ErrorIs(t, err, InstrErrPrivilegeEscalation)
	assert.Equal(t, uint64(1000), l.account(pda).Lamports)
}

func TestExecute_Runtime_Cpi_Seed_Too_Long_Failure(t *testing.T) {
	l := newTestLedger(t)
	to := l.newWallet()

	caller := callerInstruction(FundraiserProgramAddr, writable(to), readonly(SystemProgramAddr))
	err := l.invokeFrom(caller, func(execCtx *ExecutionCtx) error {
		return execCtx.NativeInvokeSigned(NewSystemTransferInstruction(to, to, 1), [][][]byte{{make([]byte, 33)}})
	})
	assert.ErrorIs(t, err, InstrErrMaxSeedLengthExceeded)
}

func TestExecute_Runtime_Cpi_Callee_Not_Passed_Failure(t *testing.T) {
	l := newTestLedger(t)
	from := l.newWallet()
	to := l.newWallet()

	caller := callerInstruction(FundraiserProgramAddr, writableSigner(from), writable(to))
	err := l.invokeFrom(caller, func(execCtx *ExecutionCtx) error {
		return execCtx.NativeInvoke(NewSystemTransferInstruction(from, to, 1), nil)
	})
	assert.Error(t, err)
	assert.Equal(t, uint64(testWalletLamports), l.account(from).Lamports)
}

func TestExecute_Runtime_Cpi_Account_Not_Passed_Failure(t *testing.T) {
	l := newTestLedger(t)
	from := l.newWallet()
	to := l.newWallet()

	caller := callerInstruction(FundraiserProgramAddr, writableSigner(from), readonly(SystemProgramAddr), readonly(to))
	err := l.invokeFrom(caller, func(execCtx *ExecutionCtx) error {
		return execCtx.NativeInvoke(NewSystemTransferInstruction(from, newTestPubkey(t), 1), nil)
	})
	assert.Error(t, err)
}

func TestExecute_Runtime_Reentrancy_Failure(t *testing.T) {
	l := newTestLedger(t)
	wallet := l.newWallet()

	caller := callerInstruction(FundraiserProgramAddr, readonly(wallet), readonly(EscrowProgramAddr), readonly(FundraiserProgramAddr))
	err := l.invokeFrom(caller, func(execCtx *ExecutionCtx) error {
		txCtx := execCtx.TransactionContext
		escrowIdx, err := txCtx.IndexOfAccount(EscrowProgramAddr)
		require.NoError(t, err)
		fundraiserIdx, err := txCtx.IndexOfAccount(FundraiserProgramAddr)
		require.NoError(t, err)

		// fundraiser -> escrow
		next, err := txCtx.NextInstructionCtx()
		require.NoError(t, err)
		next.Configure([]uint64{escrowIdx}, nil, nil)
		require.NoError(t, execCtx.Push())
		defer execCtx.Pop()

		// escrow -> fundraiser re-enters a program already on the stack
		next, err = txCtx.NextInstructionCtx()
		require.NoError(t, err)
		next.Configure([]uint64{fundraiserIdx}, nil, nil)
		return execCtx.Push()
	})
	assert.ErrorIs(t, err, InstrErrReentrancyNotAllowed)
}

func TestExecute_Runtime_Unsupported_Program_Failure(t *testing.T) {
	l := newTestLedger(t)
	notAProgram := l.newWallet()

	err := l.execute(Instruction{ProgramId: notAProgram})
	assert.ErrorIs(t, err, InstrErrUnsupportedProgramId)
}

func TestExecute_Runtime_Compute_Budget_Exceeded_Failure(t *testing.T) {
	l := newTestLedger(t)
	from := l.newWallet()
	to := l.newWallet()
	l.computeBudget = CUSystemProgramDefaultComputeUnits - 1

	err := l.execute(NewSystemTransferInstruction(from, to, 1))
	assert.ErrorIs(t, err, InstrErrComputationalBudgetExceeded)
	assert.Equal(t, uint64(testWalletLamports), l.account(from).Lamports)
}

func TestExecute_Runtime_Transaction_Is_Atomic(t *testing.T) {
	l := newTestLedger(t)
	from := l.newWallet()
	to := l.newWallet()

	err := l.execute(NewSystemTransferInstruction(from, to, 1), NewSystemTransferInstruction(to, from, 2*testWalletLamports))
	assert.ErrorIs(t, err, SystemProgErrResultWithNegativeLamports)
	assert.Equal(t, uint64(testWalletLamports), l.account(from).Lamports)
	assert.Equal(t, uint64(testWalletLamports), l.account(to).Lamports)
}

func TestExecute_Runtime_Logs_And_Metrics(t *testing.T) {
	l := newTestLedger(t)
	l.metrics = metrics.NewMetrics(prometheus.NewRegistry())
	admin := l.newWallet()
	owner := l.newWallet()
	mint := l.newMint(admin, 6, nil)
	src := l.newTokenAccount(mint, owner, 100)
	dst := l.newTokenAccount(mint, l.newWallet(), 0)

	require.NoError(t, l.execute(NewTokenTransferInstruction(src, dst, owner, 60)))

	assert.Equal(t, float64(1), testutil.ToFloat64(l.metrics.InstructionsTotal.WithLabelValues("token")))
	assert.Equal(t, float64(60), testutil.ToFloat64(l.metrics.TokensTransferredTotal))
	assert.Contains(t, l.log.Logs, "Program "+TokenProgramAddrStr+" success")
	assert.Equal(t, uint64(CUTokenProgramDefaultComputeUnits), l.cuUsed)
}
