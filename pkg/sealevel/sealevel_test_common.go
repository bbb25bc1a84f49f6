package sealevel

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"go.firedancer.io/settle/pkg/accounts"
	"go.firedancer.io/settle/pkg/cu"
	"go.firedancer.io/settle/pkg/features"
	"go.firedancer.io/settle/pkg/metrics"
)

const testWalletLamports = 10_000_000_000

// testLedger is a small committed account store. Each execute call runs its
// instructions as one transaction and commits only when all of them succeed.
type testLedger struct {
	t        *testing.T
	accts    accounts.MemAccounts
	clock    SysvarClock
	features features.Features
	metrics  *metrics.Metrics
	log      LogRecorder
	cuUsed   uint64

	computeBudget uint64
}

func newTestLedger(t *testing.T) *testLedger {
	l := &testLedger{t: t, accts: accounts.NewMemAccounts()}
	for _, programId := range []solana.PublicKey{SystemProgramAddr, TokenProgramAddr, TransferPermitProgramAddr, EscrowProgramAddr, FundraiserProgramAddr} {
		l.setAccount(NativeProgramAccount(programId))
	}
	l.clock = SysvarClock{Slot: 1000, UnixTimestamp: 1_700_000_000}
	return l
}

func newTestPubkey(t *testing.T) solana.PublicKey {
	privKey, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return privKey.PublicKey()
}

func (l *testLedger) setAccount(acct accounts.Account) {
	key := [32]byte(acct.Key)
	require.NoError(l.t, l.accts.SetAccount(&key, acct.Clone()))
}

// account returns the committed account, or an empty system account for an
// unknown key.
func (l *testLedger) account(pubkey solana.PublicKey) *accounts.Account {
	key := [32]byte(pubkey)
	acct, err := l.accts.GetAccount(&key)
	require.NoError(l.t, err)
	if acct == nil {
		return &accounts.Account{Key: pubkey, Owner: SystemProgramAddr}
	}
	return acct
}

func (l *testLedger) newWallet() solana.PublicKey {
	pubkey := newTestPubkey(l.t)
	l.setAccount(accounts.Account{Key: pubkey, Lamports: testWalletLamports, Owner: SystemProgramAddr})
	return pubkey
}

func (l *testLedger) newMint(authority solana.PublicKey, decimals uint8, hook *TransferHook) solana.PublicKey {
	pubkey := newTestPubkey(l.t)
	mint := Mint{MintAuthority: &authority, Decimals: decimals, IsInitialized: true, TransferHook: hook}
	data, err := mint.Marshal()
	require.NoError(l.t, err)
	l.setAccount(accounts.Account{Key: pubkey, Lamports: 1_461_600, Data: data, Owner: TokenProgramAddr})
	return pubkey
}

func (l *testLedger) newTokenAccount(mint, owner solana.PublicKey, amount uint64) solana.PublicKey {
	pubkey := newTestPubkey(l.t)
	l.putTokenAccount(pubkey, TokenAccount{Mint: mint, Owner: owner, Amount: amount, State: TokenAccountStateInitialized})
	return pubkey
}

func (l *testLedger) putTokenAccount(pubkey solana.PublicKey, tokenAcct TokenAccount) {
	tokenAcct.TransferHookAccount = l.mint(tokenAcct.Mint).TransferHook != nil
	data, err := tokenAcct.Marshal()
	require.NoError(l.t, err)
	l.setAccount(accounts.Account{Key: pubkey, Lamports: 2_039_280, Data: data, Owner: TokenProgramAddr})
}

func (l *testLedger) mint(pubkey solana.PublicKey) *Mint {
	mint, err := UnmarshalMint(l.account(pubkey).Data)
	require.NoError(l.t, err)
	return mint
}

func (l *testLedger) tokenAccount(pubkey solana.PublicKey) *TokenAccount {
	tokenAcct, err := UnmarshalTokenAccount(l.account(pubkey).Data)
	require.NoError(l.t, err)
	return tokenAcct
}

func (l *testLedger) balance(pubkey solana.PublicKey) uint64 {
	return l.tokenAccount(pubkey).Amount
}

// transactionKeys lists every account the instructions reference, each once.
func transactionKeys(ixs []Instruction) []solana.PublicKey {
	var keys []solana.PublicKey
	seen := make(map[solana.PublicKey]bool)
	add := func(key solana.PublicKey) {
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	for _, ix := range ixs {
		add(ix.ProgramId)
		for _, meta := range ix.Accounts {
			add(meta.Pubkey)
		}
	}
	return keys
}

func (l *testLedger) newExecCtx(ixs []Instruction) *ExecutionCtx {
	keys := transactionKeys(ixs)
	acctsForTx := make([]accounts.Account, 0, len(keys))
	for _, key := range keys {
		acctsForTx = append(acctsForTx, *l.account(key))
	}
	txAccts := NewTransactionAccounts(acctsForTx)

	execCtx := &ExecutionCtx{
		Log:                &l.log,
		TransactionContext: NewTransactionCtx(*txAccts, MaxInstructionStackDepth, MaxInstructionTraceLen),
		ComputeMeter:       cu.NewComputeMeterDefault(),
	}
	if l.computeBudget != 0 {
		execCtx.ComputeMeter = cu.NewComputeMeter(l.computeBudget)
	}
	execCtx.GlobalCtx.Features = l.features
	execCtx.GlobalCtx.Metrics = l.metrics
	execCtx.SysvarCache.SetClock(l.clock)
	execCtx.SysvarCache.SetRent(DefaultRent())
	return execCtx
}

func (l *testLedger) commit(execCtx *ExecutionCtx) {
	l.cuUsed = execCtx.ComputeMeter.Used()
	for _, acct := range execCtx.TransactionContext.Accounts.Accounts {
		l.setAccount(*acct)
	}
}

func (l *testLedger) execute(ixs ...Instruction) error {
	execCtx := l.newExecCtx(ixs)
	txCtx := execCtx.TransactionContext

	for _, ix := range ixs {
		instrAccts, err := InstructionAcctsFromAccountMetas(ix.Accounts, &txCtx.Accounts)
		require.NoError(l.t, err)
		programIndices, err := ProgramIndices(ix, &txCtx.Accounts)
		require.NoError(l.t, err)

		err = execCtx.ProcessInstruction(ix.Data, instrAccts, programIndices)
		if err != nil {
			return err
		}
	}

	l.commit(execCtx)
	return nil
}

// invokeFrom runs fn as if it were the body of caller, so that fn can issue
// cross-program invocations with caller's privileges.
func (l *testLedger) invokeFrom(caller Instruction, fn func(execCtx *ExecutionCtx) error) error {
	execCtx := l.newExecCtx([]Instruction{caller})
	txCtx := execCtx.TransactionContext

	instrAccts, err := InstructionAcctsFromAccountMetas(caller.Accounts, &txCtx.Accounts)
	require.NoError(l.t, err)
	programIndices, err := ProgramIndices(caller, &txCtx.Accounts)
	require.NoError(l.t, err)

	instrCtx, err := txCtx.NextInstructionCtx()
	require.NoError(l.t, err)
	instrCtx.Configure(programIndices, instrAccts, caller.Data)
	require.NoError(l.t, execCtx.Push())

	err = fn(execCtx)
	require.NoError(l.t, execCtx.Pop())
	if err != nil {
		return err
	}

	l.commit(execCtx)
	return nil
}
