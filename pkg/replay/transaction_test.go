package replay

import (
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.firedancer.io/settle/pkg/accounts"
	"go.firedancer.io/settle/pkg/global"
	"go.firedancer.io/settle/pkg/metrics"
	"go.firedancer.io/settle/pkg/sealevel"
)

type replayFixture struct {
	accts     accounts.MemAccounts
	globalCtx *global.GlobalCtx
	sysvars   Sysvars
	mint      solana.PublicKey
	owner     solana.PublicKey
	source    solana.PublicKey
	dest      solana.PublicKey
}

func newPubkey(t *testing.T) solana.PublicKey {
	privKey, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return privKey.PublicKey()
}

func putAccount(t *testing.T, accts accounts.Accounts, acct accounts.Account) {
	key := [32]byte(acct.Key)
	require.NoError(t, accts.SetAccount(&key, &acct))
}

func putTokenAccount(t *testing.T, accts accounts.Accounts, key, mint, owner solana.PublicKey, amount uint64) {
	tokenAcct := sealevel.TokenAccount{Mint: mint, Owner: owner, Amount: amount, State: sealevel.TokenAccountStateInitialized}
	data, err := tokenAcct.Marshal()
	require.NoError(t, err)
	putAccount(t, accts, accounts.Account{Key: key, Lamports: 2_039_280, Data: data, Owner: sealevel.TokenProgramAddr})
}

func tokenBalance(t *testing.T, accts accounts.Accounts, key solana.PublicKey) uint64 {
	pubkey := [32]byte(key)
	acct, err := accts.GetAccount(&pubkey)
	require.NoError(t, err)
	tokenAcct, err := sealevel.UnmarshalTokenAccount(acct.Data)
	require.NoError(t, err)
	return tokenAcct.Amount
}

func newReplayFixture(t *testing.T) *replayFixture {
	f := &replayFixture{
		accts:     accounts.NewMemAccounts(),
		globalCtx: global.NewGlobalCtxDefault(),
		sysvars:   Sysvars{Clock: sealevel.SysvarClock{Slot: 1, UnixTimestamp: 1_700_000_000}, Rent: sealevel.DefaultRent()},
		mint:      newPubkey(t),
		owner:     newPubkey(t),
		source:    newPubkey(t),
		dest:      newPubkey(t),
	}

	authority := newPubkey(t)
	mint := sealevel.Mint{MintAuthority: &authority, Decimals: 6, IsInitialized: true}
	data, err := mint.Marshal()
	require.NoError(t, err)
	putAccount(t, f.accts, accounts.Account{Key: f.mint, Lamports: 1_461_600, Data: data, Owner: sealevel.TokenProgramAddr})
	putTokenAccount(t, f.accts, f.source, f.mint, f.owner, 100)
	putTokenAccount(t, f.accts, f.dest, f.mint, newPubkey(t), 0)
	return f
}

func (f *replayFixture) transfer(amount uint64) sealevel.Instruction {
	return sealevel.NewTokenTransferCheckedInstruction(f.source, f.mint, f.dest, f.owner, amount, 6, nil)
}

func TestProcessTransaction_Commit(t *testing.T) {
	f := newReplayFixture(t)
	tx := &Transaction{Signers: []solana.PublicKey{f.owner}, Instructions: []sealevel.Instruction{f.transfer(30), f.transfer(20)}}

	result, err := ProcessTransaction(f.accts, f.globalCtx, f.sysvars, tx)
	require.NoError(t, err)

	assert.True(t, result.Committed)
	assert.Equal(t, uint64(50), tokenBalance(t, f.accts, f.source))
	assert.Equal(t, uint64(50), tokenBalance(t, f.accts, f.dest))
	assert.ElementsMatch(t, []solana.PublicKey{f.source, f.dest}, result.ModifiedAccounts)
	assert.Equal(t, uint64(2*sealevel.CUTokenProgramDefaultComputeUnits), result.ComputeUnitsUsed)
	assert.Equal(t, uint64(2*sealevel.CUTokenProgramDefaultComputeUnits), result.ComputeUsage["token"])
	assert.NotEmpty(t, result.Logs)

	var committed []*accounts.Account
	for _, key := range []solana.PublicKey{f.source, f.dest} {
		pubkey := [32]byte(key)
		acct, err := f.accts.GetAccount(&pubkey)
		require.NoError(t, err)
		committed = append(committed, acct)
	}
	assert.Equal(t, DeltaHash(committed), result.DeltaHash)
}

func TestProcessTransaction_Rollback(t *testing.T) {
	f := newReplayFixture(t)
	tx := &Transaction{Signers: []solana.PublicKey{f.owner}, Instructions: []sealevel.Instruction{f.transfer(30), f.transfer(80)}}

	result, err := ProcessTransaction(f.accts, f.globalCtx, f.sysvars, tx)
	require.Error(t, err)
	assert.ErrorIs(t, err, sealevel.TokenErrInsufficientFunds)

	var instrErr *InstructionError
	require.True(t, errors.As(err, &instrErr))
	assert.Equal(t, 1, instrErr.Index)

	assert.False(t, result.Committed)
	assert.Equal(t, uint64(100), tokenBalance(t, f.accts, f.source))
	assert.Equal(t, uint64(0), tokenBalance(t, f.accts, f.dest))
}

func TestProcessTransaction_Missing_Signature(t *testing.T) {
	f := newReplayFixture(t)
	tx := &Transaction{Instructions: []sealevel.Instruction{f.transfer(30)}}

	_, err := ProcessTransaction(f.accts, f.globalCtx, f.sysvars, tx)
	var sigErr *TxErrMissingSignature
	require.True(t, errors.As(err, &sigErr))
	assert.Equal(t, f.owner, sigErr.Pubkey)
	assert.Equal(t, uint64(100), tokenBalance(t, f.accts, f.source))
}

func TestProcessTransaction_Empty(t *testing.T) {
	f := newReplayFixture(t)

	_, err := ProcessTransaction(f.accts, f.globalCtx, f.sysvars, &Transaction{})
	assert.ErrorIs(t, err, ErrEmptyTransaction)
}

func TestProcessTransaction_Unknown_Accounts_Are_Empty(t *testing.T) {
	f := newReplayFixture(t)
	tx := &Transaction{
		Signers:      []solana.PublicKey{f.owner},
		Instructions: []sealevel.Instruction{sealevel.NewTokenTransferCheckedInstruction(f.source, f.mint, newPubkey(t), f.owner, 1, 6, nil)},
	}

	_, err := ProcessTransaction(f.accts, f.globalCtx, f.sysvars, tx)
	assert.ErrorIs(t, err, sealevel.InstrErrIncorrectProgramId)
}

func TestProcessTransaction_Compute_Limit(t *testing.T) {
	f := newReplayFixture(t)
	tx := &Transaction{
		Signers:          []solana.PublicKey{f.owner},
		Instructions:     []sealevel.Instruction{f.transfer(30)},
		ComputeUnitLimit: 10,
	}

	_, err := ProcessTransaction(f.accts, f.globalCtx, f.sysvars, tx)
	assert.ErrorIs(t, err, sealevel.InstrErrComputationalBudgetExceeded)
}

func TestProcessTransaction_Metrics(t *testing.T) {
	f := newReplayFixture(t)
	f.globalCtx.Metrics = metrics.NewMetrics(prometheus.NewRegistry())

	_, err := ProcessTransaction(f.accts, f.globalCtx, f.sysvars, &Transaction{Signers: []solana.PublicKey{f.owner}, Instructions: []sealevel.Instruction{f.transfer(30)}})
	require.NoError(t, err)
	_, err = ProcessTransaction(f.accts, f.globalCtx, f.sysvars, &Transaction{Signers: []solana.PublicKey{f.owner}, Instructions: []sealevel.Instruction{f.transfer(300)}})
	require.Error(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(f.globalCtx.Metrics.TransactionsTotal.WithLabelValues("committed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.globalCtx.Metrics.TransactionsTotal.WithLabelValues("failed")))
	assert.Equal(t, float64(30), testutil.ToFloat64(f.globalCtx.Metrics.TokensTransferredTotal))
}

func TestSysvars_Load_And_Store(t *testing.T) {
	accts := accounts.NewMemAccounts()

	_, err := LoadSysvars(accts)
	assert.Error(t, err)

	clock := sealevel.SysvarClock{Slot: 7, UnixTimestamp: 1_700_000_000}
	require.NoError(t, sealevel.WriteClockSysvar(accts, clock))
	sysvars, err := LoadSysvars(accts)
	require.NoError(t, err)
	assert.Equal(t, clock, sysvars.Clock)
	assert.Equal(t, sealevel.DefaultRent(), sysvars.Rent)

	sysvars.Clock.UnixTimestamp += 60
	require.NoError(t, StoreSysvars(accts, sysvars))
	reloaded, err := LoadSysvars(accts)
	require.NoError(t, err)
	assert.Equal(t, sysvars, reloaded)
}
