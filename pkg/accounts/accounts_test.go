package accounts

import (
	"bytes"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAccount(t *testing.T) *Account {
	privKey, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return &Account{Key: privKey.PublicKey(), Lamports: 1234, Data: []byte{1, 2, 3, 4}, Owner: solana.TokenProgramID, RentEpoch: 100}
}

func TestAccounts_MarshalUnmarshal(t *testing.T) {
	acct := newTestAccount(t)

	buf := new(bytes.Buffer)
	require.NoError(t, acct.MarshalWithEncoder(bin.NewBinEncoder(buf)))

	var decoded Account
	require.NoError(t, decoded.UnmarshalWithDecoder(bin.NewBinDecoder(buf.Bytes())))

	assert.Equal(t, acct.Lamports, decoded.Lamports)
	assert.Equal(t, acct.Data, decoded.Data)
	assert.Equal(t, acct.Owner, decoded.Owner)
	assert.Equal(t, acct.RentEpoch, decoded.RentEpoch)
}

func TestAccounts_UnmarshalTruncated(t *testing.T) {
	acct := newTestAccount(t)

	buf := new(bytes.Buffer)
	require.NoError(t, acct.MarshalWithEncoder(bin.NewBinEncoder(buf)))

	var decoded Account
	err := decoded.UnmarshalWithDecoder(bin.NewBinDecoder(buf.Bytes()[:18]))
	assert.Error(t, err)
}

func TestAccounts_CloneIsDeep(t *testing.T) {
	acct := newTestAccount(t)
	c := acct.Clone()
	c.Data[0] = 0xff
	c.Lamports = 0

	assert.Equal(t, byte(1), acct.Data[0])
	assert.Equal(t, uint64(1234), acct.Lamports)
}

func TestAccounts_MemAccounts(t *testing.T) {
	accts := NewMemAccounts()
	acct := newTestAccount(t)

	pk := [32]byte(acct.Key)
	got, err := accts.GetAccount(&pk)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, accts.SetAccount(&pk, acct))
	got, err = accts.GetAccount(&pk)
	require.NoError(t, err)
	assert.Equal(t, acct, got)
}

func TestAccounts_PersistentAccountsDb(t *testing.T) {
	db, err := OpenAccountsDb(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	acct := newTestAccount(t)
	pk := [32]byte(acct.Key)

	missing, err := db.GetAccount(&pk)
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, db.SetAccount(&pk, acct))

	got, err := db.GetAccount(&pk)
	require.NoError(t, err)
	assert.Equal(t, acct.Key, got.Key)
	assert.Equal(t, acct.Data, got.Data)
	assert.Equal(t, acct.Lamports, got.Lamports)
}

func TestAccounts_LotusAccountsDb(t *testing.T) {
	db, err := OpenLotusAccountsDb(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	acct := newTestAccount(t)
	pk := [32]byte(acct.Key)

	missing, err := db.GetAccount(&pk)
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, db.SetAccount(&pk, acct))
	acct.Lamports = 99
	require.NoError(t, db.SetAccount(&pk, acct))

	got, err := db.GetAccount(&pk)
	require.NoError(t, err)
	assert.Equal(t, acct.Key, got.Key)
	assert.Equal(t, acct.Data, got.Data)
	assert.Equal(t, uint64(99), got.Lamports)
}

func testStoreRoundTrip(t *testing.T, db Accounts) {
	const n = 2000

	keys := make([][32]byte, n)
	for i := range keys {
		keys[i] = [32]byte(newTestAccount(t).Key)
		data := bytes.Repeat([]byte{byte(i), byte(i >> 8)}, 256+i%64)
		require.NoError(t, db.SetAccount(&keys[i], &Account{Key: keys[i], Lamports: uint64(i), Data: data, Owner: solana.TokenProgramID}))
	}

	// hold every result before checking any, so a reused read buffer shows up
	got := make([]*Account, n)
	for i := range keys {
		acct, err := db.GetAccount(&keys[i])
		require.NoError(t, err)
		require.NotNil(t, acct)
		got[i] = acct
	}

	for i, acct := range got {
		expected := bytes.Repeat([]byte{byte(i), byte(i >> 8)}, 256+i%64)
		assert.Equal(t, expected, acct.Data, "account %d", i)
		assert.Equal(t, uint64(i), acct.Lamports)
		assert.Equal(t, solana.PublicKey(keys[i]), acct.Key)
	}
}

func TestAccounts_PersistentAccountsDb_Many(t *testing.T) {
	db, err := OpenAccountsDb(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	testStoreRoundTrip(t, db)
}

func TestAccounts_LotusAccountsDb_Many(t *testing.T) {
	db, err := OpenLotusAccountsDb(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	testStoreRoundTrip(t, db)
}
