package accounts

import (
	"bytes"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/lotusdblabs/lotusdb/v2"
	"go.firedancer.io/settle/pkg/base58"
)

// LotusAccountsDb stores accounts in a lotusdb directory, keyed by pubkey.
type LotusAccountsDb struct {
	db *lotusdb.DB
}

func OpenLotusAccountsDb(dir string) (*LotusAccountsDb, error) {
	options := lotusdb.DefaultOptions
	options.DirPath = dir

	db, err := lotusdb.Open(options)
	if err != nil {
		return nil, err
	}

	return &LotusAccountsDb{db: db}, nil
}

func (m *LotusAccountsDb) Close() error {
	return m.db.Close()
}

func (m *LotusAccountsDb) GetAccount(pubkey *[32]byte) (*Account, error) {
	acctBytes, err := m.db.Get(pubkey[:])
	if errors.Is(err, lotusdb.ErrKeyNotFound) || (err == nil && len(acctBytes) == 0) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("error whilst retrieving account %s: %w", base58.Encode(pubkey[:]), err)
	}

	acct := new(Account)
	err = acct.UnmarshalWithDecoder(bin.NewBinDecoder(bytes.Clone(acctBytes)))
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize account %s from lotusdb accountsdb: %w", base58.Encode(pubkey[:]), err)
	}
	acct.Key = *pubkey

	return acct, nil
}

func (m *LotusAccountsDb) SetAccount(pubkey *[32]byte, acct *Account) error {
	writer := new(bytes.Buffer)
	err := acct.MarshalWithEncoder(bin.NewBinEncoder(writer))
	if err != nil {
		return fmt.Errorf("failed to serialize account for storage in lotusdb accountsdb: %w", err)
	}

	err = m.db.Put(pubkey[:], writer.Bytes())
	if err != nil {
		return fmt.Errorf("error setting account for %s: %w", base58.Encode(pubkey[:]), err)
	}

	return nil
}
