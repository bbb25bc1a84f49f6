package accounts

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	bin "github.com/gagliardetto/binary"
	"go.firedancer.io/settle/pkg/base58"
)

type PersistentAccountsDb struct {
	db *pebble.DB
}

func OpenAccountsDb(dir string) (*PersistentAccountsDb, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}

	return &PersistentAccountsDb{db: db}, nil
}

func (m *PersistentAccountsDb) Close() error {
	return m.db.Close()
}

func (m *PersistentAccountsDb) GetAccount(pubkey *[32]byte) (*Account, error) {
	acctBytes, closer, err := m.db.Get(pubkey[:])
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("error whilst retrieving account %s: %w", base58.Encode(pubkey[:]), err)
	}
	defer closer.Close()

	// acctBytes is only valid until closer is closed, and the decoder
	// slices Data out of it.
	acct := new(Account)
	err = acct.UnmarshalWithDecoder(bin.NewBinDecoder(bytes.Clone(acctBytes)))
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize account %s from pebble accountsdb: %w", base58.Encode(pubkey[:]), err)
	}
	acct.Key = *pubkey

	return acct, nil
}

func (m *PersistentAccountsDb) SetAccount(pubkey *[32]byte, acct *Account) error {
	writer := new(bytes.Buffer)
	encoder := bin.NewBinEncoder(writer)

	err := acct.MarshalWithEncoder(encoder)
	if err != nil {
		return fmt.Errorf("failed to serialize account for storage in pebble accountsdb: %w", err)
	}

	err = m.db.Set(pubkey[:], writer.Bytes(), pebble.Sync)
	if err != nil {
		return fmt.Errorf("error setting account for %s: %w", base58.Encode(pubkey[:]), err)
	}

	return nil
}
