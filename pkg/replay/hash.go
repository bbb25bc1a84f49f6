package replay

import (
	"encoding/binary"

	"github.com/minio/sha256-simd"
	"github.com/tidwall/btree"
	"github.com/zeebo/blake3"
	"go.firedancer.io/settle/pkg/accounts"
)

const merkleFanout = 16

// AccountHash is the blake3 digest of an account's full committed state.
func AccountHash(acct *accounts.Account) [32]byte {
	hasher := blake3.New()

	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], acct.Lamports)
	_, _ = hasher.Write(scratch[:])

	binary.LittleEndian.PutUint64(scratch[:], acct.RentEpoch)
	_, _ = hasher.Write(scratch[:])

	_, _ = hasher.Write(acct.Data)

	if acct.Executable {
		_, _ = hasher.Write([]byte{1})
	} else {
		_, _ = hasher.Write([]byte{0})
	}

	_, _ = hasher.Write(acct.Owner[:])
	_, _ = hasher.Write(acct.Key[:])

	var out [32]byte
	copy(out[:], hasher.Sum(nil))
	return out
}

// DeltaHash is the sha256 merkle root, fanout 16, of the account hashes of
// accts ordered by key. The empty set hashes to zero.
func DeltaHash(accts []*accounts.Account) [32]byte {
	var byKey btree.Map[string, [32]byte]
	for _, acct := range accts {
		byKey.Set(string(acct.Key[:]), AccountHash(acct))
	}

	hashes := make([][32]byte, 0, byKey.Len())
	byKey.Scan(func(_ string, hash [32]byte) bool {
		hashes = append(hashes, hash)
		return true
	})
	return merkleRoot(hashes)
}

func merkleRoot(hashes [][32]byte) [32]byte {
	if len(hashes) == 0 {
		return [32]byte{}
	}

	for {
		chunks := (len(hashes) + merkleFanout - 1) / merkleFanout
		results := make([][32]byte, chunks)
		for i := range results {
			end := min((i+1)*merkleFanout, len(hashes))
			hasher := sha256.New()
			for _, h := range hashes[i*merkleFanout : end] {
				hasher.Write(h[:])
			}
			copy(results[i][:], hasher.Sum(nil))
		}
		if len(results) == 1 {
			return results[0]
		}
		hashes = results
	}
}

// ChainHash folds one transaction's delta hash into a running ledger hash.
func ChainHash(parent [32]byte, deltaHash [32]byte, seq uint64) [32]byte {
	hasher := sha256.New()
	hasher.Write(parent[:])
	hasher.Write(deltaHash[:])

	var seqBytes [8]byte
	binary.LittleEndian.PutUint64(seqBytes[:], seq)
	hasher.Write(seqBytes[:])

	var out [32]byte
	copy(out[:], hasher.Sum(nil))
	return out
}
