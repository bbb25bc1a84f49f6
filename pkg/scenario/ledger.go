package scenario

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/minio/sha256-simd"
	"go.firedancer.io/settle/pkg/accounts"
	"go.firedancer.io/settle/pkg/features"
	"go.firedancer.io/settle/pkg/sealevel"
)

// Address is the fixed key a scenario name stands for, so that runs are
// reproducible.
func Address(name string) solana.PublicKey {
	sum := sha256.Sum256([]byte("settle/scenario/" + name))
	return solana.PublicKeyFromBytes(sum[:])
}

func (r *Runner) resolve(name string) (solana.PublicKey, error) {
	if kind, base, ok := strings.Cut(name, ":"); ok {
		baseKey, err := r.resolve(base)
		if err != nil {
			return solana.PublicKey{}, err
		}
		var addr solana.PublicKey
		switch kind {
		case "escrow":
			addr, _, err = sealevel.FindEscrowAddress(baseKey)
		case "fundraiser":
			addr, _, err = sealevel.FindFundraiserAddress(baseKey)
		case "contributor":
			addr, _, err = sealevel.FindContributorAddress(baseKey)
		default:
			return solana.PublicKey{}, fmt.Errorf("unknown derived account kind %q in %q", kind, name)
		}
		return addr, err
	}

	key, ok := r.names[name]
	if !ok {
		return solana.PublicKey{}, fmt.Errorf("unknown account %q", name)
	}
	return key, nil
}

func (r *Runner) getAccount(key solana.PublicKey) (*accounts.Account, error) {
	pubkey := [32]byte(key)
	acct, err := r.accts.GetAccount(&pubkey)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("account %s does not exist", key)
	}
	return acct, nil
}

func (r *Runner) setAccount(acct *accounts.Account) error {
	pubkey := [32]byte(acct.Key)
	return r.accts.SetAccount(&pubkey, acct)
}

func (r *Runner) mint(key solana.PublicKey) (*sealevel.Mint, error) {
	acct, err := r.getAccount(key)
	if err != nil {
		return nil, err
	}
	return sealevel.UnmarshalMint(acct.Data)
}

func (r *Runner) tokenAccount(key solana.PublicKey) (*sealevel.TokenAccount, error) {
	acct, err := r.getAccount(key)
	if err != nil {
		return nil, err
	}
	return sealevel.UnmarshalTokenAccount(acct.Data)
}

// setup writes the declared accounts, sysvars and feature gates.
func (r *Runner) setup() error {
	s := r.scenario
	rent := r.sysvars.Rent

	for _, name := range s.Features {
		gate, ok := features.GateByName(name)
		if !ok {
			return fmt.Errorf("unknown feature %q", name)
		}
		r.globalCtx.Features.EnableFeature(gate, s.Clock.Slot)
	}

	for _, w := range s.Wallets {
		lamports := w.Lamports
		if lamports == 0 {
			lamports = defaultWalletLamports
		}
		key := Address(w.Name)
		r.names[w.Name] = key
		err := r.setAccount(&accounts.Account{Key: key, Lamports: lamports, Owner: sealevel.SystemProgramAddr})
		if err != nil {
			return err
		}
	}

	hooked := make(map[string]bool)
	for _, m := range s.Mints {
		authority, err := r.resolve(m.Authority)
		if err != nil {
			return fmt.Errorf("mint %s: %w", m.Name, err)
		}
		mint := sealevel.Mint{MintAuthority: &authority, Decimals: m.Decimals, IsInitialized: true}
		if m.TransferPermit {
			mint.TransferHook = &sealevel.TransferHook{Authority: authority, ProgramId: sealevel.TransferPermitProgramAddr}
			hooked[m.Name] = true
		}
		data, err := mint.Marshal()
		if err != nil {
			return err
		}

		key := Address(m.Name)
		r.names[m.Name] = key
		err = r.setAccount(&accounts.Account{Key: key, Lamports: rent.MinimumBalance(uint64(len(data))), Data: data, Owner: sealevel.TokenProgramAddr})
		if err != nil {
			return err
		}
	}

	for _, ta := range s.TokenAccounts {
		mint, err := r.resolve(ta.Mint)
		if err != nil {
			return fmt.Errorf("token account %s: %w", ta.Name, err)
		}
		owner, err := r.resolve(ta.Owner)
		if err != nil {
			return fmt.Errorf("token account %s: %w", ta.Name, err)
		}
		tokenAcct := sealevel.TokenAccount{
			Mint:                mint,
			Owner:               owner,
			Amount:              ta.Amount,
			State:               sealevel.TokenAccountStateInitialized,
			TransferHookAccount: hooked[ta.Mint],
		}
		data, err := tokenAcct.Marshal()
		if err != nil {
			return err
		}

		key := Address(ta.Name)
		r.names[ta.Name] = key
		err = r.setAccount(&accounts.Account{Key: key, Lamports: rent.MinimumBalance(uint64(len(data))), Data: data, Owner: sealevel.TokenProgramAddr})
		if err != nil {
			return err
		}
	}

	return nil
}
