// Package scenario runs YAML-described settlement scenarios against a ledger.
//
// A scenario declares wallets, mints and token accounts, then a list of steps.
// Each step is one transaction built from a named operation; it may state
// the error it expects and the token balances that must hold afterwards.
// Accounts are referred to by name. "escrow:<maker>", "fundraiser:<maker>"
// and "contributor:<wallet>" name the derived program accounts.
package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const defaultWalletLamports = 10_000_000_000

type Scenario struct {
	Name          string             `yaml:"name"`
	Clock         Clock              `yaml:"clock"`
	Features      []string           `yaml:"features"`
	Wallets       []WalletSpec       `yaml:"wallets"`
	Mints         []MintSpec         `yaml:"mints"`
	TokenAccounts []TokenAccountSpec `yaml:"token_accounts"`
	Steps         []Step             `yaml:"steps"`
}

type Clock struct {
	Slot          uint64 `yaml:"slot"`
	UnixTimestamp int64  `yaml:"unix_timestamp"`
}

type WalletSpec struct {
	Name     string `yaml:"name"`
	Lamports uint64 `yaml:"lamports"`
}

type MintSpec struct {
	Name      string `yaml:"name"`
	Authority string `yaml:"authority"`
	Decimals  uint8  `yaml:"decimals"`

	// TransferPermit installs the transfer-permit hook, administered by
	// the mint authority.
	TransferPermit bool `yaml:"transfer_permit"`
}

type TokenAccountSpec struct {
	Name   string `yaml:"name"`
	Mint   string `yaml:"mint"`
	Owner  string `yaml:"owner"`
	Amount uint64 `yaml:"amount"`
}

type Step struct {
	Name string    `yaml:"name"`
	Op   string    `yaml:"op"`
	Args yaml.Node `yaml:"args"`

	// Expect is the name of the error the step must fail with. Empty
	// means the step must succeed.
	Expect   string            `yaml:"expect"`
	Balances map[string]uint64 `yaml:"balances"`
}

// Parse decodes and checks a scenario document.
func Parse(data []byte) (*Scenario, error) {
	s := new(Scenario)
	err := yaml.Unmarshal(data, s)
	if err != nil {
		return nil, err
	}
	err = s.validate()
	if err != nil {
		return nil, err
	}
	return s, nil
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = path
	}
	return s, nil
}

func (s *Scenario) validate() error {
	seen := make(map[string]bool)
	declare := func(kind, name string) error {
		if name == "" {
			return fmt.Errorf("%s without a name", kind)
		}
		if seen[name] {
			return fmt.Errorf("%s %q declared twice", kind, name)
		}
		seen[name] = true
		return nil
	}

	for _, w := range s.Wallets {
		if err := declare("wallet", w.Name); err != nil {
			return err
		}
	}
	for _, m := range s.Mints {
		if err := declare("mint", m.Name); err != nil {
			return err
		}
	}
	for _, ta := range s.TokenAccounts {
		if err := declare("token account", ta.Name); err != nil {
			return err
		}
	}

	for idx, step := range s.Steps {
		if _, ok := ops[step.Op]; !ok && step.Op != opAdvanceClock {
			return fmt.Errorf("step %d: unknown op %q", idx, step.Op)
		}
	}
	return nil
}
