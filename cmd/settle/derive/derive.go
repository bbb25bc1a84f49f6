package derive

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"go.firedancer.io/settle/pkg/sealevel"
)

var Cmd = cobra.Command{
	Use:   "derive",
	Short: "Derive a program account address",
	Long: "Derive the address and bump of a program-owned account.\n\n" +
		"Kinds: escrow, fundraiser, contributor (keyed by --key), " +
		"permit (keyed by --mint and --key), extra-metas (keyed by --mint).",
	Args: cobra.NoArgs,
	RunE: run,
}

var (
	flagKind string
	flagKey  string
	flagMint string
)

func init() {
	Cmd.Flags().StringVarP(&flagKind, "kind", "k", "", "Kind of account to derive")
	Cmd.Flags().StringVar(&flagKey, "key", "", "Base58 maker, contributor or permit owner")
	Cmd.Flags().StringVar(&flagMint, "mint", "", "Base58 mint")
	_ = Cmd.MarkFlagRequired("kind")
}

type kind struct {
	needsKey  bool
	needsMint bool
	find      func(key, mint solana.PublicKey) (solana.PublicKey, uint8, error)
}

var kinds = map[string]kind{
	"escrow": {needsKey: true, find: func(key, _ solana.PublicKey) (solana.PublicKey, uint8, error) {
		return sealevel.FindEscrowAddress(key)
	}},
	"fundraiser": {needsKey: true, find: func(key, _ solana.PublicKey) (solana.PublicKey, uint8, error) {
		return sealevel.FindFundraiserAddress(key)
	}},
	"contributor": {needsKey: true, find: func(key, _ solana.PublicKey) (solana.PublicKey, uint8, error) {
		return sealevel.FindContributorAddress(key)
	}},
	"permit": {needsKey: true, needsMint: true, find: func(key, mint solana.PublicKey) (solana.PublicKey, uint8, error) {
		return sealevel.FindPermitAddress(mint, key)
	}},
	"extra-metas": {needsMint: true, find: func(_, mint solana.PublicKey) (solana.PublicKey, uint8, error) {
		return sealevel.FindExtraAccountMetasAddress(mint)
	}},
}

func parseKey(name, value string) (solana.PublicKey, error) {
	if value == "" {
		return solana.PublicKey{}, fmt.Errorf("--%s is required for %s", name, flagKind)
	}
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return key, nil
}

func run(c *cobra.Command, _ []string) error {
	k, ok := kinds[flagKind]
	if !ok {
		return fmt.Errorf("unknown kind %q", flagKind)
	}

	var key, mint solana.PublicKey
	var err error
	if k.needsKey {
		key, err = parseKey("key", flagKey)
		if err != nil {
			return err
		}
	}
	if k.needsMint {
		mint, err = parseKey("mint", flagMint)
		if err != nil {
			return err
		}
	}

	addr, bump, err := k.find(key, mint)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.OutOrStdout(), "%s bump=%d\n", addr, bump)
	return nil
}
