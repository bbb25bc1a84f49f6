package scenario

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.firedancer.io/settle/pkg/sealevel"
	"gopkg.in/yaml.v3"
)

const opAdvanceClock = "advance_clock"

type opBuilder func(r *Runner, args *yaml.Node) (sealevel.Instruction, error)

var ops = map[string]opBuilder{
	"initialize_permits":    buildInitializePermits,
	"set_permit":            buildSetPermit,
	"mint_to":               buildMintTo,
	"transfer":              buildTransfer,
	"system_transfer":       buildSystemTransfer,
	"escrow_make":           buildEscrowMake,
	"escrow_take":           buildEscrowTake,
	"fundraiser_initialize": buildFundraiserInitialize,
	"fundraiser_contribute": buildFundraiserContribute,
	"fundraiser_check":      buildFundraiserCheckContributions,
	"fundraiser_refund":     buildFundraiserRefund,
}

type advanceClockArgs struct {
	Seconds int64  `yaml:"seconds"`
	Slots   uint64 `yaml:"slots"`
}

type initializePermitsArgs struct {
	Mint  string `yaml:"mint"`
	Admin string `yaml:"admin"`
}

type setPermitArgs struct {
	Mint       string `yaml:"mint"`
	Admin      string `yaml:"admin"`
	User       string `yaml:"user"`
	Restricted bool   `yaml:"restricted"`
}

type mintToArgs struct {
	Mint        string `yaml:"mint"`
	Destination string `yaml:"destination"`
	Authority   string `yaml:"authority"`
	Amount      uint64 `yaml:"amount"`
}

type transferArgs struct {
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"`
	Authority   string `yaml:"authority"`
	Amount      uint64 `yaml:"amount"`
}

type systemTransferArgs struct {
	From     string `yaml:"from"`
	To       string `yaml:"to"`
	Lamports uint64 `yaml:"lamports"`
}

type escrowMakeArgs struct {
	Maker     string `yaml:"maker"`
	MintA     string `yaml:"mint_a"`
	MintB     string `yaml:"mint_b"`
	MakerAtaA string `yaml:"maker_ata_a"`
	Vault     string `yaml:"vault"`
	Receive   uint64 `yaml:"receive"`
	Give      uint64 `yaml:"give"`
}

type escrowTakeArgs struct {
	Taker     string `yaml:"taker"`
	Maker     string `yaml:"maker"`
	MintA     string `yaml:"mint_a"`
	MintB     string `yaml:"mint_b"`
	MakerAtaB string `yaml:"maker_ata_b"`
	TakerAtaB string `yaml:"taker_ata_b"`
	TakerAtaA string `yaml:"taker_ata_a"`
	Vault     string `yaml:"vault"`
	Receive   uint64 `yaml:"receive"`
	Give      uint64 `yaml:"give"`
}

type fundraiserInitializeArgs struct {
	Maker         string `yaml:"maker"`
	Mint          string `yaml:"mint"`
	Vault         string `yaml:"vault"`
	AmountToRaise uint64 `yaml:"amount_to_raise"`
	Duration      uint64 `yaml:"duration"`
}

type fundraiserContributeArgs struct {
	Contributor    string `yaml:"contributor"`
	Maker          string `yaml:"maker"`
	Mint           string `yaml:"mint"`
	Vault          string `yaml:"vault"`
	ContributorAta string `yaml:"contributor_ata"`
	Amount         uint64 `yaml:"amount"`
}

type fundraiserCheckArgs struct {
	Maker    string `yaml:"maker"`
	Mint     string `yaml:"mint"`
	Vault    string `yaml:"vault"`
	MakerAta string `yaml:"maker_ata"`
}

type fundraiserRefundArgs struct {
	Contributor    string `yaml:"contributor"`
	Maker          string `yaml:"maker"`
	Mint           string `yaml:"mint"`
	Vault          string `yaml:"vault"`
	ContributorAta string `yaml:"contributor_ata"`
}

// resolveAll resolves names in order into the pointed-to keys.
func (r *Runner) resolveAll(pairs ...any) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		name := pairs[i].(string)
		key, err := r.resolve(name)
		if err != nil {
			return err
		}
		*pairs[i+1].(*solana.PublicKey) = key
	}
	return nil
}

// hookAccounts lists the extra accounts a transfer of mint needs.
func (r *Runner) hookAccounts(mintKey, sourceOwner, destinationOwner solana.PublicKey) ([]sealevel.AccountMeta, error) {
	mint, err := r.mint(mintKey)
	if err != nil {
		return nil, err
	}
	if mint.TransferHook == nil {
		return nil, nil
	}
	if mint.TransferHook.ProgramId != sealevel.TransferPermitProgramAddr {
		return nil, fmt.Errorf("mint %s uses unsupported hook program %s", mintKey, mint.TransferHook.ProgramId)
	}
	return sealevel.TransferHookAccounts(mintKey, sourceOwner, destinationOwner), nil
}

func buildInitializePermits(r *Runner, node *yaml.Node) (sealevel.Instruction, error) {
	var args initializePermitsArgs
	var mint, admin solana.PublicKey
	if err := node.Decode(&args); err != nil {
		return sealevel.Instruction{}, err
	}
	if err := r.resolveAll(args.Mint, &mint, args.Admin, &admin); err != nil {
		return sealevel.Instruction{}, err
	}
	return sealevel.NewInitializeExtraAccountMetaListInstruction(admin, mint), nil
}

func buildSetPermit(r *Runner, node *yaml.Node) (sealevel.Instruction, error) {
	var args setPermitArgs
	var mint, admin, user solana.PublicKey
	if err := node.Decode(&args); err != nil {
		return sealevel.Instruction{}, err
	}
	if err := r.resolveAll(args.Mint, &mint, args.Admin, &admin, args.User, &user); err != nil {
		return sealevel.Instruction{}, err
	}
	return sealevel.NewSetPermitInstruction(admin, mint, user, args.Restricted), nil
}

func buildMintTo(r *Runner, node *yaml.Node) (sealevel.Instruction, error) {
	var args mintToArgs
	var mint, destination, authority solana.PublicKey
	if err := node.Decode(&args); err != nil {
		return sealevel.Instruction{}, err
	}
	if err := r.resolveAll(args.Mint, &mint, args.Destination, &destination, args.Authority, &authority); err != nil {
		return sealevel.Instruction{}, err
	}
	return sealevel.NewTokenMintToInstruction(mint, destination, authority, args.Amount), nil
}

func buildTransfer(r *Runner, node *yaml.Node) (sealevel.Instruction, error) {
	var args transferArgs
	var source, destination, authority solana.PublicKey
	if err := node.Decode(&args); err != nil {
		return sealevel.Instruction{}, err
	}
	if err := r.resolveAll(args.Source, &source, args.Destination, &destination, args.Authority, &authority); err != nil {
		return sealevel.Instruction{}, err
	}

	src, err := r.tokenAccount(source)
	if err != nil {
		return sealevel.Instruction{}, fmt.Errorf("transfer source: %w", err)
	}
	dst, err := r.tokenAccount(destination)
	if err != nil {
		return sealevel.Instruction{}, fmt.Errorf("transfer destination: %w", err)
	}
	mint, err := r.mint(src.Mint)
	if err != nil {
		return sealevel.Instruction{}, err
	}
	hookAccts, err := r.hookAccounts(src.Mint, src.Owner, dst.Owner)
	if err != nil {
		return sealevel.Instruction{}, err
	}
	return sealevel.NewTokenTransferCheckedInstruction(source, src.Mint, destination, authority, args.Amount, mint.Decimals, hookAccts), nil
}

func buildSystemTransfer(r *Runner, node *yaml.Node) (sealevel.Instruction, error) {
	var args systemTransferArgs
	var from, to solana.PublicKey
	if err := node.Decode(&args); err != nil {
		return sealevel.Instruction{}, err
	}
	if err := r.resolveAll(args.From, &from, args.To, &to); err != nil {
		return sealevel.Instruction{}, err
	}
	return sealevel.NewSystemTransferInstruction(from, to, args.Lamports), nil
}

func buildEscrowMake(r *Runner, node *yaml.Node) (sealevel.Instruction, error) {
	var args escrowMakeArgs
	var accts sealevel.EscrowMakeAccounts
	if err := node.Decode(&args); err != nil {
		return sealevel.Instruction{}, err
	}
	err := r.resolveAll(
		args.Maker, &accts.Maker,
		args.MintA, &accts.MintA,
		args.MintB, &accts.MintB,
		args.MakerAtaA, &accts.MakerAtaA,
		args.Vault, &accts.Vault,
	)
	if err != nil {
		return sealevel.Instruction{}, err
	}

	escrow, bump, err := sealevel.FindEscrowAddress(accts.Maker)
	if err != nil {
		return sealevel.Instruction{}, err
	}
	hookAccts, err := r.hookAccounts(accts.MintA, accts.Maker, escrow)
	if err != nil {
		return sealevel.Instruction{}, err
	}
	return sealevel.NewEscrowMakeInstruction(accts, bump, args.Receive, args.Give, hookAccts), nil
}

func buildEscrowTake(r *Runner, node *yaml.Node) (sealevel.Instruction, error) {
	var args escrowTakeArgs
	var accts sealevel.EscrowTakeAccounts
	if err := node.Decode(&args); err != nil {
		return sealevel.Instruction{}, err
	}
	err := r.resolveAll(
		args.Taker, &accts.Taker,
		args.Maker, &accts.Maker,
		args.MintA, &accts.MintA,
		args.MintB, &accts.MintB,
		args.MakerAtaB, &accts.MakerAtaB,
		args.TakerAtaB, &accts.TakerAtaB,
		args.TakerAtaA, &accts.TakerAtaA,
		args.Vault, &accts.Vault,
	)
	if err != nil {
		return sealevel.Instruction{}, err
	}

	escrow, _, err := sealevel.FindEscrowAddress(accts.Maker)
	if err != nil {
		return sealevel.Instruction{}, err
	}
	hookB, err := r.hookAccounts(accts.MintB, accts.Taker, accts.Maker)
	if err != nil {
		return sealevel.Instruction{}, err
	}
	hookA, err := r.hookAccounts(accts.MintA, escrow, accts.Taker)
	if err != nil {
		return sealevel.Instruction{}, err
	}
	return sealevel.NewEscrowTakeInstruction(accts, args.Receive, args.Give, append(hookB, hookA...)), nil
}

func buildFundraiserInitialize(r *Runner, node *yaml.Node) (sealevel.Instruction, error) {
	var args fundraiserInitializeArgs
	var maker, mint, vault solana.PublicKey
	if err := node.Decode(&args); err != nil {
		return sealevel.Instruction{}, err
	}
	if err := r.resolveAll(args.Maker, &maker, args.Mint, &mint, args.Vault, &vault); err != nil {
		return sealevel.Instruction{}, err
	}
	return sealevel.NewFundraiserInitializeInstruction(maker, mint, vault, args.AmountToRaise, args.Duration), nil
}

func buildFundraiserContribute(r *Runner, node *yaml.Node) (sealevel.Instruction, error) {
	var args fundraiserContributeArgs
	var contributor, maker, mint, vault, contributorAta solana.PublicKey
	if err := node.Decode(&args); err != nil {
		return sealevel.Instruction{}, err
	}
	err := r.resolveAll(args.Contributor, &contributor, args.Maker, &maker, args.Mint, &mint, args.Vault, &vault, args.ContributorAta, &contributorAta)
	if err != nil {
		return sealevel.Instruction{}, err
	}

	fundraiser, _, err := sealevel.FindFundraiserAddress(maker)
	if err != nil {
		return sealevel.Instruction{}, err
	}
	hookAccts, err := r.hookAccounts(mint, contributor, fundraiser)
	if err != nil {
		return sealevel.Instruction{}, err
	}
	return sealevel.NewFundraiserContributeInstruction(contributor, maker, mint, vault, contributorAta, args.Amount, hookAccts), nil
}

func buildFundraiserCheckContributions(r *Runner, node *yaml.Node) (sealevel.Instruction, error) {
	var args fundraiserCheckArgs
	var maker, mint, vault, makerAta solana.PublicKey
	if err := node.Decode(&args); err != nil {
		return sealevel.Instruction{}, err
	}
	if err := r.resolveAll(args.Maker, &maker, args.Mint, &mint, args.Vault, &vault, args.MakerAta, &makerAta); err != nil {
		return sealevel.Instruction{}, err
	}

	fundraiser, _, err := sealevel.FindFundraiserAddress(maker)
	if err != nil {
		return sealevel.Instruction{}, err
	}
	hookAccts, err := r.hookAccounts(mint, fundraiser, maker)
	if err != nil {
		return sealevel.Instruction{}, err
	}
	return sealevel.NewFundraiserCheckContributionsInstruction(maker, mint, vault, makerAta, hookAccts), nil
}

func buildFundraiserRefund(r *Runner, node *yaml.Node) (sealevel.Instruction, error) {
	var args fundraiserRefundArgs
	var contributor, maker, mint, vault, contributorAta solana.PublicKey
	if err := node.Decode(&args); err != nil {
		return sealevel.Instruction{}, err
	}
	err := r.resolveAll(args.Contributor, &contributor, args.Maker, &maker, args.Mint, &mint, args.Vault, &vault, args.ContributorAta, &contributorAta)
	if err != nil {
		return sealevel.Instruction{}, err
	}

	fundraiser, _, err := sealevel.FindFundraiserAddress(maker)
	if err != nil {
		return sealevel.Instruction{}, err
	}
	hookAccts, err := r.hookAccounts(mint, fundraiser, contributor)
	if err != nil {
		return sealevel.Instruction{}, err
	}
	return sealevel.NewFundraiserRefundInstruction(contributor, maker, mint, vault, contributorAta, hookAccts), nil
}
