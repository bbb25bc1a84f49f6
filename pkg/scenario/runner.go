package scenario

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go"
	"github.com/samber/lo"
	"go.firedancer.io/settle/pkg/accounts"
	"go.firedancer.io/settle/pkg/global"
	"go.firedancer.io/settle/pkg/replay"
	"go.firedancer.io/settle/pkg/sealevel"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// ErrUnexpectedOutcome is returned when a step's result or the balances
// after it differ from what the scenario states.
var ErrUnexpectedOutcome = errors.New("unexpected outcome")

type Runner struct {
	accts     accounts.Accounts
	globalCtx *global.GlobalCtx
	scenario  *Scenario
	names     map[string]solana.PublicKey
	sysvars   replay.Sysvars

	ledgerHash [32]byte
	seq        uint64
}

type Report struct {
	Scenario   string
	Steps      []StepReport
	Balances   []Balance
	LedgerHash [32]byte
}

type StepReport struct {
	Name         string
	Op           string
	Err          error
	ComputeUnits uint64
	DeltaHash    [32]byte
	Logs         []string
}

type Balance struct {
	Name    string
	Address solana.PublicKey
	Amount  uint64
}

func NewRunner(s *Scenario, accts accounts.Accounts, globalCtx *global.GlobalCtx) *Runner {
	return &Runner{
		accts:     accts,
		globalCtx: globalCtx,
		scenario:  s,
		names:     make(map[string]solana.PublicKey),
		sysvars: replay.Sysvars{
			Clock: sealevel.SysvarClock{Slot: s.Clock.Slot, UnixTimestamp: s.Clock.UnixTimestamp},
			Rent:  sealevel.DefaultRent(),
		},
	}
}

// Run sets up the ledger and executes every step in order. It stops at the
// first step whose outcome differs from the scenario.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	report := &Report{Scenario: r.scenario.Name}

	err := r.setup()
	if err != nil {
		return nil, fmt.Errorf("setting up %s: %w", r.scenario.Name, err)
	}
	err = replay.StoreSysvars(r.accts, r.sysvars)
	if err != nil {
		return nil, err
	}

	for idx := range r.scenario.Steps {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		step := &r.scenario.Steps[idx]
		name := step.Name
		if name == "" {
			name = fmt.Sprintf("#%d %s", idx, step.Op)
		}

		stepReport, err := r.runStep(step)
		stepReport.Name = name
		report.Steps = append(report.Steps, stepReport)
		if err != nil {
			return report, fmt.Errorf("step %s: %w", name, err)
		}
	}

	report.Balances, err = r.balances()
	if err != nil {
		return report, err
	}
	report.LedgerHash = r.ledgerHash
	return report, nil
}

func (r *Runner) runStep(step *Step) (StepReport, error) {
	stepReport := StepReport{Op: step.Op}

	if step.Op == opAdvanceClock {
		return stepReport, r.advanceClock(&step.Args)
	}

	ix, err := ops[step.Op](r, &step.Args)
	if err != nil {
		return stepReport, err
	}
	tx := &replay.Transaction{
		Signers: lo.Uniq(lo.FilterMap(ix.Accounts, func(meta sealevel.AccountMeta, _ int) (solana.PublicKey, bool) {
			return meta.Pubkey, meta.IsSigner
		})),
		Instructions: []sealevel.Instruction{ix},
	}

	result, txErr := replay.ProcessTransaction(r.accts, r.globalCtx, r.sysvars, tx)
	if result != nil {
		stepReport.ComputeUnits = result.ComputeUnitsUsed
		stepReport.Logs = result.Logs
		stepReport.DeltaHash = result.DeltaHash
	}
	stepReport.Err = txErr

	err = checkOutcome(step.Expect, txErr)
	if err != nil {
		return stepReport, err
	}
	if result != nil && result.Committed {
		r.seq++
		r.ledgerHash = replay.ChainHash(r.ledgerHash, result.DeltaHash, r.seq)
	}

	return stepReport, r.checkBalances(step.Balances)
}

// errorName is the name a scenario uses to expect err.
func errorName(err error) string {
	var instrErr *replay.InstructionError
	var rentErr *replay.TxErrInsufficientFundsForRent
	var sigErr *replay.TxErrMissingSignature
	switch {
	case errors.As(err, &instrErr):
		return instrErr.Err.Error()
	case errors.As(err, &rentErr):
		return "TxErrInsufficientFundsForRent"
	case errors.As(err, &sigErr):
		return "TxErrMissingSignature"
	}
	return err.Error()
}

// checkOutcome compares a transaction error against the expected error name.
func checkOutcome(expect string, txErr error) error {
	if txErr == nil {
		if expect != "" {
			return fmt.Errorf("%w: succeeded, expected %s", ErrUnexpectedOutcome, expect)
		}
		return nil
	}

	name := errorName(txErr)
	if expect == "" {
		return fmt.Errorf("%w: failed with %s", ErrUnexpectedOutcome, txErr)
	}
	if name != expect {
		return fmt.Errorf("%w: failed with %s, expected %s", ErrUnexpectedOutcome, name, expect)
	}
	klog.V(2).Infof("step failed as expected: %s", txErr)
	return nil
}

func (r *Runner) checkBalances(expected map[string]uint64) error {
	for name, want := range expected {
		key, err := r.resolve(name)
		if err != nil {
			return err
		}
		acct, err := r.tokenAccount(key)
		if err != nil {
			return fmt.Errorf("balance of %s: %w", name, err)
		}
		if acct.Amount != want {
			return fmt.Errorf("%w: %s holds %d, expected %d", ErrUnexpectedOutcome, name, acct.Amount, want)
		}
	}
	return nil
}

func (r *Runner) advanceClock(node *yaml.Node) error {
	var args advanceClockArgs
	err := node.Decode(&args)
	if err != nil {
		return err
	}
	if args.Seconds < 0 {
		return fmt.Errorf("clock cannot move backwards")
	}
	r.sysvars.Clock.UnixTimestamp += args.Seconds
	r.sysvars.Clock.Slot += args.Slots
	klog.V(2).Infof("clock advanced to slot %d, timestamp %d", r.sysvars.Clock.Slot, r.sysvars.Clock.UnixTimestamp)
	return sealevel.WriteClockSysvar(r.accts, r.sysvars.Clock)
}

// balances lists the declared token accounts in name order.
func (r *Runner) balances() ([]Balance, error) {
	balances := make([]Balance, 0, len(r.scenario.TokenAccounts))
	for _, ta := range r.scenario.TokenAccounts {
		key := r.names[ta.Name]
		acct, err := r.tokenAccount(key)
		if err != nil {
			return nil, fmt.Errorf("balance of %s: %w", ta.Name, err)
		}
		balances = append(balances, Balance{Name: ta.Name, Address: key, Amount: acct.Amount})
	}
	sort.Slice(balances, func(i, j int) bool {
		return balances[i].Name < balances[j].Name
	})
	return balances, nil
}
