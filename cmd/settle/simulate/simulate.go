package simulate

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.firedancer.io/settle/pkg/accounts"
	"go.firedancer.io/settle/pkg/base58"
	"go.firedancer.io/settle/pkg/global"
	"go.firedancer.io/settle/pkg/metrics"
	"go.firedancer.io/settle/pkg/scenario"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

var Cmd = cobra.Command{
	Use:   "simulate <scenario.yaml>...",
	Short: "Run settlement scenarios",
	Args:  cobra.MinimumNArgs(1),
	RunE:  run,
}

var (
	flagDb      string
	flagEngine  string
	flagJobs    int
	flagMetrics bool
	flagLogs    bool
)

func init() {
	Cmd.Flags().StringVar(&flagDb, "db", "", "Keep each scenario's ledger in a database under this directory")
	Cmd.Flags().StringVar(&flagEngine, "engine", "pebble", "Database engine for --db (pebble, lotusdb)")
	Cmd.Flags().IntVarP(&flagJobs, "jobs", "j", 4, "Number of scenarios to run concurrently")
	Cmd.Flags().BoolVar(&flagMetrics, "metrics", false, "Print runtime metrics after the run")
	Cmd.Flags().BoolVar(&flagLogs, "logs", false, "Print program logs of every step")
}

type result struct {
	path   string
	report *scenario.Report
	err    error
}

func run(c *cobra.Command, args []string) error {
	if flagJobs < 1 {
		return fmt.Errorf("--jobs must be at least 1, got %d", flagJobs)
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	results := make([]result, len(args))
	group, ctx := errgroup.WithContext(c.Context())
	group.SetLimit(flagJobs)

	for idx, path := range args {
		group.Go(func() error {
			s, err := scenario.Load(path)
			if err != nil {
				results[idx] = result{path: path, err: err}
				return nil
			}

			ledger, closeLedger, err := openLedger(idx, path)
			if err != nil {
				return err
			}
			defer closeLedger()

			globalCtx := global.NewGlobalCtxDefault()
			globalCtx.Metrics = m
			report, err := scenario.NewRunner(s, ledger, globalCtx).Run(ctx)
			results[idx] = result{path: path, report: report, err: err}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	out := c.OutOrStdout()
	var failed []error
	for _, res := range results {
		printResult(out, res)
		if res.err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", res.path, res.err))
		}
	}

	if flagMetrics {
		err := printMetrics(out, reg)
		if err != nil {
			return err
		}
	}
	return errors.Join(failed...)
}

func openLedger(idx int, path string) (accounts.Accounts, func(), error) {
	if flagDb == "" {
		return accounts.NewMemAccounts(), func() {}, nil
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	dir := filepath.Join(flagDb, fmt.Sprintf("%02d-%s", idx, name))
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return nil, nil, err
	}
	db, err := openDb(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("opening ledger %s: %w", dir, err)
	}
	klog.Infof("%s ledger for %s at %s", flagEngine, path, dir)
	return db, func() {
		if err := db.Close(); err != nil {
			klog.Errorf("closing ledger %s: %s", dir, err)
		}
	}, nil
}

type accountsDb interface {
	accounts.Accounts
	Close() error
}

func openDb(dir string) (accountsDb, error) {
	switch flagEngine {
	case "pebble":
		return accounts.OpenAccountsDb(dir)
	case "lotusdb":
		return accounts.OpenLotusAccountsDb(dir)
	}
	return nil, fmt.Errorf("unknown engine %q", flagEngine)
}

func printResult(w io.Writer, res result) {
	if res.report == nil {
		fmt.Fprintf(w, "%s: FAILED: %s\n\n", res.path, res.err)
		return
	}

	report := res.report
	fmt.Fprintf(w, "%s (%s)\n", report.Scenario, res.path)
	for _, step := range report.Steps {
		outcome := "ok"
		if step.Err != nil {
			outcome = step.Err.Error()
		}
		fmt.Fprintf(w, "  %-40s %-24s cu=%-6d %s\n", step.Name, step.Op, step.ComputeUnits, outcome)
		if flagLogs {
			for _, line := range step.Logs {
				fmt.Fprintf(w, "      %s\n", line)
			}
		}
	}
	for _, balance := range report.Balances {
		fmt.Fprintf(w, "  %-20s %s %d\n", balance.Name, balance.Address, balance.Amount)
	}
	if res.err != nil {
		fmt.Fprintf(w, "  FAILED: %s\n\n", res.err)
		return
	}
	fmt.Fprintf(w, "  ledger hash %s\n\n", base58.Encode(report.LedgerHash[:]))
}

func printMetrics(w io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, family := range families {
		err = enc.Encode(family)
		if err != nil {
			return err
		}
	}
	return nil
}
