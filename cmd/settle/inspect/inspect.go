package inspect

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.firedancer.io/settle/pkg/sealevel"
	"gopkg.in/yaml.v3"
)

var Cmd = cobra.Command{
	Use:   "inspect",
	Short: "Decode program account data",
	Long: "Decode the data of a program account and print it as YAML.\n\n" +
		"Kinds: escrow, fundraiser, contributor, permit, permit-config, mint, token.",
	Args: cobra.NoArgs,
	RunE: run,
}

var (
	flagKind string
	flagData string
	flagFile string
	flagNow  uint64
)

func init() {
	Cmd.Flags().StringVarP(&flagKind, "kind", "k", "", "Kind of account data")
	Cmd.Flags().StringVar(&flagData, "data", "", "Account data as hex")
	Cmd.Flags().StringVarP(&flagFile, "file", "f", "", "File holding raw account data")
	Cmd.Flags().Uint64Var(&flagNow, "now", 0, "Unix timestamp used to report a fundraiser's phase")
	_ = Cmd.MarkFlagRequired("kind")
	Cmd.MarkFlagsMutuallyExclusive("data", "file")
	Cmd.MarkFlagsOneRequired("data", "file")
}

type fundraiserView struct {
	sealevel.Fundraiser `yaml:",inline"`

	Deadline uint64 `yaml:"deadline"`
	Phase    string `yaml:"phase,omitempty"`
}

// Decode parses data as the named kind of account.
func Decode(kind string, data []byte, now uint64) (any, error) {
	switch kind {
	case "escrow":
		return sealevel.UnmarshalEscrow(data)
	case "fundraiser":
		f, err := sealevel.UnmarshalFundraiser(data)
		if err != nil {
			return nil, err
		}
		view := &fundraiserView{Fundraiser: *f, Deadline: f.Deadline()}
		if now != 0 {
			// The recorded total stands in for the vault balance.
			view.Phase = f.Phase(now, f.CurrentAmount).String()
		}
		return view, nil
	case "contributor":
		return sealevel.UnmarshalContributor(data)
	case "permit":
		return sealevel.UnmarshalPermit(data)
	case "permit-config":
		return sealevel.UnmarshalPermitConfig(data)
	case "mint":
		return sealevel.UnmarshalMint(data)
	case "token":
		return sealevel.UnmarshalTokenAccount(data)
	}
	return nil, fmt.Errorf("unknown kind %q", kind)
}

func readData() ([]byte, error) {
	if flagFile != "" {
		return os.ReadFile(flagFile)
	}
	return hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(flagData), "0x"))
}

func run(c *cobra.Command, _ []string) error {
	data, err := readData()
	if err != nil {
		return fmt.Errorf("reading account data: %w", err)
	}
	state, err := Decode(flagKind, data, flagNow)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", flagKind, err)
	}

	enc := yaml.NewEncoder(c.OutOrStdout())
	defer enc.Close()
	return enc.Encode(state)
}
