package replay

import (
	"errors"
	"fmt"

	"go.firedancer.io/settle/pkg/accounts"
	"go.firedancer.io/settle/pkg/sealevel"
	"k8s.io/klog/v2"
)

// Sysvars is the ledger state programs can observe during a transaction.
type Sysvars struct {
	Clock sealevel.SysvarClock
	Rent  sealevel.SysvarRent
}

// LoadSysvars reads the clock and rent sysvar accounts. A ledger without a
// clock is an error; a missing rent account falls back to the default rent.
func LoadSysvars(accts accounts.Accounts) (Sysvars, error) {
	var sysvars Sysvars
	var err error

	sysvars.Clock, err = sealevel.ReadClockSysvar(accts)
	if err != nil {
		return sysvars, fmt.Errorf("clock sysvar: %w", err)
	}

	sysvars.Rent, err = sealevel.ReadRentSysvar(accts)
	if errors.Is(err, sealevel.InstrErrUnsupportedSysvar) {
		klog.V(2).Infof("no rent sysvar, using default rent")
		sysvars.Rent = sealevel.DefaultRent()
	} else if err != nil {
		return sysvars, fmt.Errorf("rent sysvar: %w", err)
	}

	return sysvars, nil
}

// StoreSysvars writes the sysvar accounts back to the ledger.
func StoreSysvars(accts accounts.Accounts, sysvars Sysvars) error {
	err := sealevel.WriteClockSysvar(accts, sysvars.Clock)
	if err != nil {
		return err
	}
	return sealevel.WriteRentSysvar(accts, sysvars.Rent)
}
