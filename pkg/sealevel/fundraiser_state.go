package sealevel

import (
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"go.firedancer.io/settle/pkg/safemath"
)

const (
	FundraiserLen  = 97
	ContributorLen = 8
)

// contribution bounds in base units of the raised mint
const (
	MinContribution = 10_000_000
	MaxContribution = 10_000_000_000
)

type FundraiserPhase int

const (
	FundraiserPhaseOpen FundraiserPhase = iota
	FundraiserPhaseTargetReached
	FundraiserPhaseExpiredUnfunded
)

func (p FundraiserPhase) String() string {
	switch p {
	case FundraiserPhaseOpen:
		return "Open"
	case FundraiserPhaseTargetReached:
		return "TargetReached"
	case FundraiserPhaseExpiredUnfunded:
		return "ExpiredUnfunded"
	}
	return "Unknown"
}

// Fundraiser is the campaign record at ("fundraiser", Maker, Bump). The phase
// is never stored; it follows from the clock and the vault balance.
type Fundraiser struct {
	Maker         solana.PublicKey
	Mint          solana.PublicKey
	AmountToRaise uint64
	CurrentAmount uint64
	TimeStarted   uint64
	Duration      uint64
	Bump          uint8
}

func (f *Fundraiser) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	for _, key := range []*solana.PublicKey{&f.Maker, &f.Mint} {
		b, err := decoder.ReadNBytes(solana.PublicKeyLength)
		if err != nil {
			return err
		}
		*key = solana.PublicKeyFromBytes(b)
	}
	for _, v := range []*uint64{&f.AmountToRaise, &f.CurrentAmount, &f.TimeStarted, &f.Duration} {
		var err error
		*v, err = decoder.ReadUint64(bin.LE)
		if err != nil {
			return err
		}
	}
	var err error
	f.Bump, err = decoder.ReadUint8()
	return err
}

func (f *Fundraiser) MarshalWithEncoder(encoder *bin.Encoder) error {
	for _, key := range []solana.PublicKey{f.Maker, f.Mint} {
		err := encoder.WriteBytes(key[:], false)
		if err != nil {
			return err
		}
	}
	for _, v := range []uint64{f.AmountToRaise, f.CurrentAmount, f.TimeStarted, f.Duration} {
		err := encoder.WriteUint64(v, bin.LE)
		if err != nil {
			return err
		}
	}
	return encoder.WriteUint8(f.Bump)
}

// Deadline is the last second at which the campaign is open. It saturates
// instead of wrapping.
func (f *Fundraiser) Deadline() uint64 {
	return safemath.SaturatingAddU64(f.TimeStarted, f.Duration)
}

func (f *Fundraiser) Phase(now uint64, vaultBalance uint64) FundraiserPhase {
	if vaultBalance >= f.AmountToRaise {
		return FundraiserPhaseTargetReached
	}
	if now <= f.Deadline() {
		return FundraiserPhaseOpen
	}
	return FundraiserPhaseExpiredUnfunded
}

func UnmarshalFundraiser(data []byte) (*Fundraiser, error) {
	if len(data) != FundraiserLen {
		return nil, InstrErrInvalidAccountData
	}
	f := new(Fundraiser)
	if err := f.UnmarshalWithDecoder(bin.NewBinDecoder(data)); err != nil {
		return nil, InstrErrInvalidAccountData
	}
	return f, nil
}

// Contributor is the running total one contributor has deposited.
type Contributor struct {
	Amount uint64
}

func (c *Contributor) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	var err error
	c.Amount, err = decoder.ReadUint64(bin.LE)
	return err
}

func (c *Contributor) MarshalWithEncoder(encoder *bin.Encoder) error {
	return encoder.WriteUint64(c.Amount, bin.LE)
}

func (c *Contributor) Accumulate(amount uint64) error {
	total, err := safemath.CheckedAddU64(c.Amount, amount)
	if err != nil {
		return InstrErrArithmeticOverflow
	}
	c.Amount = total
	return nil
}

func (c *Contributor) Clear() {
	c.Amount = 0
}

func UnmarshalContributor(data []byte) (*Contributor, error) {
	if len(data) != ContributorLen {
		return nil, InstrErrInvalidAccountData
	}
	c := new(Contributor)
	if err := c.UnmarshalWithDecoder(bin.NewBinDecoder(data)); err != nil {
		return nil, InstrErrInvalidAccountData
	}
	return c, nil
}
