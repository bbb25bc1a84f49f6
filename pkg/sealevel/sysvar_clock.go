package sealevel

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"go.firedancer.io/settle/pkg/accounts"
	"go.firedancer.io/settle/pkg/base58"
)

const SysvarClockAddrStr = "SysvarC1ock11111111111111111111111111111111"

var SysvarClockAddr = base58.MustDecodeFromString(SysvarClockAddrStr)

const SysvarClockStructLen = 40

type SysvarClock struct {
	Slot                uint64
	EpochStartTimestamp int64
	Epoch               uint64
	LeaderScheduleEpoch uint64
	UnixTimestamp       int64
}

func (sc *SysvarClock) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	sc.Slot, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return fmt.Errorf("failed to read Slot when decoding SysvarClock: %w", err)
	}

	sc.EpochStartTimestamp, err = decoder.ReadInt64(bin.LE)
	if err != nil {
		return fmt.Errorf("failed to read EpochStartTimestamp when decoding SysvarClock: %w", err)
	}

	sc.Epoch, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return fmt.Errorf("failed to read Epoch when decoding SysvarClock: %w", err)
	}

	sc.LeaderScheduleEpoch, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return fmt.Errorf("failed to read LeaderScheduleEpoch when decoding SysvarClock: %w", err)
	}

	sc.UnixTimestamp, err = decoder.ReadInt64(bin.LE)
	if err != nil {
		return fmt.Errorf("failed to read UnixTimestamp when decoding SysvarClock: %w", err)
	}
	return
}

func (sc *SysvarClock) MarshalWithEncoder(encoder *bin.Encoder) error {
	var err error
	if err = encoder.WriteUint64(sc.Slot, bin.LE); err != nil {
		return err
	}
	if err = encoder.WriteInt64(sc.EpochStartTimestamp, bin.LE); err != nil {
		return err
	}
	if err = encoder.WriteUint64(sc.Epoch, bin.LE); err != nil {
		return err
	}
	if err = encoder.WriteUint64(sc.LeaderScheduleEpoch, bin.LE); err != nil {
		return err
	}
	return encoder.WriteInt64(sc.UnixTimestamp, bin.LE)
}

// Now returns the clock's unix timestamp as an unsigned number of seconds.
// Timestamps before the epoch clamp to zero.
func (sc *SysvarClock) Now() uint64 {
	if sc.UnixTimestamp < 0 {
		return 0
	}
	return uint64(sc.UnixTimestamp)
}

func ReadClockSysvar(accts accounts.Accounts) (SysvarClock, error) {
	var clock SysvarClock
	clockAcct, err := accts.GetAccount(&SysvarClockAddr)
	if err != nil {
		return clock, fmt.Errorf("failed to read clock sysvar account: %w", err)
	}
	if clockAcct == nil {
		return clock, InstrErrUnsupportedSysvar
	}

	err = clock.UnmarshalWithDecoder(bin.NewBinDecoder(clockAcct.Data))
	return clock, err
}

func WriteClockSysvar(accts accounts.Accounts, clock SysvarClock) error {
	buf := new(bytes.Buffer)
	err := clock.MarshalWithEncoder(bin.NewBinEncoder(buf))
	if err != nil {
		return err
	}

	clockAcct := accounts.Account{Key: SysvarClockAddr, Lamports: 1, Data: buf.Bytes(), Owner: SysvarOwnerAddr}
	return accts.SetAccount(&SysvarClockAddr, &clockAcct)
}
