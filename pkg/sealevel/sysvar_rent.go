package sealevel

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"go.firedancer.io/settle/pkg/accounts"
	"go.firedancer.io/settle/pkg/base58"
)

const SysvarRentAddrStr = "SysvarRent111111111111111111111111111111111"

var SysvarRentAddr = base58.MustDecodeFromString(SysvarRentAddrStr)

const SysvarRentStructLen = 17

// AccountStorageOverhead is the per-account metadata size rent is charged on.
const AccountStorageOverhead = 128

type SysvarRent struct {
	LamportsPerUint8Year uint64
	ExemptionThreshold   float64
	BurnPercent          byte
}

func DefaultRent() SysvarRent {
	return SysvarRent{LamportsPerUint8Year: 3480, ExemptionThreshold: 2.0, BurnPercent: 50}
}

func (sr *SysvarRent) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	sr.LamportsPerUint8Year, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return fmt.Errorf("failed to read LamportsPerUint8Year when decoding SysvarRent: %w", err)
	}

	sr.ExemptionThreshold, err = decoder.ReadFloat64(bin.LE)
	if err != nil {
		return fmt.Errorf("failed to read ExemptionThreshold when decoding SysvarRent: %w", err)
	}

	sr.BurnPercent, err = decoder.ReadByte()
	if err != nil {
		return fmt.Errorf("failed to read BurnPercent when decoding SysvarRent: %w", err)
	}

	return
}

func (sr *SysvarRent) MarshalWithEncoder(encoder *bin.Encoder) error {
	err := encoder.WriteUint64(sr.LamportsPerUint8Year, bin.LE)
	if err != nil {
		return err
	}
	err = encoder.WriteFloat64(sr.ExemptionThreshold, bin.LE)
	if err != nil {
		return err
	}
	return encoder.WriteByte(sr.BurnPercent)
}

// MinimumBalance is the lamport balance that makes an account of dataLen
// bytes rent exempt.
func (sr SysvarRent) MinimumBalance(dataLen uint64) uint64 {
	bytes := AccountStorageOverhead + dataLen
	return uint64(float64(bytes*sr.LamportsPerUint8Year) * sr.ExemptionThreshold)
}

func (sr SysvarRent) IsExempt(lamports uint64, dataLen uint64) bool {
	return lamports >= sr.MinimumBalance(dataLen)
}

func ReadRentSysvar(accts accounts.Accounts) (SysvarRent, error) {
	var rent SysvarRent
	rentAcct, err := accts.GetAccount(&SysvarRentAddr)
	if err != nil {
		return rent, fmt.Errorf("failed to read rent sysvar account: %w", err)
	}
	if rentAcct == nil {
		return rent, InstrErrUnsupportedSysvar
	}

	err = rent.UnmarshalWithDecoder(bin.NewBinDecoder(rentAcct.Data))
	return rent, err
}

func WriteRentSysvar(accts accounts.Accounts, rent SysvarRent) error {
	buf := new(bytes.Buffer)
	err := rent.MarshalWithEncoder(bin.NewBinEncoder(buf))
	if err != nil {
		return err
	}

	rentAcct := accounts.Account{Key: SysvarRentAddr, Lamports: 1, Data: buf.Bytes(), Owner: SysvarOwnerAddr}
	return accts.SetAccount(&SysvarRentAddr, &rentAcct)
}
