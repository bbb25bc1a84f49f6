package sealevel

import (
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const EscrowLen = 113

// Escrow holds the terms of an open swap. The record lives at
// ("escrow", Maker, Bump) under the escrow program.
type Escrow struct {
	Maker           solana.PublicKey
	MintA           solana.PublicKey
	MintB           solana.PublicKey
	AmountToReceive uint64
	AmountToGive    uint64
	Bump            uint8
}

func (escrow *Escrow) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	for _, key := range []*solana.PublicKey{&escrow.Maker, &escrow.MintA, &escrow.MintB} {
		b, err := decoder.ReadNBytes(solana.PublicKeyLength)
		if err != nil {
			return err
		}
		*key = solana.PublicKeyFromBytes(b)
	}

	var err error
	escrow.AmountToReceive, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	escrow.AmountToGive, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	escrow.Bump, err = decoder.ReadUint8()
	return err
}

func (escrow *Escrow) MarshalWithEncoder(encoder *bin.Encoder) error {
	for _, key := range []solana.PublicKey{escrow.Maker, escrow.MintA, escrow.MintB} {
		err := encoder.WriteBytes(key[:], false)
		if err != nil {
			return err
		}
	}
	err := encoder.WriteUint64(escrow.AmountToReceive, bin.LE)
	if err != nil {
		return err
	}
	err = encoder.WriteUint64(escrow.AmountToGive, bin.LE)
	if err != nil {
		return err
	}
	return encoder.WriteUint8(escrow.Bump)
}

// UnmarshalEscrow decodes an escrow record. A zeroed record belongs to a
// settled escrow and fails with InstrErrUninitializedAccount.
func UnmarshalEscrow(data []byte) (*Escrow, error) {
	if len(data) != EscrowLen {
		return nil, InstrErrInvalidAccountData
	}
	if isZeroed(data) {
		return nil, InstrErrUninitializedAccount
	}
	escrow := new(Escrow)
	if err := escrow.UnmarshalWithDecoder(bin.NewBinDecoder(data)); err != nil {
		return nil, InstrErrInvalidAccountData
	}
	return escrow, nil
}
