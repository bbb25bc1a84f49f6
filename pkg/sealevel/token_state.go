package sealevel

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const (
	MintLen         = 82
	TokenAccountLen = 165
)

const (
	TokenAccountStateUninitialized = 0
	TokenAccountStateInitialized   = 1
	TokenAccountStateFrozen        = 2
)

const (
	accountTypeMint    = 1
	accountTypeAccount = 2
)

// extension types, numbered as in Token-2022
const (
	ExtensionTypeTransferHook        = 14
	ExtensionTypeTransferHookAccount = 15
)

const transferHookExtensionLen = 64

type TransferHook struct {
	Authority solana.PublicKey
	ProgramId solana.PublicKey
}

type Mint struct {
	MintAuthority   *solana.PublicKey
	Supply          uint64
	Decimals        uint8
	IsInitialized   bool
	FreezeAuthority *solana.PublicKey
	TransferHook    *TransferHook
}

type TokenAccount struct {
	Mint            solana.PublicKey
	Owner           solana.PublicKey
	Amount          uint64
	Delegate        *solana.PublicKey
	State           uint8
	IsNative        *uint64
	DelegatedAmount uint64
	CloseAuthority  *solana.PublicKey

	// TransferHookAccount marks an account of a hooked mint; plain
	// Transfer is refused for such accounts.
	TransferHookAccount bool
}

func readCOptionPubkey(decoder *bin.Decoder) (*solana.PublicKey, error) {
	tag, err := decoder.ReadUint32(bin.LE)
	if err != nil {
		return nil, err
	}
	pk, err := decoder.ReadBytes(solana.PublicKeyLength)
	if err != nil {
		return nil, err
	}
	switch tag {
	case 0:
		return nil, nil
	case 1:
		key := solana.PublicKeyFromBytes(pk)
		return &key, nil
	default:
		return nil, fmt.Errorf("invalid COption tag %d", tag)
	}
}

func writeCOptionPubkey(encoder *bin.Encoder, pk *solana.PublicKey) error {
	var tag uint32
	var key solana.PublicKey
	if pk != nil {
		tag = 1
		key = *pk
	}
	err := encoder.WriteUint32(tag, bin.LE)
	if err != nil {
		return err
	}
	return encoder.WriteBytes(key[:], false)
}

type tlvEntry struct {
	extType uint16
	value   []byte
}

// readExtensions parses the Token-2022 extension area that follows the
// padded base state: one account type byte, then TLV entries.
func readExtensions(data []byte, accountType byte) ([]tlvEntry, error) {
	if len(data) == TokenAccountLen {
		return nil, fmt.Errorf("missing account type")
	}
	if data[TokenAccountLen] != accountType {
		return nil, fmt.Errorf("account type %d, expected %d", data[TokenAccountLen], accountType)
	}

	decoder := bin.NewBinDecoder(data[TokenAccountLen+1:])
	var entries []tlvEntry
	for decoder.Remaining() > 0 {
		extType, err := decoder.ReadUint16(bin.LE)
		if err != nil {
			return nil, err
		}
		if extType == 0 {
			break
		}
		length, err := decoder.ReadUint16(bin.LE)
		if err != nil {
			return nil, err
		}
		value, err := decoder.ReadNBytes(int(length))
		if err != nil {
			return nil, err
		}
		entries = append(entries, tlvEntry{extType: extType, value: value})
	}
	return entries, nil
}

func writeExtensions(buf *bytes.Buffer, accountType byte, entries []tlvEntry) error {
	if buf.Len() > TokenAccountLen {
		return fmt.Errorf("base state overruns extension area")
	}
	buf.Write(make([]byte, TokenAccountLen-buf.Len()))
	buf.WriteByte(accountType)

	encoder := bin.NewBinEncoder(buf)
	for _, entry := range entries {
		err := encoder.WriteUint16(entry.extType, bin.LE)
		if err != nil {
			return err
		}
		err = encoder.WriteUint16(uint16(len(entry.value)), bin.LE)
		if err != nil {
			return err
		}
		err = encoder.WriteBytes(entry.value, false)
		if err != nil {
			return err
		}
	}
	return nil
}

func (mint *Mint) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	var err error

	mint.MintAuthority, err = readCOptionPubkey(decoder)
	if err != nil {
		return err
	}

	mint.Supply, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}

	mint.Decimals, err = decoder.ReadUint8()
	if err != nil {
		return err
	}

	mint.IsInitialized, err = decoder.ReadBool()
	if err != nil {
		return err
	}

	mint.FreezeAuthority, err = readCOptionPubkey(decoder)
	return err
}

func (mint *Mint) MarshalWithEncoder(encoder *bin.Encoder) error {
	err := writeCOptionPubkey(encoder, mint.MintAuthority)
	if err != nil {
		return err
	}

	err = encoder.WriteUint64(mint.Supply, bin.LE)
	if err != nil {
		return err
	}

	err = encoder.WriteUint8(mint.Decimals)
	if err != nil {
		return err
	}

	err = encoder.WriteBool(mint.IsInitialized)
	if err != nil {
		return err
	}

	return writeCOptionPubkey(encoder, mint.FreezeAuthority)
}

func (mint *Mint) Marshal() ([]byte, error) {
	buf := new(bytes.Buffer)
	err := mint.MarshalWithEncoder(bin.NewBinEncoder(buf))
	if err != nil {
		return nil, err
	}
	if mint.TransferHook == nil {
		return buf.Bytes(), nil
	}

	value := make([]byte, 0, transferHookExtensionLen)
	value = append(value, mint.TransferHook.Authority[:]...)
	value = append(value, mint.TransferHook.ProgramId[:]...)
	err = writeExtensions(buf, accountTypeMint, []tlvEntry{{extType: ExtensionTypeTransferHook, value: value}})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalMint decodes a mint, failing with InstrErrInvalidAccountData on
// malformed data and InstrErrUninitializedAccount on an uninitialized mint.
func UnmarshalMint(data []byte) (*Mint, error) {
	if len(data) < MintLen || (len(data) > MintLen && len(data) <= TokenAccountLen) {
		return nil, InstrErrInvalidAccountData
	}

	mint := new(Mint)
	err := mint.UnmarshalWithDecoder(bin.NewBinDecoder(data[:MintLen]))
	if err != nil {
		return nil, InstrErrInvalidAccountData
	}

	if len(data) > MintLen {
		entries, err := readExtensions(data, accountTypeMint)
		if err != nil {
			return nil, InstrErrInvalidAccountData
		}
		for _, entry := range entries {
			if entry.extType != ExtensionTypeTransferHook {
				continue
			}
			if len(entry.value) != transferHookExtensionLen {
				return nil, InstrErrInvalidAccountData
			}
			mint.TransferHook = &TransferHook{
				Authority: solana.PublicKeyFromBytes(entry.value[:32]),
				ProgramId: solana.PublicKeyFromBytes(entry.value[32:]),
			}
		}
	}

	if !mint.IsInitialized {
		return nil, InstrErrUninitializedAccount
	}
	return mint, nil
}

func (acct *TokenAccount) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	mint, err := decoder.ReadBytes(solana.PublicKeyLength)
	if err != nil {
		return err
	}
	acct.Mint = solana.PublicKeyFromBytes(mint)

	owner, err := decoder.ReadBytes(solana.PublicKeyLength)
	if err != nil {
		return err
	}
	acct.Owner = solana.PublicKeyFromBytes(owner)

	acct.Amount, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}

	acct.Delegate, err = readCOptionPubkey(decoder)
	if err != nil {
		return err
	}

	acct.State, err = decoder.ReadUint8()
	if err != nil {
		return err
	}
	if acct.State > TokenAccountStateFrozen {
		return fmt.Errorf("invalid account state %d", acct.State)
	}

	isNativeTag, err := decoder.ReadUint32(bin.LE)
	if err != nil {
		return err
	}
	isNative, err := decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	if isNativeTag == 1 {
		acct.IsNative = &isNative
	} else if isNativeTag != 0 {
		return fmt.Errorf("invalid COption tag %d", isNativeTag)
	}

	acct.DelegatedAmount, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}

	acct.CloseAuthority, err = readCOptionPubkey(decoder)
	return err
}

func (acct *TokenAccount) MarshalWithEncoder(encoder *bin.Encoder) error {
	err := encoder.WriteBytes(acct.Mint[:], false)
	if err != nil {
		return err
	}

	err = encoder.WriteBytes(acct.Owner[:], false)
	if err != nil {
		return err
	}

	err = encoder.WriteUint64(acct.Amount, bin.LE)
	if err != nil {
		return err
	}

	err = writeCOptionPubkey(encoder, acct.Delegate)
	if err != nil {
		return err
	}

	err = encoder.WriteUint8(acct.State)
	if err != nil {
		return err
	}

	var isNativeTag uint32
	var isNative uint64
	if acct.IsNative != nil {
		isNativeTag = 1
		isNative = *acct.IsNative
	}
	err = encoder.WriteUint32(isNativeTag, bin.LE)
	if err != nil {
		return err
	}
	err = encoder.WriteUint64(isNative, bin.LE)
	if err != nil {
		return err
	}

	err = encoder.WriteUint64(acct.DelegatedAmount, bin.LE)
	if err != nil {
		return err
	}

	return writeCOptionPubkey(encoder, acct.CloseAuthority)
}

func (acct *TokenAccount) Marshal() ([]byte, error) {
	buf := new(bytes.Buffer)
	err := acct.MarshalWithEncoder(bin.NewBinEncoder(buf))
	if err != nil {
		return nil, err
	}
	if !acct.TransferHookAccount {
		return buf.Bytes(), nil
	}

	err = writeExtensions(buf, accountTypeAccount, []tlvEntry{{extType: ExtensionTypeTransferHookAccount, value: []byte{0}}})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalTokenAccount decodes a token account. Malformed data fails with
// InstrErrInvalidAccountData, an uninitialized account with
// InstrErrUninitializedAccount.
func UnmarshalTokenAccount(data []byte) (*TokenAccount, error) {
	if len(data) < TokenAccountLen {
		return nil, InstrErrInvalidAccountData
	}

	acct := new(TokenAccount)
	err := acct.UnmarshalWithDecoder(bin.NewBinDecoder(data[:TokenAccountLen]))
	if err != nil {
		return nil, InstrErrInvalidAccountData
	}

	if len(data) > TokenAccountLen {
		entries, err := readExtensions(data, accountTypeAccount)
		if err != nil {
			return nil, InstrErrInvalidAccountData
		}
		for _, entry := range entries {
			if entry.extType == ExtensionTypeTransferHookAccount {
				acct.TransferHookAccount = true
			}
		}
	}

	if acct.State == TokenAccountStateUninitialized {
		return nil, InstrErrUninitializedAccount
	}
	return acct, nil
}

func (acct *TokenAccount) IsFrozen() bool {
	return acct.State == TokenAccountStateFrozen
}
