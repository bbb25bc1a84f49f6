package sealevel

import (
	"github.com/gagliardetto/solana-go"
)

type Instruction struct {
	Accounts  []AccountMeta
	Data      []byte
	ProgramId solana.PublicKey
}

type AccountMeta struct {
	Pubkey     solana.PublicKey
	IsSigner   bool
	IsWritable bool
}

type InstructionAccount struct {
	IndexInTransaction uint64
	IndexInCaller      uint64
	IndexInCallee      uint64
	IsSigner           bool
	IsWritable         bool
}

func readonly(pubkey solana.PublicKey) AccountMeta {
	return AccountMeta{Pubkey: pubkey}
}

func writable(pubkey solana.PublicKey) AccountMeta {
	return AccountMeta{Pubkey: pubkey, IsWritable: true}
}

func signer(pubkey solana.PublicKey) AccountMeta {
	return AccountMeta{Pubkey: pubkey, IsSigner: true}
}

func writableSigner(pubkey solana.PublicKey) AccountMeta {
	return AccountMeta{Pubkey: pubkey, IsSigner: true, IsWritable: true}
}
