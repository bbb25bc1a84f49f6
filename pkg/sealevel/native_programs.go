package sealevel

import (
	"github.com/gagliardetto/solana-go"
	"go.firedancer.io/settle/pkg/accounts"
	"go.firedancer.io/settle/pkg/base58"
)

const NativeLoaderAddrStr = "NativeLoader1111111111111111111111111111111"

var NativeLoaderAddr = solana.PublicKey(base58.MustDecodeFromString(NativeLoaderAddrStr))

const SystemProgramAddrStr = "11111111111111111111111111111111"

var SystemProgramAddr = solana.PublicKey(base58.MustDecodeFromString(SystemProgramAddrStr))

const TokenProgramAddrStr = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

var TokenProgramAddr = solana.PublicKey(base58.MustDecodeFromString(TokenProgramAddrStr))

const TransferPermitProgramAddrStr = "3ZktYLqFLBuLdzsnH66siTLjZctKzj1aZHvG9KWyaF1x"

var TransferPermitProgramAddr = solana.PublicKey(base58.MustDecodeFromString(TransferPermitProgramAddrStr))

const EscrowProgramAddrStr = "RURxJrgqHSoJgqFbHyntxm1VSZxZugEveRewzvjVm5V"

var EscrowProgramAddr = solana.PublicKey(base58.MustDecodeFromString(EscrowProgramAddrStr))

const FundraiserProgramAddrStr = "EiJfMHkdFRYVts5Kvxg6ooBaZ1TV6qEiY41xjZuSFLSw"

var FundraiserProgramAddr = solana.PublicKey(base58.MustDecodeFromString(FundraiserProgramAddrStr))

type nativeProgram struct {
	name    string
	cost    uint64
	execute func(execCtx *ExecutionCtx) error
}

func resolveNativeProgramById(programId solana.PublicKey) (nativeProgram, error) {
	switch programId {
	case SystemProgramAddr:
		return nativeProgram{name: "system", cost: CUSystemProgramDefaultComputeUnits, execute: SystemProgramExecute}, nil
	case TokenProgramAddr:
		return nativeProgram{name: "token", cost: CUTokenProgramDefaultComputeUnits, execute: TokenProgramExecute}, nil
	case TransferPermitProgramAddr:
		return nativeProgram{name: "transfer_permit", cost: CUTransferPermitDefaultComputeUnits, execute: TransferPermitProgramExecute}, nil
	case EscrowProgramAddr:
		return nativeProgram{name: "escrow", cost: CUEscrowProgramDefaultComputeUnits, execute: EscrowProgramExecute}, nil
	case FundraiserProgramAddr:
		return nativeProgram{name: "fundraiser", cost: CUFundraiserProgramDefaultComputeUnits, execute: FundraiserProgramExecute}, nil
	}

	return nativeProgram{}, InstrErrUnsupportedProgramId
}

// NativeProgramAccount returns the executable account a builtin program is
// loaded from.
func NativeProgramAccount(programId solana.PublicKey) accounts.Account {
	return accounts.Account{Key: programId, Lamports: 1, Owner: NativeLoaderAddr, Executable: true}
}

// IsNativeProgram reports whether programId names a builtin.
func IsNativeProgram(programId solana.PublicKey) bool {
	_, err := resolveNativeProgramById(programId)
	return err == nil
}

func verifySigner(authorized solana.PublicKey, signers []solana.PublicKey) error {
	for _, signer := range signers {
		if signer == authorized {
			return nil
		}
	}
	return InstrErrMissingRequiredSignature
}
