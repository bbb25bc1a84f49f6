package sealevel

import "errors"

// instruction errors
var (
	InstrErrInvalidArgument             = errors.New("InstrErrInvalidArgument")
	InstrErrInvalidInstructionData      = errors.New("InstrErrInvalidInstructionData")
	InstrErrInvalidAccountData          = errors.New("InstrErrInvalidAccountData")
	InstrErrAccountDataTooSmall         = errors.New("InstrErrAccountDataTooSmall")
	InstrErrInsufficientFunds           = errors.New("InstrErrInsufficientFunds")
	InstrErrIncorrectProgramId          = errors.New("InstrErrIncorrectProgramId")
	InstrErrMissingRequiredSignature    = errors.New("InstrErrMissingRequiredSignature")
	InstrErrAccountAlreadyInitialized   = errors.New("InstrErrAccountAlreadyInitialized")
	InstrErrUninitializedAccount        = errors.New("InstrErrUninitializedAccount")
	InstrErrUnbalancedInstruction       = errors.New("InstrErrUnbalancedInstruction")
	InstrErrModifiedProgramId           = errors.New("InstrErrModifiedProgramId")
	InstrErrExternalAccountLamportSpend = errors.New("InstrErrExternalAccountLamportSpend")
	InstrErrExternalAccountDataModified = errors.New("InstrErrExternalAccountDataModified")
	InstrErrReadonlyLamportChange       = errors.New("InstrErrReadonlyLamportChange")
	InstrErrReadonlyDataModified        = errors.New("InstrErrReadonlyDataModified")
	InstrErrNotEnoughAccountKeys        = errors.New("InstrErrNotEnoughAccountKeys")
	InstrErrAccountDataSizeChanged      = errors.New("InstrErrAccountDataSizeChanged")
	InstrErrAccountNotExecutable        = errors.New("InstrErrAccountNotExecutable")
	InstrErrAccountBorrowFailed         = errors.New("InstrErrAccountBorrowFailed")
	InstrErrAccountBorrowOutstanding    = errors.New("InstrErrAccountBorrowOutstanding")
	InstrErrExecutableDataModified      = errors.New("InstrErrExecutableDataModified")
	InstrErrExecutableLamportChange     = errors.New("InstrErrExecutableLamportChange")
	InstrErrUnsupportedProgramId        = errors.New("InstrErrUnsupportedProgramId")
	InstrErrCallDepth                   = errors.New("InstrErrCallDepth")
	InstrErrMissingAccount              = errors.New("InstrErrMissingAccount")
	InstrErrReentrancyNotAllowed        = errors.New("InstrErrReentrancyNotAllowed")
	InstrErrMaxSeedLengthExceeded       = errors.New("InstrErrMaxSeedLengthExceeded")
	InstrErrInvalidSeeds                = errors.New("InstrErrInvalidSeeds")
	InstrErrInvalidRealloc              = errors.New("InstrErrInvalidRealloc")
	InstrErrComputationalBudgetExceeded = errors.New("InstrErrComputationalBudgetExceeded")
	InstrErrPrivilegeEscalation         = errors.New("InstrErrPrivilegeEscalation")
	InstrErrInvalidAccountOwner         = errors.New("InstrErrInvalidAccountOwner")
	InstrErrArithmeticOverflow          = errors.New("InstrErrArithmeticOverflow")
	InstrErrUnsupportedSysvar           = errors.New("InstrErrUnsupportedSysvar")
	InstrErrIllegalOwner                = errors.New("InstrErrIllegalOwner")

	InstrErrMaxInstructionTraceLengthExceeded = errors.New("InstrErrMaxInstructionTraceLengthExceeded")
)

// instruction errors - Solana numerical error codes
const (
	InstrErrCodeSuccess                     = 0
	InstrErrCodeInvalidArgument             = 2
	InstrErrCodeInvalidInstructionData      = 3
	InstrErrCodeInvalidAccountData          = 4
	InstrErrCodeAccountDataTooSmall         = 5
	InstrErrCodeInsufficientFunds           = 6
	InstrErrCodeIncorrectProgramId          = 7
	InstrErrCodeMissingRequiredSignature    = 8
	InstrErrCodeAccountAlreadyInitialized   = 9
	InstrErrCodeUninitializedAccount        = 10
	InstrErrCodeUnbalancedInstruction       = 11
	InstrErrCodeModifiedProgramId           = 12
	InstrErrCodeExternalAccountLamportSpend = 13
	InstrErrCodeExternalAccountDataModified = 14
	InstrErrCodeReadonlyLamportChange       = 15
	InstrErrCodeReadonlyDataModified        = 16
	InstrErrCodeNotEnoughAccountKeys        = 20
	InstrErrCodeAccountDataSizeChanged      = 21
	InstrErrCodeAccountNotExecutable        = 22
	InstrErrCodeAccountBorrowFailed         = 23
	InstrErrCodeAccountBorrowOutstanding    = 24
	InstrErrCodeCustom                      = 26
	InstrErrCodeExecutableDataModified      = 28
	InstrErrCodeExecutableLamportChange     = 29
	InstrErrCodeUnsupportedProgramId        = 31
	InstrErrCodeCallDepth                   = 32
	InstrErrCodeMissingAccount              = 33
	InstrErrCodeReentrancyNotAllowed        = 34
	InstrErrCodeMaxSeedLengthExceeded       = 35
	InstrErrCodeInvalidSeeds                = 36
	InstrErrCodeInvalidRealloc              = 37
	InstrErrCodeComputationalBudgetExceeded = 38
	InstrErrCodePrivilegeEscalation         = 39
	InstrErrCodeInvalidAccountOwner         = 47
	InstrErrCodeArithmeticOverflow          = 48
	InstrErrCodeUnsupportedSysvar           = 49
	InstrErrCodeIllegalOwner                = 50

	InstrErrCodeMaxInstructionTraceLengthExceeded = 52
)

var instrErrCodes = map[error]int{
	InstrErrInvalidArgument:             InstrErrCodeInvalidArgument,
	InstrErrInvalidInstructionData:      InstrErrCodeInvalidInstructionData,
	InstrErrInvalidAccountData:          InstrErrCodeInvalidAccountData,
	InstrErrAccountDataTooSmall:         InstrErrCodeAccountDataTooSmall,
	InstrErrInsufficientFunds:           InstrErrCodeInsufficientFunds,
	InstrErrIncorrectProgramId:          InstrErrCodeIncorrectProgramId,
	InstrErrMissingRequiredSignature:    InstrErrCodeMissingRequiredSignature,
	InstrErrAccountAlreadyInitialized:   InstrErrCodeAccountAlreadyInitialized,
	InstrErrUninitializedAccount:        InstrErrCodeUninitializedAccount,
	InstrErrUnbalancedInstruction:       InstrErrCodeUnbalancedInstruction,
	InstrErrModifiedProgramId:           InstrErrCodeModifiedProgramId,
	InstrErrExternalAccountLamportSpend: InstrErrCodeExternalAccountLamportSpend,
	InstrErrExternalAccountDataModified: InstrErrCodeExternalAccountDataModified,
	InstrErrReadonlyLamportChange:       InstrErrCodeReadonlyLamportChange,
	InstrErrReadonlyDataModified:        InstrErrCodeReadonlyDataModified,
	InstrErrNotEnoughAccountKeys:        InstrErrCodeNotEnoughAccountKeys,
	InstrErrAccountDataSizeChanged:      InstrErrCodeAccountDataSizeChanged,
	InstrErrAccountNotExecutable:        InstrErrCodeAccountNotExecutable,
	InstrErrAccountBorrowFailed:         InstrErrCodeAccountBorrowFailed,
	InstrErrAccountBorrowOutstanding:    InstrErrCodeAccountBorrowOutstanding,
	InstrErrExecutableDataModified:      InstrErrCodeExecutableDataModified,
	InstrErrExecutableLamportChange:     InstrErrCodeExecutableLamportChange,
	InstrErrUnsupportedProgramId:        InstrErrCodeUnsupportedProgramId,
	InstrErrCallDepth:                   InstrErrCodeCallDepth,
	InstrErrMissingAccount:              InstrErrCodeMissingAccount,
	InstrErrReentrancyNotAllowed:        InstrErrCodeReentrancyNotAllowed,
	InstrErrMaxSeedLengthExceeded:       InstrErrCodeMaxSeedLengthExceeded,
	InstrErrInvalidSeeds:                InstrErrCodeInvalidSeeds,
	InstrErrInvalidRealloc:              InstrErrCodeInvalidRealloc,
	InstrErrComputationalBudgetExceeded: InstrErrCodeComputationalBudgetExceeded,
	InstrErrPrivilegeEscalation:         InstrErrCodePrivilegeEscalation,
	InstrErrInvalidAccountOwner:         InstrErrCodeInvalidAccountOwner,
	InstrErrArithmeticOverflow:          InstrErrCodeArithmeticOverflow,
	InstrErrUnsupportedSysvar:           InstrErrCodeUnsupportedSysvar,
	InstrErrIllegalOwner:                InstrErrCodeIllegalOwner,

	InstrErrMaxInstructionTraceLengthExceeded: InstrErrCodeMaxInstructionTraceLengthExceeded,
}

// program-specific errors surfaced as InstructionError::Custom(n)
var customErrCodes = map[error]uint32{}

func registerCustomErrs(codes map[error]uint32) {
	for err, code := range codes {
		customErrCodes[err] = code
	}
}

// CustomErrCode returns the Custom(n) payload carried by a program-specific
// error, looking through any wrapping.
func CustomErrCode(err error) (uint32, bool) {
	for custom, code := range customErrCodes {
		if errors.Is(err, custom) {
			return code, true
		}
	}
	return 0, false
}

// TranslateErrToInstrErrCode maps an execution error onto the numeric
// instruction error code. Unknown errors map to 0.
func TranslateErrToInstrErrCode(err error) int {
	if err == nil {
		return InstrErrCodeSuccess
	}
	if _, ok := CustomErrCode(err); ok {
		return InstrErrCodeCustom
	}
	for instrErr, code := range instrErrCodes {
		if errors.Is(err, instrErr) {
			return code
		}
	}
	return 0
}
