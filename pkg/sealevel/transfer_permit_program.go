package sealevel

import (
	"bytes"
	"errors"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/minio/sha256-simd"
	"k8s.io/klog/v2"
)

// discriminators of the spl-transfer-hook interface
var (
	TransferHookExecuteDiscriminator                        = [8]byte{105, 37, 101, 197, 75, 251, 102, 26}
	TransferHookInitializeExtraAccountMetaListDiscriminator = [8]byte{43, 34, 13, 49, 167, 88, 235, 235}
)

var TransferPermitSetPermitDiscriminator = globalDiscriminator("set_permit")

const (
	PermitConfigLen = 33
	PermitLen       = 2
)

var PermitErrTransferRestricted = errors.New("PermitErrTransferRestricted")

func init() {
	registerCustomErrs(map[error]uint32{
		PermitErrTransferRestricted: 6000,
	})
}

func globalDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("global:" + name))
	var disc [8]byte
	copy(disc[:], sum[:8])
	return disc
}

// PermitConfig lives at ("extra-account-metas", mint) and names the account
// allowed to set permits for the mint.
type PermitConfig struct {
	Admin solana.PublicKey
	Bump  uint8
}

type Permit struct {
	IsRestricted bool
	Bump         uint8
}

func (cfg *PermitConfig) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	admin, err := decoder.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return err
	}
	cfg.Admin = solana.PublicKeyFromBytes(admin)
	cfg.Bump, err = decoder.ReadUint8()
	return err
}

func (cfg *PermitConfig) MarshalWithEncoder(encoder *bin.Encoder) error {
	err := encoder.WriteBytes(cfg.Admin[:], false)
	if err != nil {
		return err
	}
	return encoder.WriteUint8(cfg.Bump)
}

func (permit *Permit) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	var err error
	permit.IsRestricted, err = decoder.ReadBool()
	if err != nil {
		return err
	}
	permit.Bump, err = decoder.ReadUint8()
	return err
}

func (permit *Permit) MarshalWithEncoder(encoder *bin.Encoder) error {
	err := encoder.WriteBool(permit.IsRestricted)
	if err != nil {
		return err
	}
	return encoder.WriteUint8(permit.Bump)
}

func UnmarshalPermitConfig(data []byte) (*PermitConfig, error) {
	if len(data) != PermitConfigLen {
		return nil, InstrErrInvalidAccountData
	}
	cfg := new(PermitConfig)
	if err := cfg.UnmarshalWithDecoder(bin.NewBinDecoder(data)); err != nil {
		return nil, InstrErrInvalidAccountData
	}
	return cfg, nil
}

func UnmarshalPermit(data []byte) (*Permit, error) {
	if len(data) != PermitLen {
		return nil, InstrErrInvalidAccountData
	}
	permit := new(Permit)
	if err := permit.UnmarshalWithDecoder(bin.NewBinDecoder(data)); err != nil {
		return nil, InstrErrInvalidAccountData
	}
	return permit, nil
}

type TransferPermitInstrSetPermit struct {
	User         solana.PublicKey
	IsRestricted bool
}

func (instr *TransferPermitInstrSetPermit) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	user, err := decoder.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return err
	}
	instr.User = solana.PublicKeyFromBytes(user)
	instr.IsRestricted, err = decoder.ReadBool()
	return err
}

func (instr *TransferPermitInstrSetPermit) MarshalWithEncoder(encoder *bin.Encoder) error {
	err := encoder.WriteBytes(TransferPermitSetPermitDiscriminator[:], false)
	if err != nil {
		return err
	}
	err = encoder.WriteBytes(instr.User[:], false)
	if err != nil {
		return err
	}
	return encoder.WriteBool(instr.IsRestricted)
}

func NewInitializeExtraAccountMetaListInstruction(payer, mint solana.PublicKey) Instruction {
	extraMetas, _, _ := FindExtraAccountMetasAddress(mint)
	return Instruction{
		Accounts: []AccountMeta{
			writableSigner(payer), writable(extraMetas), readonly(mint), readonly(SystemProgramAddr),
		},
		Data:      append([]byte(nil), TransferHookInitializeExtraAccountMetaListDiscriminator[:]...),
		ProgramId: TransferPermitProgramAddr,
	}
}

func NewSetPermitInstruction(admin, mint, user solana.PublicKey, restricted bool) Instruction {
	extraMetas, _, _ := FindExtraAccountMetasAddress(mint)
	permit, _, _ := FindPermitAddress(mint, user)
	setPermit := TransferPermitInstrSetPermit{User: user, IsRestricted: restricted}
	return Instruction{
		Accounts: []AccountMeta{
			writableSigner(admin), readonly(extraMetas), readonly(mint), writable(permit), readonly(SystemProgramAddr),
		},
		Data:      mustMarshal(&setPermit),
		ProgramId: TransferPermitProgramAddr,
	}
}

// NewTransferHookExecuteInstruction builds the call the token program makes
// into a mint's hook after moving the balance.
func NewTransferHookExecuteInstruction(hookProgramId solana.PublicKey, metas []AccountMeta, amount uint64) Instruction {
	buf := new(bytes.Buffer)
	encoder := bin.NewBinEncoder(buf)
	err := encoder.WriteBytes(TransferHookExecuteDiscriminator[:], false)
	if err == nil {
		err = encoder.WriteUint64(amount, bin.LE)
	}
	if err != nil {
		panic("shouldn't fail")
	}
	return Instruction{Accounts: metas, Data: buf.Bytes(), ProgramId: hookProgramId}
}

// TransferHookAccounts returns the accounts a TransferChecked on a mint hooked
// to the permit program must carry after the authority, in order: hook
// program, extra-account-metas, source permit, destination permit.
func TransferHookAccounts(mint, sourceOwner, destinationOwner solana.PublicKey) []AccountMeta {
	extraMetas, _, _ := FindExtraAccountMetasAddress(mint)
	sourcePermit, _, _ := FindPermitAddress(mint, sourceOwner)
	destinationPermit, _, _ := FindPermitAddress(mint, destinationOwner)
	return []AccountMeta{
		readonly(TransferPermitProgramAddr),
		readonly(extraMetas),
		readonly(sourcePermit),
		readonly(destinationPermit),
	}
}

func TransferPermitProgramExecute(execCtx *ExecutionCtx) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	decoder := bin.NewBinDecoder(instrCtx.Data)
	discBytes, err := decoder.ReadNBytes(8)
	if err != nil {
		return InstrErrInvalidInstructionData
	}
	var disc [8]byte
	copy(disc[:], discBytes)

	switch disc {
	case TransferHookInitializeExtraAccountMetaListDiscriminator:
		err = instrCtx.CheckNumOfInstructionAccounts(4)
		if err != nil {
			return err
		}
		return TransferPermitInitializeExtraAccountMetaList(execCtx)

	case TransferPermitSetPermitDiscriminator:
		var setPermit TransferPermitInstrSetPermit
		if err = setPermit.UnmarshalWithDecoder(decoder); err != nil {
			return InstrErrInvalidInstructionData
		}
		err = instrCtx.CheckNumOfInstructionAccounts(5)
		if err != nil {
			return err
		}
		return TransferPermitSetPermit(execCtx, setPermit)

	case TransferHookExecuteDiscriminator:
		amount, err := decoder.ReadUint64(bin.LE)
		if err != nil {
			return InstrErrInvalidInstructionData
		}
		err = instrCtx.CheckNumOfInstructionAccounts(7)
		if err != nil {
			return err
		}
		return TransferPermitExecute(execCtx, amount)
	}

	return InstrErrInvalidInstructionData
}

// readPermitConfig loads the config at instrAcctIdx, failing when it is not
// the derived config account of mint.
func readPermitConfig(txCtx *TransactionCtx, instrCtx *InstructionCtx, instrAcctIdx uint64, mint solana.PublicKey) (*PermitConfig, error) {
	acct, err := instrCtx.BorrowInstructionAccount(txCtx, instrAcctIdx)
	if err != nil {
		return nil, err
	}
	defer acct.Drop()

	if acct.Owner() != TransferPermitProgramAddr {
		return nil, InstrErrUninitializedAccount
	}
	cfg, err := UnmarshalPermitConfig(acct.Data())
	if err != nil {
		return nil, err
	}
	err = verifyDerivedAuthority(acct.Key(), ExtraAccountMetasSeeds(mint), cfg.Bump, TransferPermitProgramAddr)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func TransferPermitInitializeExtraAccountMetaList(execCtx *ExecutionCtx) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	payer, err := requireSigner(txCtx, instrCtx, 0)
	if err != nil {
		return err
	}
	mint, mintKey, err := loadMint(txCtx, instrCtx, 2)
	if err != nil {
		return err
	}
	if mint.TransferHook == nil || mint.TransferHook.ProgramId != TransferPermitProgramAddr {
		klog.Errorf("InitializeExtraAccountMetaList: mint %s is not hooked to this program", mintKey)
		return InstrErrInvalidAccountData
	}
	if mint.TransferHook.Authority != payer {
		return InstrErrIllegalOwner
	}

	extraMetasKey, err := extractAddress(txCtx, instrCtx, 1)
	if err != nil {
		return err
	}
	expected, bump, err := FindExtraAccountMetasAddress(mintKey)
	if err != nil {
		return InstrErrInvalidSeeds
	}
	if expected != extraMetasKey {
		return InstrErrInvalidAccountData
	}
	if err = requireUninitialized(txCtx, instrCtx, 1); err != nil {
		return err
	}

	err = createProgramAccount(execCtx, payer, extraMetasKey, PermitConfigLen, withBump(ExtraAccountMetasSeeds(mintKey), bump))
	if err != nil {
		return err
	}

	cfg := PermitConfig{Admin: payer, Bump: bump}
	err = writeProgramState(execCtx, instrCtx, 1, &cfg)
	if err != nil {
		return err
	}
	execCtx.logf("Program log: permit admin for %s set to %s", mintKey, payer)
	return nil
}

func TransferPermitSetPermit(execCtx *ExecutionCtx, setPermit TransferPermitInstrSetPermit) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	admin, err := requireSigner(txCtx, instrCtx, 0)
	if err != nil {
		return err
	}
	mintKey, err := extractAddress(txCtx, instrCtx, 2)
	if err != nil {
		return err
	}
	cfg, err := readPermitConfig(txCtx, instrCtx, 1, mintKey)
	if err != nil {
		return err
	}
	if cfg.Admin != admin {
		klog.Errorf("SetPermit: %s is not the permit admin of %s", admin, mintKey)
		return InstrErrIllegalOwner
	}

	permitKey, err := extractAddress(txCtx, instrCtx, 3)
	if err != nil {
		return err
	}
	expected, bump, err := FindPermitAddress(mintKey, setPermit.User)
	if err != nil {
		return InstrErrInvalidSeeds
	}
	if expected != permitKey {
		return InstrErrInvalidAccountData
	}

	owner, err := accountOwner(txCtx, instrCtx, 3)
	if err != nil {
		return err
	}
	if owner != TransferPermitProgramAddr {
		err = createProgramAccount(execCtx, admin, permitKey, PermitLen, withBump(PermitSeeds(mintKey, setPermit.User), bump))
		if err != nil {
			return err
		}
	}

	permit := Permit{IsRestricted: setPermit.IsRestricted, Bump: bump}
	err = writeProgramState(execCtx, instrCtx, 3, &permit)
	if err != nil {
		return err
	}
	execCtx.logf("Program log: permit %s for %s restricted=%t", setPermit.User, mintKey, setPermit.IsRestricted)
	return nil
}

// isRestricted reports whether the permit account at instrAcctIdx restricts
// owner. An account that was never written is unrestricted.
func isRestricted(txCtx *TransactionCtx, instrCtx *InstructionCtx, instrAcctIdx uint64, mint, owner solana.PublicKey) (bool, error) {
	acct, err := instrCtx.BorrowInstructionAccount(txCtx, instrAcctIdx)
	if err != nil {
		return false, err
	}
	defer acct.Drop()

	if acct.Owner() != TransferPermitProgramAddr {
		expected, _, err := FindPermitAddress(mint, owner)
		if err != nil || expected != acct.Key() {
			return false, InstrErrInvalidAccountData
		}
		return false, nil
	}

	permit, err := UnmarshalPermit(acct.Data())
	if err != nil {
		return false, err
	}
	err = verifyDerivedAuthority(acct.Key(), PermitSeeds(mint, owner), permit.Bump, TransferPermitProgramAddr)
	if err != nil {
		return false, err
	}
	return permit.IsRestricted, nil
}

func TransferPermitExecute(execCtx *ExecutionCtx, amount uint64) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	source, _, err := readTokenAccount(txCtx, instrCtx, 0)
	if err != nil {
		return err
	}
	mintKey, err := extractAddress(txCtx, instrCtx, 1)
	if err != nil {
		return err
	}
	destination, _, err := readTokenAccount(txCtx, instrCtx, 2)
	if err != nil {
		return err
	}
	if source.Mint != mintKey || destination.Mint != mintKey {
		return InstrErrInvalidAccountData
	}

	_, err = readPermitConfig(txCtx, instrCtx, 4, mintKey)
	if err != nil {
		return err
	}

	for _, party := range []struct {
		idx   uint64
		owner solana.PublicKey
	}{{5, source.Owner}, {6, destination.Owner}} {
		restricted, err := isRestricted(txCtx, instrCtx, party.idx, mintKey, party.owner)
		if err != nil {
			return err
		}
		if restricted {
			klog.V(2).Infof("Execute: transfer of %d %s vetoed, %s is restricted", amount, mintKey, party.owner)
			execCtx.logf("Program log: %s is restricted for %s", party.owner, mintKey)
			return PermitErrTransferRestricted
		}
	}
	return nil
}
