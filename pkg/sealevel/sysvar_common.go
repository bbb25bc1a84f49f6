package sealevel

import (
	"go.firedancer.io/settle/pkg/base58"
)

const SysvarOwnerStr = "Sysvar1111111111111111111111111111111111111"

var SysvarOwnerAddr = base58.MustDecodeFromString(SysvarOwnerStr)
