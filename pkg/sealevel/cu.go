package sealevel

const (
	CUInvokeUnits                          = 1000
	CUCreateProgramAddressUnits            = 1500
	CUSystemProgramDefaultComputeUnits     = 150
	CUTokenProgramDefaultComputeUnits      = 1200
	CUTransferPermitDefaultComputeUnits    = 600
	CUEscrowProgramDefaultComputeUnits     = 2000
	CUFundraiserProgramDefaultComputeUnits = 2000
)
