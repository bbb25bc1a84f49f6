package sealevel

// SysvarCache holds the sysvars visible to native programs for the duration
// of one transaction.
type SysvarCache struct {
	clock *SysvarClock
	rent  *SysvarRent
}

func (sysvarCache *SysvarCache) SetClock(clock SysvarClock) {
	sysvarCache.clock = &clock
}

func (sysvarCache *SysvarCache) SetRent(rent SysvarRent) {
	sysvarCache.rent = &rent
}

func (sysvarCache *SysvarCache) GetClock() (*SysvarClock, error) {
	if sysvarCache.clock == nil {
		return nil, InstrErrUnsupportedSysvar
	}
	return sysvarCache.clock, nil
}

func (sysvarCache *SysvarCache) GetRent() (*SysvarRent, error) {
	if sysvarCache.rent == nil {
		return nil, InstrErrUnsupportedSysvar
	}
	return sysvarCache.rent, nil
}
