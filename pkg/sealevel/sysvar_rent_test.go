package sealevel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSysvarRent_MinimumBalance(t *testing.T) {
	assert.Equal(t, uint64(890_880), DefaultRent().MinimumBalance(0))
	assert.Equal(t, uint64(1_461_600), DefaultRent().MinimumBalance(MintLen))
	assert.Equal(t, uint64(2_039_280), DefaultRent().MinimumBalance(TokenAccountLen))
}

func TestSysvarRent_IsExempt(t *testing.T) {
	rent := DefaultRent()
	assert.True(t, DefaultRent().IsExempt(2_039_280, TokenAccountLen))
	assert.False(t, rent.IsExempt(2_039_279, TokenAccountLen))
	assert.True(t, (&rent).IsExempt(890_880, 0))
}
