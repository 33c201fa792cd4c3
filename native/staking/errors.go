package staking

import "errors"

var (
	ErrNothingToStake    = errors.New("staking: nothing to stake")
	ErrTransferFailed    = errors.New("staking: transfer failed")
	ErrNothingStaked     = errors.New("staking: nothing staked")
	ErrNothingToDeposit  = errors.New("staking: nothing to deposit")
	ErrStakeLocked       = errors.New("staking: stake is locked")
	ErrNothingToPayOut   = errors.New("staking: nothing to pay out")
	ErrPoolDisabled      = errors.New("staking: pool is disabled")
	ErrNothingToTransfer = errors.New("staking: nothing to transfer")
	ErrNotOwner          = errors.New("staking: caller is not the owner")

	errNilBank = errors.New("staking engine: bank not configured")
)
