package royalty

import "errors"

var (
	ErrInvalidAmount                 = errors.New("royalty: invalid amount")
	ErrInsufficientValue             = errors.New("royalty: insufficient attached value")
	ErrUnauthorized                  = errors.New("royalty: unauthorized")
	ErrInsufficientCommissionBalance = errors.New("royalty: insufficient commission balance")
	ErrInsufficientGas               = errors.New("royalty: insufficient gas for distribution")
	ErrNoPendingDistribution         = errors.New("royalty: no pending distribution")
)
