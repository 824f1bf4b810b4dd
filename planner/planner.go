// Package planner converts a collection's percentage split into the exact
// per-recipient amounts a distribution request carries. The vault performs no
// percentage validation of its own; this is the separately run planning step
// whose output it trusts.
package planner

import (
	"errors"
	"fmt"
	"math/big"

	"royaltysplit/native/royalty"
)

var (
	ErrNoShares       = errors.New("planner: no shares")
	ErrBadShareSum    = errors.New("planner: shares must sum to exactly 10000 bps")
	ErrDuplicateShare = errors.New("planner: duplicate recipient")
	ErrNothingToPlan  = errors.New("planner: nothing to distribute")
)

// Share declares a recipient's cut of a collection's income in basis points.
type Share struct {
	Recipient [20]byte
	Bps       uint32
}

// Plan splits the pending amount across the shares. Every amount is the floor
// of the recipient's proportional cut; the rounding remainder goes to the
// largest share (ties broken by declaration order) so the amounts always sum
// to the pending balance exactly.
func Plan(pending *big.Int, shares []Share) ([]royalty.RecipientShare, error) {
	if len(shares) == 0 {
		return nil, ErrNoShares
	}
	if pending == nil || pending.Sign() <= 0 {
		return nil, ErrNothingToPlan
	}

	seen := make(map[[20]byte]struct{}, len(shares))
	var sum uint64
	largest := 0
	for i, share := range shares {
		if share.Bps == 0 {
			return nil, fmt.Errorf("%w: share %d has zero bps", ErrBadShareSum, i)
		}
		if _, ok := seen[share.Recipient]; ok {
			return nil, ErrDuplicateShare
		}
		seen[share.Recipient] = struct{}{}
		sum += uint64(share.Bps)
		if share.Bps > shares[largest].Bps {
			largest = i
		}
	}
	if sum != royalty.BasisPointsDenominator {
		return nil, fmt.Errorf("%w: got %d", ErrBadShareSum, sum)
	}

	plan := make([]royalty.RecipientShare, len(shares))
	assigned := big.NewInt(0)
	for i, share := range shares {
		amount := new(big.Int).Mul(pending, big.NewInt(int64(share.Bps)))
		amount.Div(amount, big.NewInt(royalty.BasisPointsDenominator))
		plan[i] = royalty.RecipientShare{Recipient: share.Recipient, Amount: amount}
		assigned.Add(assigned, amount)
	}
	if dust := new(big.Int).Sub(pending, assigned); dust.Sign() > 0 {
		plan[largest].Amount.Add(plan[largest].Amount, dust)
	}
	return plan, nil
}
