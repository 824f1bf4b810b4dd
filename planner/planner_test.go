package planner

import (
	"errors"
	"math/big"
	"testing"
)

func addr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

func TestPlanSixtyForty(t *testing.T) {
	plan, err := Plan(big.NewInt(950_000_000), []Share{
		{Recipient: addr(0xA1), Bps: 6000},
		{Recipient: addr(0xB2), Bps: 4000},
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan[0].Amount.Cmp(big.NewInt(570_000_000)) != 0 {
		t.Fatalf("expected 570000000 for the 60%% share, got %s", plan[0].Amount)
	}
	if plan[1].Amount.Cmp(big.NewInt(380_000_000)) != 0 {
		t.Fatalf("expected 380000000 for the 40%% share, got %s", plan[1].Amount)
	}
}

func TestPlanSumsExactly(t *testing.T) {
	// 3333/3333/3334 over a prime-ish amount forces rounding dust.
	pending := big.NewInt(1_000_000_007)
	plan, err := Plan(pending, []Share{
		{Recipient: addr(0x01), Bps: 3333},
		{Recipient: addr(0x02), Bps: 3333},
		{Recipient: addr(0x03), Bps: 3334},
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	total := big.NewInt(0)
	for _, entry := range plan {
		total.Add(total, entry.Amount)
	}
	if total.Cmp(pending) != 0 {
		t.Fatalf("plan must sum to the pending balance exactly, got %s of %s", total, pending)
	}
	// The dust lands on the largest share.
	if plan[2].Amount.Cmp(plan[0].Amount) <= 0 {
		t.Fatalf("largest share must absorb the rounding remainder")
	}
}

func TestPlanRejections(t *testing.T) {
	if _, err := Plan(big.NewInt(100), nil); !errors.Is(err, ErrNoShares) {
		t.Fatalf("expected ErrNoShares, got %v", err)
	}
	if _, err := Plan(big.NewInt(0), []Share{{Recipient: addr(0x01), Bps: 10000}}); !errors.Is(err, ErrNothingToPlan) {
		t.Fatalf("expected ErrNothingToPlan, got %v", err)
	}
	if _, err := Plan(big.NewInt(100), []Share{{Recipient: addr(0x01), Bps: 9999}}); !errors.Is(err, ErrBadShareSum) {
		t.Fatalf("expected ErrBadShareSum, got %v", err)
	}
	if _, err := Plan(big.NewInt(100), []Share{
		{Recipient: addr(0x01), Bps: 5000},
		{Recipient: addr(0x01), Bps: 5000},
	}); !errors.Is(err, ErrDuplicateShare) {
		t.Fatalf("expected ErrDuplicateShare, got %v", err)
	}
}
