package state

import (
	"errors"
	"math/big"
	"testing"

	"github.com/holiman/uint256"

	"royaltysplit/native/royalty"
	"royaltysplit/storage"
)

func testAddress(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func TestVaultGetBeforeBootstrap(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	if _, err := store.VaultGet(); !errors.Is(err, ErrNotBootstrapped) {
		t.Fatalf("expected ErrNotBootstrapped, got %v", err)
	}
}

func TestBootstrapAndRoundTrip(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	owner := testAddress(0x01)
	hash := *uint256.NewInt(0xC0FFEE)

	if err := store.Bootstrap(owner, 500, hash); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := store.Bootstrap(owner, 500, hash); err == nil {
		t.Fatalf("bootstrap must refuse to overwrite an existing ledger")
	}

	loaded, err := store.VaultGet()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	loaded.AccumulatedCommission = big.NewInt(115_000_000)
	loaded.Seqno = 3
	loaded.Pending[testAddress(0xAA)] = big.NewInt(2_185_000_000)
	loaded.Pending[testAddress(0xBB)] = big.NewInt(1)
	if err := store.VaultPut(loaded); err != nil {
		t.Fatalf("put: %v", err)
	}

	restored, err := store.VaultGet()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if restored.Owner != owner {
		t.Fatalf("owner not preserved")
	}
	if restored.ConfigHash != hash {
		t.Fatalf("config hash not preserved: %s", restored.ConfigHash.Hex())
	}
	if restored.CommissionRateBps != 500 {
		t.Fatalf("rate not preserved: %d", restored.CommissionRateBps)
	}
	if restored.AccumulatedCommission.Cmp(big.NewInt(115_000_000)) != 0 {
		t.Fatalf("commission not preserved: %s", restored.AccumulatedCommission)
	}
	if restored.Seqno != 3 {
		t.Fatalf("seqno not preserved: %d", restored.Seqno)
	}
	if len(restored.Pending) != 2 {
		t.Fatalf("expected 2 pending entries, got %d", len(restored.Pending))
	}
	if got := restored.PendingAmount(testAddress(0xAA)); got.Cmp(big.NewInt(2_185_000_000)) != 0 {
		t.Fatalf("pending amount not preserved: %s", got)
	}
}

func TestBootstrapRejectsRateAboveDenominator(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	if err := store.Bootstrap(testAddress(0x01), royalty.BasisPointsDenominator+1, *uint256.NewInt(1)); err == nil {
		t.Fatalf("expected rate validation error")
	}
}

func TestSnapshotDropsZeroPendingEntries(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	owner := testAddress(0x01)
	if err := store.Bootstrap(owner, 500, *uint256.NewInt(1)); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	loaded, err := store.VaultGet()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	loaded.Pending[testAddress(0xAA)] = big.NewInt(0)
	if err := store.VaultPut(loaded); err != nil {
		t.Fatalf("put: %v", err)
	}
	restored, err := store.VaultGet()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(restored.Pending) != 0 {
		t.Fatalf("zero-valued entries must not survive persistence")
	}
}
