package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"royaltysplit/native/royalty"
	"royaltysplit/storage"
)

var vaultKey = []byte("vault/state")

// ErrNotBootstrapped is returned when no vault snapshot exists yet.
var ErrNotBootstrapped = errors.New("state: vault not bootstrapped")

// Store persists the vault ledger as a single snapshot record. Every accepted
// operation rewrites the snapshot; a failed write leaves the previous
// snapshot in place, which keeps operations all-or-nothing across restarts.
type Store struct {
	db storage.Database
}

// NewStore wraps the given database.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

// vaultSnapshot is the stored form of the ledger. Addresses render as 0x hex,
// amounts as decimal strings so arbitrary precision survives the round trip.
type vaultSnapshot struct {
	Owner                 string            `json:"owner"`
	ConfigHash            string            `json:"configHash"`
	CommissionRateBps     uint32            `json:"commissionRateBps"`
	AccumulatedCommission string            `json:"accumulatedCommission"`
	Seqno                 uint32            `json:"seqno"`
	Pending               map[string]string `json:"pending"`
}

// VaultGet loads the current ledger snapshot.
func (s *Store) VaultGet() (*royalty.VaultState, error) {
	raw, err := s.db.Get(vaultKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotBootstrapped
		}
		return nil, fmt.Errorf("state: load vault snapshot: %w", err)
	}
	var snap vaultSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("state: decode vault snapshot: %w", err)
	}
	return snap.toState()
}

// VaultPut replaces the stored ledger snapshot.
func (s *Store) VaultPut(state *royalty.VaultState) error {
	if state == nil {
		return errors.New("state: nil vault state")
	}
	raw, err := json.Marshal(newSnapshot(state))
	if err != nil {
		return fmt.Errorf("state: encode vault snapshot: %w", err)
	}
	if err := s.db.Put(vaultKey, raw); err != nil {
		return fmt.Errorf("state: write vault snapshot: %w", err)
	}
	return nil
}

// Bootstrapped reports whether a vault snapshot exists.
func (s *Store) Bootstrapped() (bool, error) {
	ok, err := s.db.Has(vaultKey)
	if err != nil {
		return false, fmt.Errorf("state: probe vault snapshot: %w", err)
	}
	return ok, nil
}

// Bootstrap writes the initial snapshot for a fresh vault. It refuses to
// overwrite an existing ledger.
func (s *Store) Bootstrap(owner [20]byte, rateBps uint32, configHash uint256.Int) error {
	ok, err := s.Bootstrapped()
	if err != nil {
		return err
	}
	if ok {
		return errors.New("state: vault already bootstrapped")
	}
	if rateBps > royalty.BasisPointsDenominator {
		return fmt.Errorf("state: commission rate %d exceeds %d bps", rateBps, royalty.BasisPointsDenominator)
	}
	return s.VaultPut(royalty.NewVaultState(owner, rateBps, configHash))
}

func newSnapshot(state *royalty.VaultState) vaultSnapshot {
	snap := vaultSnapshot{
		Owner:             common.Address(state.Owner).Hex(),
		ConfigHash:        state.ConfigHash.Hex(),
		CommissionRateBps: state.CommissionRateBps,
		Seqno:             state.Seqno,
		Pending:           make(map[string]string, len(state.Pending)),
	}
	if state.AccumulatedCommission != nil {
		snap.AccumulatedCommission = state.AccumulatedCommission.String()
	} else {
		snap.AccumulatedCommission = "0"
	}
	for collection, amount := range state.Pending {
		if amount == nil || amount.Sign() <= 0 {
			continue
		}
		snap.Pending[common.Address(collection).Hex()] = amount.String()
	}
	return snap
}

func (snap vaultSnapshot) toState() (*royalty.VaultState, error) {
	if !common.IsHexAddress(snap.Owner) {
		return nil, fmt.Errorf("state: invalid owner address %q", snap.Owner)
	}
	hash, err := uint256.FromHex(snap.ConfigHash)
	if err != nil {
		return nil, fmt.Errorf("state: invalid config hash %q: %w", snap.ConfigHash, err)
	}
	commission, ok := new(big.Int).SetString(snap.AccumulatedCommission, 10)
	if !ok || commission.Sign() < 0 {
		return nil, fmt.Errorf("state: invalid commission balance %q", snap.AccumulatedCommission)
	}
	state := royalty.NewVaultState(common.HexToAddress(snap.Owner), snap.CommissionRateBps, *hash)
	state.AccumulatedCommission = commission
	state.Seqno = snap.Seqno
	for collection, raw := range snap.Pending {
		if !common.IsHexAddress(collection) {
			return nil, fmt.Errorf("state: invalid collection address %q", collection)
		}
		amount, ok := new(big.Int).SetString(raw, 10)
		if !ok || amount.Sign() <= 0 {
			return nil, fmt.Errorf("state: invalid pending amount %q for %s", raw, collection)
		}
		state.Pending[common.HexToAddress(collection)] = amount
	}
	return state, nil
}
