package royalty

import (
	"math/big"

	"github.com/holiman/uint256"
)

const (
	// BasisPointsDenominator is the denominator of the commission rate. A
	// rate of 10,000 routes the entire payment into commission.
	BasisPointsDenominator = 10_000

	// MinGasReserve is the minimum margin, on top of the booked amount,
	// that a payment message must attach to cover its execution cost.
	MinGasReserve = 10_000_000

	// MinDistributionGas is the minimum value a distribution message must
	// attach to cover the cost of the transfer batch.
	MinDistributionGas = 50_000_000
)

// VaultState is the singleton ledger of the royalty vault. The owner and
// commission rate are fixed at construction; everything else is mutated only
// through the engine's four operations.
type VaultState struct {
	// Owner is the administrator identity. There is no transfer-of-ownership
	// operation; the field is immutable for the vault's lifetime.
	Owner [20]byte

	// ConfigHash is the opaque 256-bit digest of the current external
	// split configuration. The vault stores it verbatim and never
	// inspects its provenance.
	ConfigHash uint256.Int

	// CommissionRateBps is the protocol commission in basis points,
	// in [0, 10000]. Fixed at construction.
	CommissionRateBps uint32

	// AccumulatedCommission is the commission owed to the owner and not
	// yet withdrawn. Never negative.
	AccumulatedCommission *big.Int

	// Seqno increases by exactly one per accepted operation and is left
	// untouched by rejected ones.
	Seqno uint32

	// Pending maps a collection to the amount awaiting distribution.
	// Every stored value is strictly positive; a fully consumed entry is
	// removed rather than kept at zero.
	Pending map[[20]byte]*big.Int
}

// NewVaultState constructs a zeroed ledger for the given owner, commission
// rate, and initial configuration digest.
func NewVaultState(owner [20]byte, rateBps uint32, configHash uint256.Int) *VaultState {
	return &VaultState{
		Owner:                 owner,
		ConfigHash:            configHash,
		CommissionRateBps:     rateBps,
		AccumulatedCommission: big.NewInt(0),
		Pending:               make(map[[20]byte]*big.Int),
	}
}

// Clone returns a deep copy of the state to avoid accidental aliasing of the
// pending map and commission balance between callers.
func (s *VaultState) Clone() *VaultState {
	if s == nil {
		return nil
	}
	clone := &VaultState{
		Owner:                 s.Owner,
		ConfigHash:            s.ConfigHash,
		CommissionRateBps:     s.CommissionRateBps,
		AccumulatedCommission: cloneBigInt(s.AccumulatedCommission),
		Seqno:                 s.Seqno,
		Pending:               make(map[[20]byte]*big.Int, len(s.Pending)),
	}
	for collection, amount := range s.Pending {
		clone.Pending[collection] = cloneBigInt(amount)
	}
	return clone
}

// PendingAmount returns the amount awaiting distribution for the collection.
// Absent entries read as zero.
func (s *VaultState) PendingAmount(collection [20]byte) *big.Int {
	if s == nil || s.Pending == nil {
		return big.NewInt(0)
	}
	amount, ok := s.Pending[collection]
	if !ok {
		return big.NewInt(0)
	}
	return cloneBigInt(amount)
}

// Balance reports the funds the vault is logically holding: the accumulated
// commission plus every collection's pending distribution.
func (s *VaultState) Balance() *big.Int {
	total := big.NewInt(0)
	if s == nil {
		return total
	}
	if s.AccumulatedCommission != nil {
		total.Add(total, s.AccumulatedCommission)
	}
	for _, amount := range s.Pending {
		if amount != nil {
			total.Add(total, amount)
		}
	}
	return total
}

func (s *VaultState) ensureDefaults() {
	if s.AccumulatedCommission == nil {
		s.AccumulatedCommission = big.NewInt(0)
	}
	if s.Pending == nil {
		s.Pending = make(map[[20]byte]*big.Int)
	}
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// PaymentRequest is an incoming royalty payment tagged with the collection it
// belongs to. AttachedValue is the value carried by the message itself and
// must cover the booked amount plus MinGasReserve.
type PaymentRequest struct {
	RequestID     string
	Collection    [20]byte
	Amount        *big.Int
	AttachedValue *big.Int
}

// ConfigUpdateRequest asks the vault to replace its configuration digest.
type ConfigUpdateRequest struct {
	RequestID string
	NewHash   uint256.Int
}

// WithdrawRequest asks the vault to pay out accumulated commission to the
// owner.
type WithdrawRequest struct {
	RequestID string
	Amount    *big.Int
}

// RecipientShare is one entry of a distribution request. Slice order defines
// the order in which transfers are attempted.
type RecipientShare struct {
	Recipient [20]byte
	Amount    *big.Int
}

// DistributionRequest asks the vault to pay out a collection's pending
// balance to the listed recipients.
type DistributionRequest struct {
	RequestID     string
	Collection    [20]byte
	Recipients    []RecipientShare
	AttachedValue *big.Int
}

// PaymentResult reports the split applied by an accepted payment.
type PaymentResult struct {
	Commission    *big.Int
	Distributable *big.Int
	Seqno         uint32
}

// ConfigUpdateResult reports an accepted configuration swap. Seqno is the
// counter value before the operation's increment.
type ConfigUpdateResult struct {
	OldHash uint256.Int
	NewHash uint256.Int
	Seqno   uint32
}

// WithdrawResult reports an accepted commission withdrawal.
type WithdrawResult struct {
	Amount    *big.Int
	Remaining *big.Int
	Seqno     uint32
}

// DistributionResult reports an accepted distribution run. Skipped entries
// (non-positive or over the cap) are excluded from both totals.
type DistributionResult struct {
	TotalDistributed *big.Int
	RecipientsCount  int
	Remaining        *big.Int
	Seqno            uint32
}
