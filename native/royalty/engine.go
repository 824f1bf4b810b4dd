package royalty

import (
	"errors"
	"math/big"
	"sync"

	"royaltysplit/core/events"
)

var errNilState = errors.New("royalty engine: state not configured")

// vaultStore persists the singleton ledger. A Put that returns an error
// leaves the stored state untouched, which keeps every operation
// all-or-nothing.
type vaultStore interface {
	VaultGet() (*VaultState, error)
	VaultPut(*VaultState) error
}

// TransferSink delivers outbound value transfers. Delivery is best effort:
// the engine commits its ledger mutation before handing the transfer over and
// ignores whatever the sink reports.
type TransferSink interface {
	Transfer(recipient [20]byte, amount *big.Int) error
}

// Engine wires the royalty accounting logic with external state, the payout
// sink, and event emitters. Operations serialise on an internal mutex: the
// ledger has exactly one writer at a time, so no message ever observes a
// partial update.
type Engine struct {
	mu      sync.Mutex
	state   vaultStore
	sink    TransferSink
	emitter events.Emitter
}

// NewEngine creates a royalty engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state vaultStore) { e.state = state }

// SetSink configures the outbound transfer sink used by the engine.
func (e *Engine) SetSink(sink TransferSink) { e.sink = sink }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event events.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(event)
}

func (e *Engine) loadState() (*VaultState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	state, err := e.state.VaultGet()
	if err != nil {
		return nil, err
	}
	state.ensureDefaults()
	return state, nil
}

// send hands a transfer to the sink. Failures are swallowed: the ledger
// mutation that earmarked the funds has already been committed and delivery
// is reconciled externally.
func (e *Engine) send(recipient [20]byte, amount *big.Int) {
	if e == nil || e.sink == nil {
		return
	}
	_ = e.sink.Transfer(recipient, cloneBigInt(amount))
}

// splitPayment computes the commission owed on amount at the given rate and
// the distributable remainder. Floor division guarantees commission never
// exceeds amount for rates up to 10,000 bps, and the two parts always sum to
// amount exactly.
func splitPayment(amount *big.Int, rateBps uint32) (commission, distributable *big.Int) {
	commission = new(big.Int).Mul(amount, big.NewInt(int64(rateBps)))
	commission.Div(commission, big.NewInt(BasisPointsDenominator))
	distributable = new(big.Int).Sub(amount, commission)
	return commission, distributable
}

// SubmitPayment books an incoming royalty payment: the commission share is
// credited to the owner's balance and the remainder is earmarked for the
// payment's collection. No value leaves the vault here.
func (e *Engine) SubmitPayment(req PaymentRequest) (*PaymentResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.loadState()
	if err != nil {
		return nil, err
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	required := new(big.Int).Add(req.Amount, big.NewInt(MinGasReserve))
	if req.AttachedValue == nil || req.AttachedValue.Cmp(required) < 0 {
		return nil, ErrInsufficientValue
	}

	commission, distributable := splitPayment(req.Amount, state.CommissionRateBps)

	next := state.Clone()
	next.AccumulatedCommission.Add(next.AccumulatedCommission, commission)
	if distributable.Sign() > 0 {
		pending, ok := next.Pending[req.Collection]
		if !ok {
			pending = big.NewInt(0)
		}
		next.Pending[req.Collection] = pending.Add(pending, distributable)
	}
	next.Seqno++
	if err := e.state.VaultPut(next); err != nil {
		return nil, err
	}

	e.emit(events.PaymentReceived{
		Collection:    req.Collection,
		Amount:        cloneBigInt(req.Amount),
		Commission:    cloneBigInt(commission),
		Distributable: cloneBigInt(distributable),
		ConfigHash:    next.ConfigHash.Hex(),
	})
	return &PaymentResult{
		Commission:    commission,
		Distributable: distributable,
		Seqno:         next.Seqno,
	}, nil
}

// UpdateConfig replaces the configuration digest. Owner only. The digest is
// stored verbatim; computing it from the external configuration payload is
// the caller's responsibility.
func (e *Engine) UpdateConfig(caller [20]byte, req ConfigUpdateRequest) (*ConfigUpdateResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.loadState()
	if err != nil {
		return nil, err
	}
	if caller != state.Owner {
		return nil, ErrUnauthorized
	}

	oldHash := state.ConfigHash
	next := state.Clone()
	next.ConfigHash = req.NewHash
	next.Seqno++
	if err := e.state.VaultPut(next); err != nil {
		return nil, err
	}

	e.emit(events.ConfigUpdated{
		OldHash: oldHash.Hex(),
		NewHash: req.NewHash.Hex(),
		Seqno:   state.Seqno,
	})
	return &ConfigUpdateResult{
		OldHash: oldHash,
		NewHash: req.NewHash,
		Seqno:   state.Seqno,
	}, nil
}

// WithdrawCommission pays accumulated commission out to the owner. Owner
// only. The ledger decrement commits first; the transfer itself is best
// effort and its failure is only observable through external reconciliation.
func (e *Engine) WithdrawCommission(caller [20]byte, req WithdrawRequest) (*WithdrawResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.loadState()
	if err != nil {
		return nil, err
	}
	if caller != state.Owner {
		return nil, ErrUnauthorized
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.Amount.Cmp(state.AccumulatedCommission) > 0 {
		return nil, ErrInsufficientCommissionBalance
	}

	next := state.Clone()
	next.AccumulatedCommission.Sub(next.AccumulatedCommission, req.Amount)
	next.Seqno++
	if err := e.state.VaultPut(next); err != nil {
		return nil, err
	}

	e.send(state.Owner, req.Amount)
	return &WithdrawResult{
		Amount:    cloneBigInt(req.Amount),
		Remaining: cloneBigInt(next.AccumulatedCommission),
		Seqno:     next.Seqno,
	}, nil
}

// DistributeToRecipients pays a collection's pending balance out to the
// requested recipients, in request order. Any caller may trigger it; the
// recipient list is expected to come from a separately verified split plan
// and is not re-validated here beyond the per-entry cap.
//
// Each entry is capped against the pending balance as it was when the
// request arrived, not against a running remainder. A list whose entries
// individually fit under the cap but sum above it will therefore be sent in
// full; callers own the burden of supplying a list that sums within the
// pending balance.
func (e *Engine) DistributeToRecipients(req DistributionRequest) (*DistributionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.loadState()
	if err != nil {
		return nil, err
	}
	if req.AttachedValue == nil || req.AttachedValue.Cmp(big.NewInt(MinDistributionGas)) < 0 {
		return nil, ErrInsufficientGas
	}
	pending, ok := state.Pending[req.Collection]
	if !ok || pending == nil || pending.Sign() <= 0 {
		return nil, ErrNoPendingDistribution
	}

	total := big.NewInt(0)
	count := 0
	payable := make([]RecipientShare, 0, len(req.Recipients))
	for _, share := range req.Recipients {
		if share.Amount == nil || share.Amount.Sign() <= 0 {
			continue
		}
		if share.Amount.Cmp(pending) > 0 {
			continue
		}
		payable = append(payable, RecipientShare{Recipient: share.Recipient, Amount: cloneBigInt(share.Amount)})
		total.Add(total, share.Amount)
		count++
	}

	remaining := new(big.Int).Sub(pending, total)
	next := state.Clone()
	if remaining.Sign() > 0 {
		next.Pending[req.Collection] = cloneBigInt(remaining)
	} else {
		delete(next.Pending, req.Collection)
	}
	next.Seqno++
	if err := e.state.VaultPut(next); err != nil {
		return nil, err
	}

	for _, share := range payable {
		e.send(share.Recipient, share.Amount)
	}
	e.emit(events.DistributionExecuted{
		Collection:       req.Collection,
		TotalDistributed: cloneBigInt(total),
		RecipientsCount:  count,
	})
	return &DistributionResult{
		TotalDistributed: total,
		RecipientsCount:  count,
		Remaining:        remaining,
		Seqno:            next.Seqno,
	}, nil
}

// Snapshot returns a deep copy of the current ledger for read-only queries.
func (e *Engine) Snapshot() (*VaultState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, err := e.loadState()
	if err != nil {
		return nil, err
	}
	return state.Clone(), nil
}
