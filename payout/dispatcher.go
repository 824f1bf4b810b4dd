// Package payout is the delivery half of the vault's two-phase transfer
// design. The engine commits its ledger mutation, then hands the transfer to
// a Dispatcher; from that point delivery is best effort. Failures never flow
// back into the ledger; every attempt is journaled so an external
// reconciliation job can diff booked amounts against delivered ones.
package payout

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"royaltysplit/observability/metrics"
	"royaltysplit/storage"
)

var journalPrefix = []byte("payout/journal/")

// journalTimeFormat keeps the fractional second fixed-width so lexicographic
// key order matches chronological order under prefix iteration.
const journalTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func journalKey(ts time.Time, id string) []byte {
	key := append([]byte(nil), journalPrefix...)
	key = append(key, ts.UTC().Format(journalTimeFormat)...)
	key = append(key, '/')
	key = append(key, id...)
	return key
}

// Statuses recorded in the journal.
const (
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
	StatusDropped   = "dropped"
)

// Sender performs the actual value delivery to a recipient.
type Sender interface {
	Send(recipient [20]byte, amount *big.Int) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(recipient [20]byte, amount *big.Int) error

// Send implements the Sender interface.
func (f SenderFunc) Send(recipient [20]byte, amount *big.Int) error {
	return f(recipient, amount)
}

// Record is one journaled delivery attempt.
type Record struct {
	ID        string    `json:"id"`
	Recipient string    `json:"recipient"`
	Amount    string    `json:"amount"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type job struct {
	recipient [20]byte
	amount    *big.Int
}

// Dispatcher queues outbound transfers and delivers them from a single
// worker goroutine. It satisfies the engine's TransferSink: Transfer never
// blocks on delivery and never surfaces delivery errors.
type Dispatcher struct {
	db      storage.Database
	sender  Sender
	logger  *slog.Logger
	metrics *metrics.RoyaltyMetrics

	mu     sync.Mutex
	closed bool
	jobs   chan job
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given queue capacity and starts
// its delivery worker.
func NewDispatcher(db storage.Database, sender Sender, logger *slog.Logger, queueSize int) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	d := &Dispatcher{
		db:      db,
		sender:  sender,
		logger:  logger,
		metrics: metrics.Royalty(),
		jobs:    make(chan job, queueSize),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Transfer enqueues a delivery. A full queue drops the transfer on the floor
// after journaling it; the ledger side has already committed either way.
func (d *Dispatcher) Transfer(recipient [20]byte, amount *big.Int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.journal(recipient, amount, StatusDropped, "dispatcher closed")
		return nil
	}
	select {
	case d.jobs <- job{recipient: recipient, amount: new(big.Int).Set(amount)}:
		d.metrics.SetPayoutQueueDepth(len(d.jobs))
	default:
		d.journal(recipient, amount, StatusDropped, "queue full")
		d.logger.Warn("payout queue full, transfer dropped",
			slog.String("recipient", common.Address(recipient).Hex()),
			slog.String("amount", amount.String()))
	}
	return nil
}

// Close drains the queue and stops the worker. Safe to call once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.metrics.SetPayoutQueueDepth(len(d.jobs))
		err := d.deliver(j)
		if err != nil {
			d.metrics.PayoutFailed()
			d.journal(j.recipient, j.amount, StatusFailed, err.Error())
			d.logger.Warn("payout delivery failed",
				slog.String("recipient", common.Address(j.recipient).Hex()),
				slog.String("amount", j.amount.String()),
				slog.Any("error", err))
			continue
		}
		d.journal(j.recipient, j.amount, StatusDelivered, "")
	}
}

func (d *Dispatcher) deliver(j job) error {
	if d.sender == nil {
		return fmt.Errorf("payout: no sender configured")
	}
	return d.sender.Send(j.recipient, j.amount)
}

func (d *Dispatcher) journal(recipient [20]byte, amount *big.Int, status, errMsg string) {
	if d.db == nil {
		return
	}
	now := time.Now().UTC()
	rec := Record{
		ID:        uuid.NewString(),
		Recipient: common.Address(recipient).Hex(),
		Amount:    amount.String(),
		Status:    status,
		Error:     errMsg,
		CreatedAt: now,
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		d.logger.Error("encode payout journal record", slog.Any("error", err))
		return
	}
	if err := d.db.Put(journalKey(now, rec.ID), raw); err != nil {
		d.logger.Error("write payout journal record", slog.Any("error", err))
	}
}

// Journal returns every journaled delivery attempt in chronological order.
func (d *Dispatcher) Journal() ([]Record, error) {
	records := []Record{}
	err := d.db.IteratePrefix(journalPrefix, func(_, value []byte) error {
		var rec Record
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("payout: decode journal record: %w", err)
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
