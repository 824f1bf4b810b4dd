package events

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"royaltysplit/core/types"
)

const (
	// TypePaymentReceived marks a royalty payment that was split and booked.
	TypePaymentReceived = "royalty.payment_received"
	// TypeConfigUpdated marks a replacement of the configuration reference.
	TypeConfigUpdated = "royalty.config_updated"
	// TypeDistributionExecuted marks a completed distribution run over a
	// collection's pending balance.
	TypeDistributionExecuted = "royalty.distribution_executed"
)

// PaymentReceived records the fee split applied to an incoming payment for
// downstream indexing pipelines.
type PaymentReceived struct {
	Collection    [20]byte
	Amount        *big.Int
	Commission    *big.Int
	Distributable *big.Int
	ConfigHash    string
}

// EventType satisfies the events.Event interface.
func (PaymentReceived) EventType() string { return TypePaymentReceived }

// Event converts the structured payload into a broadcastable event.
func (e PaymentReceived) Event() *types.Event {
	attrs := map[string]string{
		"collection": hex.EncodeToString(e.Collection[:]),
	}
	if e.Amount != nil {
		attrs["amount"] = e.Amount.String()
	}
	if e.Commission != nil {
		attrs["commission"] = e.Commission.String()
	}
	if e.Distributable != nil {
		attrs["distributable"] = e.Distributable.String()
	}
	if e.ConfigHash != "" {
		attrs["configHash"] = e.ConfigHash
	}
	return &types.Event{Type: TypePaymentReceived, Attributes: attrs}
}

// ConfigUpdated records a configuration reference swap together with the
// operation counter value at the time the swap was accepted.
type ConfigUpdated struct {
	OldHash string
	NewHash string
	Seqno   uint32
}

// EventType satisfies the events.Event interface.
func (ConfigUpdated) EventType() string { return TypeConfigUpdated }

// Event converts the structured payload into a broadcastable event.
func (e ConfigUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeConfigUpdated,
		Attributes: map[string]string{
			"oldHash": e.OldHash,
			"newHash": e.NewHash,
			"seqno":   strconv.FormatUint(uint64(e.Seqno), 10),
		},
	}
}

// DistributionExecuted summarises a distribution run for analytics pipelines.
type DistributionExecuted struct {
	Collection       [20]byte
	TotalDistributed *big.Int
	RecipientsCount  int
}

// EventType satisfies the events.Event interface.
func (DistributionExecuted) EventType() string { return TypeDistributionExecuted }

// Event converts the structured payload into a broadcastable event.
func (e DistributionExecuted) Event() *types.Event {
	attrs := map[string]string{
		"collection": hex.EncodeToString(e.Collection[:]),
		"recipients": strconv.Itoa(e.RecipientsCount),
	}
	if e.TotalDistributed != nil {
		attrs["totalDistributed"] = e.TotalDistributed.String()
	}
	return &types.Event{Type: TypeDistributionExecuted, Attributes: attrs}
}
