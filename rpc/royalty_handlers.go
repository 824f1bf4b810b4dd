package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"royaltysplit/native/royalty"
)

type submitPaymentParams struct {
	RequestID     string `json:"requestId"`
	Collection    string `json:"collection"`
	Amount        string `json:"amount"`
	AttachedValue string `json:"attachedValue"`
}

type submitPaymentResult struct {
	RequestID     string `json:"requestId"`
	Commission    string `json:"commission"`
	Distributable string `json:"distributable"`
	Seqno         uint32 `json:"seqno"`
}

type updateConfigParams struct {
	RequestID string `json:"requestId"`
	NewHash   string `json:"newHash"`
	Signature string `json:"signature"`
}

type updateConfigResult struct {
	RequestID string `json:"requestId"`
	OldHash   string `json:"oldHash"`
	NewHash   string `json:"newHash"`
	Seqno     uint32 `json:"seqno"`
}

type withdrawParams struct {
	RequestID string `json:"requestId"`
	Amount    string `json:"amount"`
	Signature string `json:"signature"`
}

type withdrawResult struct {
	RequestID string `json:"requestId"`
	Amount    string `json:"amount"`
	Remaining string `json:"remaining"`
	Seqno     uint32 `json:"seqno"`
}

type distributeEntry struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

type distributeParams struct {
	RequestID     string            `json:"requestId"`
	Collection    string            `json:"collection"`
	AttachedValue string            `json:"attachedValue"`
	Recipients    []distributeEntry `json:"recipients"`
}

type distributeResult struct {
	RequestID        string `json:"requestId"`
	TotalDistributed string `json:"totalDistributed"`
	RecipientsCount  int    `json:"recipientsCount"`
	Remaining        string `json:"remaining"`
	Seqno            uint32 `json:"seqno"`
}

type pendingParams struct {
	Collection string `json:"collection"`
}

type pendingResult struct {
	Collection string `json:"collection"`
	Amount     string `json:"amount"`
}

type summaryResult struct {
	Owner                 string `json:"owner"`
	ConfigHash            string `json:"configHash"`
	CommissionRateBps     uint32 `json:"commissionRateBps"`
	AccumulatedCommission string `json:"accumulatedCommission"`
	Seqno                 uint32 `json:"seqno"`
	Balance               string `json:"balance"`
	PendingCollections    int    `json:"pendingCollections"`
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) == 0 {
		return fmt.Errorf("missing parameter object")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAddress(raw string) ([20]byte, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return [20]byte{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(raw), nil
}

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}

func parseHash(raw string) (uint256.Int, error) {
	hash, err := uint256.FromHex(strings.TrimSpace(raw))
	if err != nil {
		return uint256.Int{}, fmt.Errorf("invalid hash %q: %w", raw, err)
	}
	return *hash, nil
}

// UpdateConfigDigest is the message a caller signs to authorize a config
// update. Request id and hash are both bound so signatures cannot be
// replayed across requests.
func UpdateConfigDigest(requestID string, newHash uint256.Int) []byte {
	raw := newHash.Bytes32()
	return ethcrypto.Keccak256([]byte("royaltysplit/updateConfig"), []byte(requestID), raw[:])
}

// WithdrawDigest is the message a caller signs to authorize a commission
// withdrawal.
func WithdrawDigest(requestID string, amount *big.Int) []byte {
	return ethcrypto.Keccak256([]byte("royaltysplit/withdrawCommission"), []byte(requestID), []byte(amount.String()))
}

// recoverCaller resolves the identity behind a 65-byte secp256k1 signature
// over the given digest. A signature that is well formed but produced by a
// different key recovers to a different address and fails the owner gate; a
// malformed signature is rejected as invalid parameters.
func recoverCaller(digest []byte, signature string) ([20]byte, error) {
	sig, err := hexutil.Decode(strings.TrimSpace(signature))
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(sig) != 65 {
		return [20]byte{}, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return [20]byte{}, fmt.Errorf("signature recovery failed: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

func (s *Server) handleSubmitPayment(w http.ResponseWriter, req *RPCRequest) {
	var params submitPaymentParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	collection, err := parseAddress(params.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	attached, err := parseAmount(params.AttachedValue)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	requestID := params.RequestID
	if strings.TrimSpace(requestID) == "" {
		requestID = uuid.NewString()
	}

	res, err := s.engine.SubmitPayment(royalty.PaymentRequest{
		RequestID:     requestID,
		Collection:    collection,
		Amount:        amount,
		AttachedValue: attached,
	})
	if err != nil {
		s.metrics.OperationRejected("submit_payment", rejectionReason(err))
		writeEngineError(w, req.ID, err)
		return
	}
	s.metrics.OperationAccepted("submit_payment")
	s.refreshPendingGauge()
	writeResult(w, req.ID, submitPaymentResult{
		RequestID:     requestID,
		Commission:    res.Commission.String(),
		Distributable: res.Distributable.String(),
		Seqno:         res.Seqno,
	})
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, req *RPCRequest) {
	var params updateConfigParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	if strings.TrimSpace(params.RequestID) == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "requestId required for signed operations", nil)
		return
	}
	newHash, err := parseHash(params.NewHash)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := recoverCaller(UpdateConfigDigest(params.RequestID, newHash), params.Signature)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}

	res, err := s.engine.UpdateConfig(caller, royalty.ConfigUpdateRequest{
		RequestID: params.RequestID,
		NewHash:   newHash,
	})
	if err != nil {
		s.metrics.OperationRejected("update_config", rejectionReason(err))
		writeEngineError(w, req.ID, err)
		return
	}
	s.metrics.OperationAccepted("update_config")
	writeResult(w, req.ID, updateConfigResult{
		RequestID: params.RequestID,
		OldHash:   res.OldHash.Hex(),
		NewHash:   res.NewHash.Hex(),
		Seqno:     res.Seqno,
	})
}

func (s *Server) handleWithdrawCommission(w http.ResponseWriter, req *RPCRequest) {
	var params withdrawParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	if strings.TrimSpace(params.RequestID) == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "requestId required for signed operations", nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := recoverCaller(WithdrawDigest(params.RequestID, amount), params.Signature)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}

	res, err := s.engine.WithdrawCommission(caller, royalty.WithdrawRequest{
		RequestID: params.RequestID,
		Amount:    amount,
	})
	if err != nil {
		s.metrics.OperationRejected("withdraw_commission", rejectionReason(err))
		writeEngineError(w, req.ID, err)
		return
	}
	s.metrics.OperationAccepted("withdraw_commission")
	writeResult(w, req.ID, withdrawResult{
		RequestID: params.RequestID,
		Amount:    res.Amount.String(),
		Remaining: res.Remaining.String(),
		Seqno:     res.Seqno,
	})
}

func (s *Server) handleDistribute(w http.ResponseWriter, req *RPCRequest) {
	var params distributeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	collection, err := parseAddress(params.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	attached, err := parseAmount(params.AttachedValue)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	recipients := make([]royalty.RecipientShare, 0, len(params.Recipients))
	for i, entry := range params.Recipients {
		recipient, err := parseAddress(entry.Recipient)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, fmt.Sprintf("recipient %d: %v", i, err), nil)
			return
		}
		amount, err := parseAmount(entry.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, fmt.Sprintf("recipient %d: %v", i, err), nil)
			return
		}
		recipients = append(recipients, royalty.RecipientShare{Recipient: recipient, Amount: amount})
	}
	requestID := params.RequestID
	if strings.TrimSpace(requestID) == "" {
		requestID = uuid.NewString()
	}

	res, err := s.engine.DistributeToRecipients(royalty.DistributionRequest{
		RequestID:     requestID,
		Collection:    collection,
		Recipients:    recipients,
		AttachedValue: attached,
	})
	if err != nil {
		s.metrics.OperationRejected("distribute", rejectionReason(err))
		writeEngineError(w, req.ID, err)
		return
	}
	s.metrics.OperationAccepted("distribute")
	s.refreshPendingGauge()
	writeResult(w, req.ID, distributeResult{
		RequestID:        requestID,
		TotalDistributed: res.TotalDistributed.String(),
		RecipientsCount:  res.RecipientsCount,
		Remaining:        res.Remaining.String(),
		Seqno:            res.Seqno,
	})
}

func (s *Server) handleGetSummary(w http.ResponseWriter, req *RPCRequest) {
	snapshot, err := s.engine.Snapshot()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load vault state", err.Error())
		return
	}
	s.metrics.SetPendingCollections(len(snapshot.Pending))
	writeResult(w, req.ID, summaryResult{
		Owner:                 common.Address(snapshot.Owner).Hex(),
		ConfigHash:            snapshot.ConfigHash.Hex(),
		CommissionRateBps:     snapshot.CommissionRateBps,
		AccumulatedCommission: snapshot.AccumulatedCommission.String(),
		Seqno:                 snapshot.Seqno,
		Balance:               snapshot.Balance().String(),
		PendingCollections:    len(snapshot.Pending),
	})
}

func (s *Server) handleGetPending(w http.ResponseWriter, req *RPCRequest) {
	var params pendingParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	collection, err := parseAddress(params.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	snapshot, err := s.engine.Snapshot()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load vault state", err.Error())
		return
	}
	writeResult(w, req.ID, pendingResult{
		Collection: common.Address(collection).Hex(),
		Amount:     snapshot.PendingAmount(collection).String(),
	})
}

func (s *Server) handlePayoutJournal(w http.ResponseWriter, req *RPCRequest) {
	if s.dispatcher == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "payout journal unavailable", nil)
		return
	}
	records, err := s.dispatcher.Journal()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to read payout journal", err.Error())
		return
	}
	writeResult(w, req.ID, records)
}

func (s *Server) refreshPendingGauge() {
	snapshot, err := s.engine.Snapshot()
	if err != nil {
		return
	}
	s.metrics.SetPendingCollections(len(snapshot.Pending))
}
