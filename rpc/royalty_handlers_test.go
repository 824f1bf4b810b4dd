package rpc

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"royaltysplit/core/events"
	"royaltysplit/native/royalty"
	"royaltysplit/payout"
	"royaltysplit/state"
	"royaltysplit/storage"
)

type testEnv struct {
	server     *httptest.Server
	dispatcher *payout.Dispatcher
	stream     *events.StreamEmitter
	ownerKey   *ecdsa.PrivateKey
}

func newTestEnv(t *testing.T, rateBps uint32) *testEnv {
	t.Helper()
	ownerKey, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	owner := ethcrypto.PubkeyToAddress(ownerKey.PublicKey)

	db := storage.NewMemDB()
	store := state.NewStore(db)
	require.NoError(t, store.Bootstrap(owner, rateBps, *uint256.NewInt(0xC0FFEE)))

	dispatcher := payout.NewDispatcher(db, payout.SenderFunc(func([20]byte, *big.Int) error { return nil }), nil, 16)
	t.Cleanup(dispatcher.Close)

	stream := events.NewStreamEmitter()
	engine := royalty.NewEngine()
	engine.SetState(store)
	engine.SetSink(dispatcher)
	engine.SetEmitter(stream)

	srv := NewServer(engine, dispatcher, stream, nil, 1000)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, dispatcher: dispatcher, stream: stream, ownerKey: ownerKey}
}

func (env *testEnv) call(t *testing.T, method string, params interface{}) (*http.Response, RPCResponse) {
	t.Helper()
	body := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		body["params"] = []interface{}{params}
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(env.server.URL, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	var decoded RPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func resultInto(t *testing.T, decoded RPCResponse, out interface{}) {
	t.Helper()
	raw, err := json.Marshal(decoded.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

const testCollection = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func submitTestPayment(t *testing.T, env *testEnv, amount int64) {
	t.Helper()
	attached := amount + royalty.MinGasReserve
	resp, decoded := env.call(t, "royalty_submitPayment", submitPaymentParams{
		Collection:    testCollection,
		Amount:        fmt.Sprintf("%d", amount),
		AttachedValue: fmt.Sprintf("%d", attached),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, decoded.Error)
}

func TestSubmitPaymentOverRPC(t *testing.T) {
	env := newTestEnv(t, 500)

	resp, decoded := env.call(t, "royalty_submitPayment", submitPaymentParams{
		Collection:    testCollection,
		Amount:        "1000000000",
		AttachedValue: fmt.Sprintf("%d", 1_000_000_000+royalty.MinGasReserve),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, decoded.Error)

	var result submitPaymentResult
	resultInto(t, decoded, &result)
	require.Equal(t, "50000000", result.Commission)
	require.Equal(t, "950000000", result.Distributable)
	require.EqualValues(t, 1, result.Seqno)
	require.NotEmpty(t, result.RequestID)

	_, pending := env.call(t, "royalty_getPending", pendingParams{Collection: testCollection})
	var pendingRes pendingResult
	resultInto(t, pending, &pendingRes)
	require.Equal(t, "950000000", pendingRes.Amount)

	_, summary := env.call(t, "royalty_getSummary", nil)
	var summaryRes summaryResult
	resultInto(t, summary, &summaryRes)
	require.Equal(t, "50000000", summaryRes.AccumulatedCommission)
	require.EqualValues(t, 1, summaryRes.Seqno)
	require.Equal(t, 1, summaryRes.PendingCollections)
	require.Equal(t, "1000000000", summaryRes.Balance)
}

func TestSubmitPaymentRejectedOverRPC(t *testing.T) {
	env := newTestEnv(t, 500)

	resp, decoded := env.call(t, "royalty_submitPayment", submitPaymentParams{
		Collection:    testCollection,
		Amount:        "0",
		AttachedValue: fmt.Sprintf("%d", royalty.MinGasReserve),
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.NotNil(t, decoded.Error)
	require.Equal(t, codeRejected, decoded.Error.Code)

	_, summary := env.call(t, "royalty_getSummary", nil)
	var summaryRes summaryResult
	resultInto(t, summary, &summaryRes)
	require.EqualValues(t, 0, summaryRes.Seqno)
}

func TestUpdateConfigOverRPC(t *testing.T) {
	env := newTestEnv(t, 500)
	newHash := uint256.NewInt(0xBEEF)

	sign := func(key *ecdsa.PrivateKey, requestID string) string {
		sig, err := ethcrypto.Sign(UpdateConfigDigest(requestID, *newHash), key)
		require.NoError(t, err)
		return "0x" + fmt.Sprintf("%x", sig)
	}

	t.Run("owner succeeds", func(t *testing.T) {
		resp, decoded := env.call(t, "royalty_updateConfig", updateConfigParams{
			RequestID: "req-1",
			NewHash:   newHash.Hex(),
			Signature: sign(env.ownerKey, "req-1"),
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Nil(t, decoded.Error)
		var result updateConfigResult
		resultInto(t, decoded, &result)
		require.Equal(t, newHash.Hex(), result.NewHash)
		require.EqualValues(t, 0, result.Seqno, "receipt carries the pre-increment seqno")
	})

	t.Run("non-owner rejected", func(t *testing.T) {
		otherKey, err := ethcrypto.GenerateKey()
		require.NoError(t, err)
		resp, decoded := env.call(t, "royalty_updateConfig", updateConfigParams{
			RequestID: "req-2",
			NewHash:   newHash.Hex(),
			Signature: sign(otherKey, "req-2"),
		})
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
		require.NotNil(t, decoded.Error)
		require.Equal(t, codeUnauthorized, decoded.Error.Code)
	})

	t.Run("malformed signature rejected", func(t *testing.T) {
		resp, decoded := env.call(t, "royalty_updateConfig", updateConfigParams{
			RequestID: "req-3",
			NewHash:   newHash.Hex(),
			Signature: "0xdead",
		})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.NotNil(t, decoded.Error)
		require.Equal(t, codeInvalidParams, decoded.Error.Code)
	})
}

func TestWithdrawCommissionOverRPC(t *testing.T) {
	env := newTestEnv(t, 500)
	submitTestPayment(t, env, 1_000_000_000)

	sign := func(requestID, amount string) string {
		value, ok := new(big.Int).SetString(amount, 10)
		require.True(t, ok)
		sig, err := ethcrypto.Sign(WithdrawDigest(requestID, value), env.ownerKey)
		require.NoError(t, err)
		return "0x" + fmt.Sprintf("%x", sig)
	}

	t.Run("over balance rejected", func(t *testing.T) {
		resp, decoded := env.call(t, "royalty_withdrawCommission", withdrawParams{
			RequestID: "wd-1",
			Amount:    "50000001",
			Signature: sign("wd-1", "50000001"),
		})
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		require.Equal(t, codeRejected, decoded.Error.Code)
	})

	t.Run("owner withdraws", func(t *testing.T) {
		resp, decoded := env.call(t, "royalty_withdrawCommission", withdrawParams{
			RequestID: "wd-2",
			Amount:    "50000000",
			Signature: sign("wd-2", "50000000"),
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Nil(t, decoded.Error)
		var result withdrawResult
		resultInto(t, decoded, &result)
		require.Equal(t, "0", result.Remaining)
	})
}

func TestDistributeOverRPC(t *testing.T) {
	env := newTestEnv(t, 500)
	submitTestPayment(t, env, 1_000_000_000)

	resp, decoded := env.call(t, "royalty_distribute", distributeParams{
		Collection:    testCollection,
		AttachedValue: fmt.Sprintf("%d", royalty.MinDistributionGas),
		Recipients: []distributeEntry{
			{Recipient: "0x1111111111111111111111111111111111111111", Amount: "570000000"},
			{Recipient: "0x2222222222222222222222222222222222222222", Amount: "380000000"},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, decoded.Error)
	var result distributeResult
	resultInto(t, decoded, &result)
	require.Equal(t, "950000000", result.TotalDistributed)
	require.Equal(t, 2, result.RecipientsCount)
	require.Equal(t, "0", result.Remaining)

	_, pending := env.call(t, "royalty_getPending", pendingParams{Collection: testCollection})
	var pendingRes pendingResult
	resultInto(t, pending, &pendingRes)
	require.Equal(t, "0", pendingRes.Amount, "consumed entry reads as zero")

	// Flush the payout queue, then audit deliveries through the journal.
	env.dispatcher.Close()
	_, journal := env.call(t, "royalty_payoutJournal", nil)
	var records []payout.Record
	resultInto(t, journal, &records)
	require.Len(t, records, 2)
	for _, rec := range records {
		require.Equal(t, payout.StatusDelivered, rec.Status)
	}
}

func TestMethodNotFound(t *testing.T) {
	env := newTestEnv(t, 500)
	resp, decoded := env.call(t, "royalty_unknown", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, codeMethodNotFound, decoded.Error.Code)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, 500)
	resp, err := http.Get(env.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
