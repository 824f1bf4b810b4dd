package rpc

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"royaltysplit/core/events"
	"royaltysplit/native/royalty"
	"royaltysplit/observability/metrics"
	"royaltysplit/payout"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeRejected       = -32002
	codeRateLimited    = -32020
)

// Server exposes the vault's four operations and its read-only queries over
// JSON-RPC 2.0, plus a websocket stream of vault receipts for indexers.
// Payments and distributions are open; config updates and withdrawals carry a
// secp256k1 signature from which the caller identity is recovered.
type Server struct {
	engine     *royalty.Engine
	dispatcher *payout.Dispatcher
	stream     *events.StreamEmitter
	logger     *slog.Logger
	metrics    *metrics.RoyaltyMetrics

	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	rateLimit rate.Limit
	burst     int
}

// NewServer wires the RPC surface to the engine, the payout journal and the
// receipt stream. A nil stream disables the websocket endpoint.
func NewServer(engine *royalty.Engine, dispatcher *payout.Dispatcher, stream *events.StreamEmitter, logger *slog.Logger, ratePerSecond int) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if ratePerSecond <= 0 {
		ratePerSecond = 20
	}
	return &Server{
		engine:     engine,
		dispatcher: dispatcher,
		stream:     stream,
		logger:     logger,
		metrics:    metrics.Royalty(),
		limiters:   make(map[string]*rate.Limiter),
		rateLimit:  rate.Limit(ratePerSecond),
		burst:      ratePerSecond * 2,
	}
}

// Handler returns the HTTP handler: the JSON-RPC endpoint at the root plus
// health, metrics and receipt-stream routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.handleReceiptWS)
	r.Post("/", s.handle)
	return r
}

// Start serves the handler on addr and blocks.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", slog.String("addr", addr))
	return http.ListenAndServe(addr, s.Handler())
}

// RPCRequest is a JSON-RPC 2.0 call envelope.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// RPCResponse is a JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

func (s *Server) allow(remote string) bool {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	s.mu.Lock()
	limiter, ok := s.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(s.rateLimit, s.burst)
		s.limiters[host] = limiter
	}
	s.mu.Unlock()
	return limiter.Allow()
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r.RemoteAddr) {
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "failed to read request body", nil)
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "request body too large", nil)
		return
	}

	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported JSON-RPC version", nil)
		return
	}

	switch req.Method {
	case "royalty_submitPayment":
		s.handleSubmitPayment(w, &req)
	case "royalty_updateConfig":
		s.handleUpdateConfig(w, &req)
	case "royalty_withdrawCommission":
		s.handleWithdrawCommission(w, &req)
	case "royalty_distribute":
		s.handleDistribute(w, &req)
	case "royalty_getSummary":
		s.handleGetSummary(w, &req)
	case "royalty_getPending":
		s.handleGetPending(w, &req)
	case "royalty_payoutJournal":
		s.handlePayoutJournal(w, &req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
	}
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func writeError(w http.ResponseWriter, status int, id json.RawMessage, code int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(RPCResponse{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message, Data: data},
	})
}

// writeEngineError maps the engine's precondition rejections onto RPC codes.
func writeEngineError(w http.ResponseWriter, id json.RawMessage, err error) {
	switch {
	case errors.Is(err, royalty.ErrUnauthorized):
		writeError(w, http.StatusForbidden, id, codeUnauthorized, err.Error(), nil)
	case errors.Is(err, royalty.ErrInvalidAmount),
		errors.Is(err, royalty.ErrInsufficientValue),
		errors.Is(err, royalty.ErrInsufficientCommissionBalance),
		errors.Is(err, royalty.ErrInsufficientGas),
		errors.Is(err, royalty.ErrNoPendingDistribution):
		writeError(w, http.StatusUnprocessableEntity, id, codeRejected, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "operation failed", err.Error())
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, royalty.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, royalty.ErrInsufficientValue):
		return "insufficient_value"
	case errors.Is(err, royalty.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, royalty.ErrInsufficientCommissionBalance):
		return "insufficient_commission_balance"
	case errors.Is(err, royalty.ErrInsufficientGas):
		return "insufficient_gas"
	case errors.Is(err, royalty.ErrNoPendingDistribution):
		return "no_pending_distribution"
	default:
		return "internal"
	}
}
