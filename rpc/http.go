package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"shade/contract"
	cerrors "shade/core/errors"
	"shade/core/events"
	"shade/observability"
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
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeContractError  = -32050
)

// Server exposes the contract over JSON-RPC 2.0 with a hand-written method
// dispatch table. Mutating methods carry a signed envelope; the recovered
// signer is the caller identity handed to the contract.
type Server struct {
	shade     contract.Shade
	journal   *events.Journal
	authToken string
	logger    *slog.Logger
	metrics   *observability.RPCMetrics
}

// NewServer creates a JSON-RPC server over the provided contract. journal may
// be nil when the host keeps no queryable event log; authToken, when
// non-empty, additionally gates mutating methods behind a bearer token.
func NewServer(shade contract.Shade, journal *events.Journal, authToken string, logger *slog.Logger) *Server {
	return &Server{
		shade:     shade,
		journal:   journal,
		authToken: strings.TrimSpace(authToken),
		logger:    logger,
		metrics:   observability.Metrics(),
	}
}

// Router assembles the HTTP surface: the RPC endpoint, health and metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/", s.handle)
	return otelhttp.NewHandler(r, "shade-rpc")
}

// Start serves the router on addr until the listener fails.
func (s *Server) Start(addr string) error {
	if s.logger != nil {
		s.logger.Info("starting JSON-RPC server", slog.String("addr", addr))
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}

// RPCRequest is a JSON-RPC 2.0 request with positional parameters.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// contractError renders a contract failure with its stable numeric code;
// host-level failures fall through as plain server errors.
func contractError(err error) *RPCError {
	if code, ok := cerrors.CodeOf(err); ok {
		return &RPCError{
			Code:    codeContractError,
			Message: err.Error(),
			Data:    map[string]uint32{"contractError": uint32(code)},
		}
	}
	return &RPCError{Code: codeServerError, Message: err.Error()}
}

func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	supplied := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(s.authToken)) == 1
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

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
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON-RPC request", nil)
		return
	}
	if req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported JSON-RPC version", nil)
		return
	}
	method := strings.TrimSpace(req.Method)
	if method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	if mutatingMethods[method] && !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "missing or invalid bearer token", nil)
		return
	}

	start := time.Now()
	result, rpcErr := s.dispatch(method, req.Params)
	outcome := "ok"
	if rpcErr != nil {
		outcome = "error"
		if data, okData := rpcErr.Data.(map[string]uint32); okData {
			s.metrics.ObserveError(method, strconv.FormatUint(uint64(data["contractError"]), 10))
		} else {
			s.metrics.ObserveError(method, "host")
		}
	}
	s.metrics.ObserveRequest(method, outcome, start)

	if rpcErr != nil {
		status := http.StatusOK
		if rpcErr.Code == codeMethodNotFound {
			status = http.StatusNotFound
		}
		writeError(w, status, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	writeResult(w, req.ID, result)
}
