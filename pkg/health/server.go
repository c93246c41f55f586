// Package health serves the engine's HTTP surface: health and readiness
// probes, operational status, Prometheus metrics, and the swap API.
package health

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/swaprun-hq/swaprunner/pkg/circuitbreaker"
	"github.com/swaprun-hq/swaprunner/pkg/engine"
	"github.com/swaprun-hq/swaprunner/pkg/logger"
	"github.com/swaprun-hq/swaprunner/pkg/models"
	"github.com/swaprun-hq/swaprunner/pkg/swaperr"
)

// Server represents the HTTP server wrapping a swap engine
type Server struct {
	port          string
	engine        *engine.Engine
	breaker       *circuitbreaker.CircuitBreaker
	metricsAPIKey string
	logger        logger.Logger
}

// NewServer creates a new server
func NewServer(port string, eng *engine.Engine, breaker *circuitbreaker.CircuitBreaker, log logger.Logger) *Server {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Server{
		port:          port,
		engine:        eng,
		breaker:       breaker,
		metricsAPIKey: os.Getenv("METRICS_API_KEY"),
		logger:        log,
	}
}

// metricsAuthMiddleware is a middleware that checks for a valid API key
func (s *Server) metricsAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth if no API key is configured
		if s.metricsAPIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		if parts[1] != s.metricsAPIKey {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Start starts the server. It blocks until the listener fails.
func (s *Server) Start() {
	s.logger.InfoWithScope(logger.API, "starting API server on port %s", s.port)
	if err := http.ListenAndServe(":"+s.port, s.Handler()); err != nil {
		s.logger.ErrorWithScope(logger.API, "API server error: %v", err)
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Readiness check
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if s.breaker.IsOpen() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("Circuit breaker open"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Ready"))
	})

	// Operational status endpoint
	mux.HandleFunc("/status", s.handleStatus)

	// Circuit breaker admin control endpoint
	mux.HandleFunc("/circuit/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.breaker.Reset()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Circuit breaker reset"))
	})

	// Swap API
	mux.HandleFunc("/api/v1/swap", s.handleSwap)
	mux.HandleFunc("/api/v1/quote", s.handleQuote)
	mux.HandleFunc("/api/v1/tx/", s.handleTxStatus)

	// Expose Prometheus metrics with API key authentication
	mux.Handle("/metrics", s.metricsAuthMiddleware(promhttp.Handler()))

	return mux
}

// handleStatus reports the breaker state and the engine account.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	failures, tripped, tripTime := s.breaker.State()

	circuit := "closed"
	if tripped {
		circuit = "open"
	}
	status := map[string]interface{}{
		"account":          s.engine.Owner().Hex(),
		"circuit":          circuit,
		"circuit_failures": failures,
	}
	if tripped {
		status["circuit_tripped_at"] = tripTime
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.ErrorWithScope(logger.API, "error encoding status JSON: %v", err)
	}
}

// swapRequestBody is the JSON shape accepted by POST /api/v1/swap.
// SlippageBps is a pointer so an explicit 0 stays distinguishable from an
// omitted field; only the latter gets the configured default.
type swapRequestBody struct {
	Direction   string  `json:"direction"`
	Amount      string  `json:"amount"`
	SlippageBps *uint32 `json:"slippage_bps"`
}

func (b swapRequestBody) toModel(defaultSlippageBps uint32) (models.SwapRequest, error) {
	amount, err := decimal.NewFromString(b.Amount)
	if err != nil {
		return models.SwapRequest{}, swaperr.New(swaperr.KindValidation, "invalid amount %q", b.Amount)
	}
	slippage := defaultSlippageBps
	if b.SlippageBps != nil {
		slippage = *b.SlippageBps
	}
	return models.SwapRequest{
		Direction:   models.Direction(b.Direction),
		Amount:      amount,
		SlippageBps: slippage,
	}, nil
}

// handleSwap executes a swap synchronously and returns its result.
func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var body swapRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	req, err := body.toModel(s.engine.DefaultSlippageBps())
	if err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.engine.Execute(r.Context(), req)
	code := http.StatusOK
	if err != nil {
		code = errorStatusCode(err)
	}
	s.writeJSON(w, code, result)
}

// handleQuote returns an estimate plus account readiness, without executing.
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var body swapRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	req, err := body.toModel(s.engine.DefaultSlippageBps())
	if err != nil {
		s.writeError(w, err)
		return
	}

	snapshot, err := s.engine.Snapshot(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

// handleTxStatus reports a single lifecycle observation for a hash.
func (s *Server) handleTxStatus(w http.ResponseWriter, r *http.Request) {
	hashHex := strings.TrimPrefix(r.URL.Path, "/api/v1/tx/")
	if len(strings.TrimPrefix(hashHex, "0x")) != 64 {
		http.Error(w, "Invalid transaction hash", http.StatusBadRequest)
		return
	}

	status, err := s.engine.Tracker().CheckOnce(r.Context(), common.HexToHash(hashHex))
	if err != nil {
		s.writeError(w, err)
		return
	}

	response := map[string]interface{}{
		"tx_hash":       status.TxHash.Hex(),
		"state":         status.State,
		"confirmations": status.Confirmations,
	}
	if status.Receipt != nil {
		response["gas_used"] = status.Receipt.GasUsed
		if status.Receipt.BlockNumber != nil {
			response["block_number"] = status.Receipt.BlockNumber.Uint64()
		}
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.ErrorWithScope(logger.API, "error encoding response JSON: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, errorStatusCode(err), map[string]string{
		"error_kind": string(swaperr.KindOf(err)),
		"error":      err.Error(),
	})
}

// errorStatusCode maps error kinds onto HTTP status codes.
func errorStatusCode(err error) int {
	switch swaperr.KindOf(err) {
	case swaperr.KindValidation:
		return http.StatusBadRequest
	case swaperr.KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	case swaperr.KindQuoteUnavailable:
		return http.StatusServiceUnavailable
	case swaperr.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
