// Package web exposes a read-only HTTP surface over the vault: status,
// balance lookups and an SSE event stream. Nothing here mutates state; admin
// operations stay in-process behind the owner check.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/grailfinance/tokenbank/internal/domain"
	"github.com/grailfinance/tokenbank/internal/services/vault"
)

const eventPollInterval = 2 * time.Second

type vaultReader interface {
	Paused() bool
	TotalValue() *big.Int
	Limits() vault.Limits
	BalanceOf(asset, depositor common.Address) *big.Int
}

type eventReader interface {
	EventsAfter(index uint64) ([]domain.EventRecord, error)
}

// Server exposes the JSON endpoints and the SSE stream.
type Server struct {
	Addr    string
	Vault   vaultReader
	Journal eventReader
	Logger  *zap.Logger
}

func NewServer(addr string, v vaultReader, journal eventReader, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{Addr: addr, Vault: v, Journal: journal, Logger: logger}
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/balance", s.handleBalance)
	mux.HandleFunc("/api/events/stream", s.handleEventStream)

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type statusResponse struct {
	Paused               bool   `json:"paused"`
	TotalValue           string `json:"total_value"`
	TotalValueDisplay    string `json:"total_value_display"`
	CapacityCeiling      string `json:"capacity_ceiling"`
	PerWithdrawalCeiling string `json:"per_withdrawal_ceiling"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	limits := s.Vault.Limits()
	total := s.Vault.TotalValue()

	writeJSON(w, statusResponse{
		Paused:               s.Vault.Paused(),
		TotalValue:           total.String(),
		TotalValueDisplay:    displayReference(total),
		CapacityCeiling:      limits.CapacityCeiling.String(),
		PerWithdrawalCeiling: limits.PerWithdrawalCeiling.String(),
	})
}

type balanceResponse struct {
	Asset     string `json:"asset"`
	Depositor string `json:"depositor"`
	Balance   string `json:"balance"`
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	assetParam := r.URL.Query().Get("asset")
	depositorParam := r.URL.Query().Get("depositor")
	if depositorParam == "" || !common.IsHexAddress(depositorParam) {
		http.Error(w, "depositor must be a hex address", http.StatusBadRequest)
		return
	}
	asset := domain.NativeAsset
	if assetParam != "" {
		if !common.IsHexAddress(assetParam) {
			http.Error(w, "asset must be a hex address", http.StatusBadRequest)
			return
		}
		asset = common.HexToAddress(assetParam)
	}
	depositor := common.HexToAddress(depositorParam)

	writeJSON(w, balanceResponse{
		Asset:     asset.Hex(),
		Depositor: depositor.Hex(),
		Balance:   s.Vault.BalanceOf(asset, depositor).String(),
	})
}

func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if s.Journal == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "event journal not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// comment heartbeat every 30s so proxies keep the connection
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()
	poll := time.NewTicker(eventPollInterval)
	defer poll.Stop()

	var lastIndex uint64
	send := func() bool {
		records, err := s.Journal.EventsAfter(lastIndex)
		if err != nil {
			s.Logger.Warn("failed to read journal for stream", zap.Error(err))
			return true
		}
		for _, rec := range records {
			payload, err := json.Marshal(rec.Event)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %d\ndata: %s\n\n", rec.Index, payload); err != nil {
				return false
			}
			lastIndex = rec.Index
		}
		flusher.Flush()
		return true
	}

	if !send() {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-poll.C:
			if !send() {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// displayReference renders a scaled reference-currency integer as a
// human-readable decimal string.
func displayReference(v *big.Int) string {
	return decimal.NewFromBigInt(v, -domain.PriceDecimals).String()
}
