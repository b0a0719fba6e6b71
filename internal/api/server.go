// Package api implements the node's HTTP admin surface: transaction
// submission/query, block lookup, and metrics, grounded on
// rechain/internal/api/server.go's gorilla/mux route table and JSON
// response helpers.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/artha-network/artha-core/internal/consensus"
	"github.com/artha-network/artha-core/internal/mempool"
	"github.com/artha-network/artha-core/internal/storage"
)

// Server is the node's HTTP admin surface.
type Server struct {
	engine  *consensus.Engine
	mempool *mempool.Mempool
	store   storage.Store

	httpServer *http.Server
	router     *mux.Router
}

// NewServer wires the HTTP routes to the node's running engine, mempool,
// and store.
func NewServer(engine *consensus.Engine, mp *mempool.Mempool, store storage.Store) *Server {
	s := &Server{
		engine:  engine,
		mempool: mp,
		store:   store,
		router:  mux.NewRouter(),
	}
	s.routes()
	return s
}

// Start starts the API server, blocking until it stops or errors.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	log.Printf("api: HTTP admin surface starting on %s", addr)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/api/transaction", s.handleSubmitTransaction).Methods("POST")
	s.router.HandleFunc("/api/transaction/{id}", s.handleGetTransaction).Methods("GET")
	s.router.HandleFunc("/api/transactions", s.handleListTransactions).Methods("GET")

	s.router.HandleFunc("/api/blocks/{height:[0-9]+}", s.handleGetBlock).Methods("GET")
	s.router.HandleFunc("/api/blocks/latest", s.handleGetLatestBlock).Methods("GET")

	s.router.HandleFunc("/api/metrics", s.handleMetrics).Methods("GET")
}

func (s *Server) respond(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("api: failed to encode response: %v", err)
		}
	}
}

func (s *Server) error(w http.ResponseWriter, err error, status int) {
	s.respond(w, map[string]string{"error": err.Error()}, status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, map[string]interface{}{
		"status": "healthy",
		"height": s.engine.CurrentHeight(),
	}, http.StatusOK)
}

// transactionRequest is the wire shape accepted by POST /api/transaction;
// ID and Timestamp are assigned server-side.
type transactionRequest struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Amount    uint64 `json:"amount"`
	Nonce     uint64 `json:"nonce"`
	GasLimit  uint64 `json:"gas_limit"`
	GasPrice  uint64 `json:"gas_price"`
	ChainID   uint64 `json:"chain_id"`
	Data      []byte `json:"data"`
	Signature []byte `json:"signature"`
}

func (s *Server) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.error(w, err, http.StatusBadRequest)
		return
	}

	tx := &mempool.Transaction{
		ID:        uuid.NewString(),
		Sender:    req.Sender,
		Recipient: req.Recipient,
		Amount:    req.Amount,
		Nonce:     req.Nonce,
		GasLimit:  req.GasLimit,
		GasPrice:  req.GasPrice,
		ChainID:   req.ChainID,
		Data:      req.Data,
		Signature: req.Signature,
		Timestamp: time.Now().UTC(),
	}

	s.mempool.Add(tx, tx.Fee())

	s.respond(w, map[string]interface{}{
		"id":     tx.ID,
		"status": "queued",
	}, http.StatusAccepted)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	tx, ok := s.mempool.Get(id)
	if !ok {
		s.error(w, fmt.Errorf("transaction %s not found in mempool", id), http.StatusNotFound)
		return
	}
	s.respond(w, tx, http.StatusOK)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	txs := s.mempool.TopN(limit)
	s.respond(w, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	}, http.StatusOK)
}

func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	height, err := strconv.ParseUint(mux.Vars(r)["height"], 10, 64)
	if err != nil {
		s.error(w, err, http.StatusBadRequest)
		return
	}
	s.respondBlockKey(w, []byte(fmt.Sprintf("block/%d", height)))
}

func (s *Server) handleGetLatestBlock(w http.ResponseWriter, r *http.Request) {
	s.respondBlockKey(w, []byte("latest-block"))
}

func (s *Server) respondBlockKey(w http.ResponseWriter, key []byte) {
	data, err := s.store.Get(context.Background(), key)
	if err != nil {
		s.error(w, fmt.Errorf("failed to read block: %w", err), http.StatusInternalServerError)
		return
	}
	if data == nil {
		s.error(w, fmt.Errorf("block not found"), http.StatusNotFound)
		return
	}

	var blk map[string]interface{}
	if err := json.Unmarshal(data, &blk); err != nil {
		s.error(w, err, http.StatusInternalServerError)
		return
	}
	s.respond(w, blk, http.StatusOK)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.respond(w, map[string]interface{}{
		"height":        s.engine.CurrentHeight(),
		"mempool_size":  s.mempool.Len(),
	}, http.StatusOK)
}
