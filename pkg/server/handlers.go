package server

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/GoodDollar/reputation-airdrop-go/pkg/airdrop"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/ledger"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/persistence"
)

// handleProof handles GET /proof/{address}
func (s *Server) handleProof(w http.ResponseWriter, r *http.Request) {
	addrHex := r.PathValue("address")
	if !common.IsHexAddress(addrHex) {
		http.Error(w, "Invalid address", http.StatusBadRequest)
		return
	}
	addr := common.HexToAddress(addrHex)

	var (
		proof *ledger.Proof
		err   error
	)
	if id := r.URL.Query().Get("snapshot"); id != "" {
		proof, err = s.service.ProofFromSnapshot(id, addr)
	} else {
		proof, err = s.service.ProofFor(addr)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, proof)
}

// handleActiveSnapshot handles GET /snapshot
func (s *Server) handleActiveSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.ActiveSnapshot()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, persistence.MetaFromSnapshot(snap))
}

// handleListSnapshots handles GET /snapshots
func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	metas, err := s.service.ListSnapshots()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, metas)
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.service.HealthCheck(); err != nil {
		s.logger.Sugar().Warnw("Health check failed", "error", err)
		http.Error(w, "Unhealthy", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		http.Error(w, "Address not in snapshot", http.StatusNotFound)
	case errors.Is(err, persistence.ErrSnapshotNotFound):
		http.Error(w, "Snapshot not found", http.StatusNotFound)
	case errors.Is(err, airdrop.ErrNoActiveSnapshot):
		http.Error(w, "No active snapshot", http.StatusServiceUnavailable)
	default:
		s.logger.Sugar().Errorw("Request failed", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
