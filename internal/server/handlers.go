package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/sentra-io/sentra/internal/drift"
	"github.com/sentra-io/sentra/internal/engine"
	"github.com/sentra-io/sentra/internal/pelm"
	"github.com/sentra-io/sentra/internal/provenance"
	"github.com/sentra-io/sentra/internal/requestctx"
	"github.com/sentra-io/sentra/internal/vecmath"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	}
	if r.URL.Query().Get("detail") == "true" {
		components := map[string]string{
			"engine": "ok",
		}
		if s.snapshots == nil {
			components["snapshot_store"] = "disabled"
		} else {
			components["snapshot_store"] = "ok"
		}
		if s.limiter == nil {
			components["rate_limiter"] = "disabled"
		} else {
			components["rate_limiter"] = "ok"
		}
		resp["components"] = components
	}
	writeJSON(w, http.StatusOK, resp)
}

type eventRequest struct {
	Text       string    `json:"text"`
	Vector     []float32 `json:"vector,omitempty"`
	Phase      float64   `json:"phase"`
	Score      float64   `json:"score"`
	Source     string    `json:"source"`
	Confidence float64   `json:"confidence"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	source, err := provenance.ParseSource(req.Source)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	prov, err := provenance.New(source, req.Confidence, req.Text, time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	caller := requestctx.Caller(r.Context())
	snap, err := s.engine.ProcessEvent(r.Context(), engine.Event{
		CallerKey: caller,
		Text:      req.Text,
		Vector:    req.Vector,
		Phase:     req.Phase,
		Score:     req.Score,
		Prov:      prov,
	})
	if err != nil {
		s.writeEngineError(w, caller, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type generateRequest struct {
	Prompt string  `json:"prompt"`
	Score  float64 `json:"score"`
	Phase  float64 `json:"phase"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "prompt is required")
		return
	}

	caller := requestctx.Caller(r.Context())
	result, err := s.engine.Generate(r.Context(), engine.GenerateRequest{
		CallerKey: caller,
		Prompt:    req.Prompt,
		Score:     req.Score,
		Phase:     req.Phase,
	})
	if err != nil {
		if errors.Is(err, engine.ErrNoProvider) {
			writeError(w, http.StatusServiceUnavailable, "no_provider", err.Error())
			return
		}
		s.writeEngineError(w, caller, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type retrieveRequest struct {
	Text               string    `json:"text"`
	Vector             []float32 `json:"vector,omitempty"`
	TopK               int       `json:"top_k"`
	IncludeQuarantined bool      `json:"include_quarantined"`
	MinConfidence      float64   `json:"min_confidence"`
	ExactPhase         bool      `json:"exact_phase"`
}

type retrievedRecord struct {
	MemoryID    uint64  `json:"memory_id"`
	Phase       float64 `json:"phase"`
	Source      string  `json:"source"`
	Confidence  float64 `json:"confidence"`
	TrustTier   int     `json:"trust_tier"`
	Quarantined bool    `json:"quarantined"`
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}
	opts := pelm.Options{
		IncludeQuarantined: req.IncludeQuarantined,
		MinConfidence:      req.MinConfidence,
		ExactPhase:         req.ExactPhase,
	}

	var (
		recs []pelm.Record
		err  error
	)
	if req.Vector != nil {
		recs, err = s.engine.Retrieve(r.Context(), req.Vector, topK, opts)
	} else if req.Text != "" {
		recs, err = s.engine.RetrieveText(r.Context(), req.Text, topK, opts)
	} else {
		writeError(w, http.StatusBadRequest, "invalid_request", "text or vector is required")
		return
	}
	if err != nil {
		if errors.Is(err, engine.ErrNoVector) {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	out := make([]retrievedRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, retrievedRecord{
			MemoryID:    rec.MemoryID,
			Phase:       rec.Phase,
			Source:      rec.Prov.Source.String(),
			Confidence:  rec.Prov.Confidence,
			TrustTier:   rec.Prov.TrustTier,
			Quarantined: rec.Quarantined,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": out})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.engine.State()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime":      time.Since(s.startTime).String(),
		"drift_state": st.DriftState,
		"ring_used":   st.RingSize,
		"ring_cap":    st.RingCapacity,
		"events":      st.SynapticEvents,
		"halted":      st.DriftState == drift.StateHalt.String(),
	})
}

func (s *Server) handleCallerReset(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "caller key is required")
		return
	}
	s.engine.ResetCaller(key)
	log.Info().Str("caller", key).Msg("caller_reset")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "caller": key})
}

func (s *Server) handleSnapshotSave(w http.ResponseWriter, r *http.Request) {
	id, err := s.engine.SaveSnapshot(r.Context())
	if err != nil {
		if errors.Is(err, engine.ErrSnapshotsDisabled) {
			writeError(w, http.StatusServiceUnavailable, "snapshots_disabled", err.Error())
			return
		}
		log.Error().Err(err).Msg("snapshot_save_error")
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleSnapshotList(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshots_disabled", "no snapshot store is configured")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	infos, err := s.snapshots.List(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("snapshot_list_error")
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"snapshots": infos})
}

// writeEngineError maps pipeline errors onto HTTP statuses. Quarantined
// callers get 403; input validation gets 400; anything else is a 500.
func (s *Server) writeEngineError(w http.ResponseWriter, caller string, err error) {
	switch {
	case errors.Is(err, engine.ErrCallerQuarantined):
		writeError(w, http.StatusForbidden, "caller_quarantined", err.Error())
	case errors.Is(err, engine.ErrScoreOutOfRange),
		errors.Is(err, engine.ErrEventPhaseRange),
		errors.Is(err, engine.ErrNoVector),
		errors.Is(err, engine.ErrCallerKeyRequired),
		errors.Is(err, vecmath.ErrDimensionMismatch):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		log.Error().Err(err).Str("caller", caller).Msg("event_pipeline_error")
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}
