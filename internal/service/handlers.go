package service

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/InsulaLabs/msdscript/internal/runner"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeRequestError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, EvalResponse{Error: &ErrorBody{Kind: "request", Message: msg}})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeRequestError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func (s *Service) evalHandler(mode runner.Mode) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req EvalRequest
		if !decodeBody(w, r, &req) {
			return
		}

		out, err := s.runner.Run(r.Context(), mode, req.Source)
		if err != nil {
			s.logger.Debug("evaluation failed", "mode", mode, "error", err)
			writeJSON(w, http.StatusUnprocessableEntity, evalResponse("", err))
			return
		}
		writeJSON(w, http.StatusOK, evalResponse(out, nil))
	})
}

func (s *Service) batchHandler(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	mode, err := runner.ParseMode(req.Mode)
	if err != nil {
		writeRequestError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Sources) > maxBatchSources {
		writeRequestError(w, http.StatusBadRequest, fmt.Sprintf("at most %d sources per batch", maxBatchSources))
		return
	}

	results := s.runner.Batch(r.Context(), mode, req.Sources)
	resp := BatchResponse{Results: make([]EvalResponse, len(results))}
	for i, res := range results {
		resp.Results[i] = evalResponse(res.Output, res.Err)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) pingHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.wsConnectionLock.Lock()
	active := s.activeWsConnections
	s.wsConnectionLock.Unlock()

	writeJSON(w, http.StatusOK, PingResponse{
		Status:         "ok",
		Uptime:         time.Since(s.startedAt).Round(time.Second).String(),
		ActiveSessions: active,
		Cache:          s.runner.CacheStats(),
	})
}
