package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/promptledger/promptledger"
	"github.com/promptledger/promptledger/telemetry"
)

// errInvalidBody marks request decoding failures so writeError maps them to 400.
var errInvalidBody = errors.New("invalid request body")

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"prompt_count": len(s.store.IDs()),
		"record_count": s.store.Len(),
		"load_issues":  len(s.store.Issues()),
	})
}

func (s *Server) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	def, err := s.store.Resolve(r.PathValue("id"), r.URL.Query().Get("version"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, definitionDoc(def))
}

// definitionDoc is the wire shape of a definition, matching the YAML field
// names so a served definition looks like its source record.
func definitionDoc(d *promptledger.Definition) map[string]any {
	doc := map[string]any{
		"prompt_id":   d.ID,
		"version":     d.Version,
		"description": d.Description,
		"template":    d.Template,
		"variables":   d.Variables(),
	}
	if len(d.ExampleInputs) > 0 {
		doc["example_inputs"] = d.ExampleInputs
	}
	if d.OutputSchema != nil {
		doc["expected_output_schema"] = d.OutputSchema
	}
	return doc
}

type renderRequest struct {
	Version string         `json:"version"`
	Inputs  map[string]any `json:"inputs"`
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	def, err := s.store.Resolve(r.PathValue("id"), req.Version)
	if err != nil {
		s.writeError(w, err)
		return
	}
	rendered, err := def.Render(req.Inputs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := map[string]any{
		"prompt_id": def.ID,
		"version":   def.Version,
		"rendered":  rendered,
	}
	if n, err := s.tokens.Count(rendered); err == nil {
		resp["token_estimate"] = n
	}
	writeJSON(w, http.StatusOK, resp)
}

type validateRequest struct {
	Version string `json:"version"`
	Output  any    `json:"output"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	def, err := s.store.Resolve(r.PathValue("id"), req.Version)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := def.ValidateOutput(req.Output); err != nil {
		var sve *promptledger.SchemaViolationError
		if errors.As(err, &sve) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"valid":      false,
				"violations": sve.Violations,
			})
			return
		}
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

type logRequest struct {
	Version   string         `json:"version"`
	Input     any            `json:"input"`
	Response  any            `json:"response"`
	LatencyMs *float64       `json:"latency_ms"`
	Metadata  map[string]any `json:"metadata"`
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	var req logRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	def, err := s.store.Resolve(r.PathValue("id"), req.Version)
	if err != nil {
		s.writeError(w, err)
		return
	}
	event := &promptledger.UsageEvent{
		PromptID:  def.ID,
		Version:   def.Version,
		LatencyMs: req.LatencyMs,
		Input:     req.Input,
		Response:  req.Response,
		Metadata:  req.Metadata,
	}
	if err := event.Validate(); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errInvalidBody, err))
		return
	}
	// Schema checking at log time is advisory: a nonconforming response is
	// still recorded, annotated so it can be found later. Callers that want
	// rejection use /validate first.
	if req.Response != nil {
		if verr := def.ValidateOutput(req.Response); verr != nil {
			if event.Metadata == nil {
				event.Metadata = make(map[string]any)
			}
			event.Metadata["validation_error"] = verr.Error()
		}
	}
	stored, err := s.recorder.Record(r.Context(), event)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "record": stored})
}

// metricsDoc is the wire shape of one prompt's aggregates. Aggregates that
// have no source data yet serialize as null rather than zero values.
type metricsDoc struct {
	Count         int64    `json:"count"`
	AvgLatencyMs  *float64 `json:"avg_latency_ms"`
	LastSeen      *string  `json:"last_seen"`
	LatestVersion *string  `json:"latest_version"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.recorder.Snapshot()
	docs := make(map[string]metricsDoc, len(snapshot))
	for id, entry := range snapshot {
		doc := metricsDoc{Count: entry.Count}
		if entry.LatencySamples > 0 {
			avg := entry.AvgLatencyMs
			doc.AvgLatencyMs = &avg
		}
		if !entry.LastSeen.IsZero() {
			seen := entry.LastSeen.UTC().Format(time.RFC3339Nano)
			doc.LastSeen = &seen
		}
		if entry.LatestVersion != "" {
			v := entry.LatestVersion
			doc.LatestVersion = &v
		}
		docs[id] = doc
	}
	writeJSON(w, http.StatusOK, map[string]any{"metrics": docs})
}

func (s *Server) handleLastUsage(w http.ResponseWriter, _ *http.Request) {
	event, ok := s.recorder.LastEvent()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no usage events logged"})
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// decodeJSON decodes the request body, capped at the largest usage event the
// log accepts; a larger body cannot produce a storable record anyway.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, telemetry.MaxEventBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes: %w", tooLarge.Limit, err)
		}
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}

// writeError maps domain errors onto HTTP statuses: unknown prompt or
// version is 404, caller mistakes (bad body, missing variable) are 400,
// oversized bodies and events are 413, schema violations are 422, and
// anything else, including storage failures, is 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, promptledger.ErrUnknownPrompt),
		errors.Is(err, promptledger.ErrUnknownVersion):
		status = http.StatusNotFound
	case errors.As(err, &tooLarge),
		errors.Is(err, telemetry.ErrEventTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, errInvalidBody),
		errors.Is(err, promptledger.ErrMissingVariable),
		errors.Is(err, promptledger.ErrTemplateRender):
		status = http.StatusBadRequest
	case errors.Is(err, promptledger.ErrSchemaViolation):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	body := map[string]any{"error": err.Error()}
	var sve *promptledger.SchemaViolationError
	if errors.As(err, &sve) {
		body["violations"] = sve.Violations
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
