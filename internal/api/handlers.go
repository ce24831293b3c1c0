package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"prompt-switcher/internal/classifier"
	apperrors "prompt-switcher/internal/common/errors"
	"prompt-switcher/internal/common/validation"
	"prompt-switcher/internal/prompts"
	"prompt-switcher/internal/settings"
)

const maxBodyBytes = 1 << 20

type OptimizeRequest struct {
	Text    string      `json:"text"`
	AgentID *prompts.ID `json:"agent_id"`
}

type AgentsResponse struct {
	Agents []prompts.Metadata `json:"agents"`
}

type SettingsRequest struct {
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
	Prompts []any  `json:"prompts"`
	Verify  bool   `json:"verify"`
}

type SettingsResponse struct {
	APIKey     string `json:"api_key"`
	Model      string `json:"model"`
	Prompts    []any  `json:"prompts"`
	Configured bool   `json:"configured"`
}

type VerifyRequest struct {
	APIKey string `json:"api_key"`
	Model  string `json:"model"`
}

// decodeBody reads r's body, validates it against schema and decodes it
// into v with numbers kept as json.Number.
func (h *handlers) decodeBody(w http.ResponseWriter, r *http.Request, schema *validation.Schema, v any) bool {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", string(apperrors.ErrCodeInvalidRequest))
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body", string(apperrors.ErrCodeInvalidRequest))
		return false
	}

	result, err := schema.ValidateJSON(data)
	if err != nil {
		h.writeAppError(w, r, apperrors.NewInvalidRequestError(err.Error()))
		return false
	}
	if !result.Valid {
		h.writeAppError(w, r, apperrors.NewInvalidRequestError(result.Summary()))
		return false
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		h.writeAppError(w, r, apperrors.NewInvalidRequestError(err.Error()))
		return false
	}
	return true
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ready is 200 once templates are loaded and every dependency answers.
func (h *handlers) ready(w http.ResponseWriter, r *http.Request) {
	status := h.switcher.Status()
	body := map[string]interface{}{
		"status":     "ready",
		"templates":  status.Templates,
		"configured": status.Configured,
	}
	code := http.StatusOK

	if !status.Ready {
		body["status"] = "not ready"
		body["reason"] = "prompt templates not loaded"
		code = http.StatusServiceUnavailable
	}

	failed := map[string]string{}
	for name, check := range h.readyChecks {
		if err := check(r.Context()); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		body["status"] = "not ready"
		body["dependencies"] = failed
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, body)
}

// listAgents handles GET /api/v1/agents.
func (h *handlers) listAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.switcher.ListAgents(r.Context())
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AgentsResponse{Agents: agents})
}

// optimize handles POST /api/v1/optimize. Without agent_id the request is
// routed automatically.
func (h *handlers) optimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if !h.decodeBody(w, r, validation.OptimizeRequest, &req) {
		return
	}

	result, err := h.switcher.Optimize(r.Context(), req.Text, req.AgentID)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) getSettings(w http.ResponseWriter, r *http.Request) {
	h.writeSettings(w, r, http.StatusOK)
}

// putSettings handles PUT /api/v1/settings. With "verify": true and a new
// api_key, the key and model are checked before anything is saved.
func (h *handlers) putSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if !h.decodeBody(w, r, validation.SettingsRequest, &req) {
		return
	}

	if req.Verify && req.APIKey != "" {
		if err := h.switcher.VerifyModel(r.Context(), req.APIKey, req.Model); err != nil {
			h.writeAppError(w, r, err)
			return
		}
	}

	update := &settings.Settings{APIKey: req.APIKey, Model: req.Model, Prompts: req.Prompts}
	if err := h.switcher.SaveSettings(r.Context(), update); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeSettings(w, r, http.StatusOK)
}

func (h *handlers) deleteSettings(w http.ResponseWriter, r *http.Request) {
	if err := h.switcher.ClearSettings(r.Context()); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// verifySettings handles POST /api/v1/settings/verify.
func (h *handlers) verifySettings(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !h.decodeBody(w, r, validation.VerifyRequest, &req) {
		return
	}
	if err := h.switcher.VerifyModel(r.Context(), req.APIKey, req.Model); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"valid": true, "model": modelOrDefault(req.Model)})
}

func (h *handlers) writeSettings(w http.ResponseWriter, r *http.Request, status int) {
	stored, err := h.switcher.Settings(r.Context())
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	records := stored.Prompts
	if records == nil {
		records = []any{}
	}
	writeJSON(w, status, SettingsResponse{
		APIKey:     stored.APIKey,
		Model:      stored.Model,
		Prompts:    records,
		Configured: h.switcher.Status().Configured,
	})
}

func modelOrDefault(model string) string {
	if model == "" {
		return classifier.DefaultModel
	}
	return model
}
