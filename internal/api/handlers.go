package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/PrateekKumar1709/policyguard/internal/audit"
	"github.com/PrateekKumar1709/policyguard/internal/incident"
	"github.com/PrateekKumar1709/policyguard/internal/server"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

func (d *Dependencies) handleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ToolsResp{Tools: server.Ops})
}

func (d *Dependencies) handleTool(w http.ResponseWriter, r *http.Request) {
	op := server.Op(chi.URLParam(r, "tool"))

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	_ = r.Body.Close()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Failed to read request body"})
		return
	}

	result, err := d.Guard.Dispatch(r.Context(), op, json.RawMessage(body))
	if err != nil {
		d.writeError(w, err, zap.String("tool", string(op)))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (d *Dependencies) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.Guard.Agents.List(r.Context()))
}

func (d *Dependencies) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := d.Guard.Agents.Get(r.Context(), chi.URLParam(r, "agent_id"))
	if err != nil {
		d.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (d *Dependencies) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.Guard.Policies.List(r.Context()))
}

func (d *Dependencies) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := d.Guard.Policies.Get(r.Context(), chi.URLParam(r, "policy_id"))
	if err != nil {
		d.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (d *Dependencies) handleSetPolicyEnabled(w http.ResponseWriter, r *http.Request) {
	var req SetPolicyEnabledReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body", Kind: server.KindInvalidArgument})
		return
	}
	if req.Enabled == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "enabled is required", Kind: server.KindInvalidArgument})
		return
	}

	p, err := d.Guard.Policies.SetEnabled(r.Context(), chi.URLParam(r, "policy_id"), *req.Enabled)
	if err != nil {
		d.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (d *Dependencies) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := incident.Filter{
		AgentID:  q.Get("agent_id"),
		Severity: incident.Severity(q.Get("severity")),
	}
	window, err := audit.ParseTimeRange(q.Get("time_range"))
	if err != nil {
		d.writeError(w, err)
		return
	}
	if window > 0 {
		f.Since = time.Now().UTC().Add(-window)
	}

	incs, err := d.Guard.Incidents.List(r.Context(), f)
	if err != nil {
		d.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, incs)
}

// writeError maps an operation error to a status code and logs server-side
// failures.
func (d *Dependencies) writeError(w http.ResponseWriter, err error, fields ...zap.Field) {
	kind := server.Classify(err)
	status := http.StatusInternalServerError
	switch kind {
	case server.KindNotFound:
		status = http.StatusNotFound
	case server.KindInvalidTrustLevel, server.KindInvalidAction, server.KindEmptyRules:
		status = http.StatusUnprocessableEntity
	case server.KindInvalidArgument:
		status = http.StatusBadRequest
		if errors.Is(err, server.ErrUnknownOperation) {
			status = http.StatusNotFound
		}
	}

	detail := err.Error()
	if status == http.StatusInternalServerError {
		d.Logger.Error("request failed", append(fields, zap.Error(err))...)
		detail = "Internal error"
		if kind == server.KindStorage {
			detail = "Storage error"
		}
	}
	writeJSON(w, status, ErrorResp{Detail: detail, Kind: kind})
}
