package handlers

import (
	"errors"
	"net/http"

	"github.com/hirescreen/hirescreen/internal/agent"
)

// AgentsHandler exposes the registry: listing, metrics and manual restarts.
type AgentsHandler struct {
	orch *agent.Orchestrator
}

func NewAgentsHandler(orch *agent.Orchestrator) *AgentsHandler {
	return &AgentsHandler{orch: orch}
}

func (h *AgentsHandler) List(w http.ResponseWriter, r *http.Request) {
	agents := h.orch.Registry().GetAllAgents()
	out := make([]map[string]any, 0, len(agents))
	for _, a := range agents {
		out = append(out, map[string]any{
			"agent_id":   a.ID(),
			"name":       a.Name(),
			"type":       a.Type(),
			"is_healthy": a.IsHealthy(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agents":   out,
		"registry": h.orch.Registry().Metrics(),
	})
}

func (h *AgentsHandler) AllMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orch.AllAgentMetrics())
}

func (h *AgentsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	m, err := h.orch.AgentMetrics(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *AgentsHandler) Restart(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.orch.RestartAgent(r.Context(), id); err != nil {
		if errors.Is(err, agent.ErrAgentNotFound) {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agent_id": id, "status": "restarted"})
}

func (h *AgentsHandler) System(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orch.SystemMetrics())
}
