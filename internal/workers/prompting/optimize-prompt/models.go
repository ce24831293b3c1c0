// internal/workers/prompting/optimize-prompt/models.go
package optimizeprompt

import "prompt-switcher/internal/prompts"

// Input is read from the job variables. Without agentId the request is
// routed automatically.
type Input struct {
	Text    string      `json:"text"`
	AgentID *prompts.ID `json:"agentId,omitempty"`
}

type Output struct {
	OptimizedText string      `json:"optimizedText"`
	AgentID       *prompts.ID `json:"agentId,omitempty"`
	AgentName     string      `json:"agentName,omitempty"`
	RoutingMode   string      `json:"routingMode"`
	Fallback      bool        `json:"fallback"`
}
