// internal/workers/prompting/list-agents/models.go
package listagents

import "prompt-switcher/internal/prompts"

type Output struct {
	Agents     []prompts.Metadata `json:"agents"`
	AgentCount int                `json:"agentCount"`
}
