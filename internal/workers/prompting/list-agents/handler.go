// internal/workers/prompting/list-agents/handler.go
package listagents

import (
	"context"
	"time"

	apperrors "prompt-switcher/internal/common/errors"
	"prompt-switcher/internal/common/logger"
	"prompt-switcher/internal/common/metrics"
	"prompt-switcher/internal/prompts"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "list-agents"
)

type Lister interface {
	ListAgents(ctx context.Context) ([]prompts.Metadata, error)
}

// Handler publishes the active template metadata so a process can offer
// agent choices before calling optimize-prompt.
type Handler struct {
	config *Config
	lister Lister
	errors *apperrors.ErrorHandler
	logger logger.Logger
}

func NewHandler(config *Config, lister Lister, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: config,
		lister: lister,
		errors: apperrors.NewErrorHandler(log),
		logger: log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.Execute(ctx)
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.FromError(err).Code)).Inc()
		h.errors.HandleJobError(context.Background(), client, job, err)
		return
	}

	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{"error": err.Error()})
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{"error": err.Error()})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) Execute(ctx context.Context) (*Output, error) {
	agents, err := h.lister.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	if agents == nil {
		agents = []prompts.Metadata{}
	}
	return &Output{Agents: agents, AgentCount: len(agents)}, nil
}
