// internal/workers/prompting/optimize-prompt/handler.go
package optimizeprompt

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	apperrors "prompt-switcher/internal/common/errors"
	"prompt-switcher/internal/common/logger"
	"prompt-switcher/internal/common/metrics"
	"prompt-switcher/internal/common/validation"
	"prompt-switcher/internal/prompts"
	"prompt-switcher/internal/switcher"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "optimize-prompt"
)

// Optimizer is the part of the switcher service this worker drives.
type Optimizer interface {
	Optimize(ctx context.Context, text string, agentID *prompts.ID) (*switcher.OptimizeResult, error)
}

type Handler struct {
	config    *Config
	optimizer Optimizer
	errors    *apperrors.ErrorHandler
	logger    logger.Logger
}

func NewHandler(config *Config, optimizer Optimizer, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		optimizer: optimizer,
		errors:    apperrors.NewErrorHandler(log),
		logger:    log,
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

	output, err := h.process(ctx, job.Variables)
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.FromError(err).Code)).Inc()
		h.errors.HandleJobError(context.Background(), client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) process(ctx context.Context, variables string) (*Output, error) {
	input, err := DecodeInput(variables)
	if err != nil {
		return nil, err
	}
	return h.Execute(ctx, input)
}

// DecodeInput validates the job variables and decodes them into an Input.
func DecodeInput(variables string) (*Input, error) {
	result, err := validation.OptimizeJob.ValidateJSON([]byte(variables))
	if err != nil {
		return nil, apperrors.NewInvalidRequestError(err.Error())
	}
	if !result.Valid {
		return nil, apperrors.NewInvalidRequestError(result.Summary())
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(variables)))
	dec.UseNumber()
	var input Input
	if err := dec.Decode(&input); err != nil {
		return nil, apperrors.NewInvalidRequestError("parse input: " + err.Error())
	}
	return &input, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	result, err := h.optimizer.Optimize(ctx, input.Text, input.AgentID)
	if err != nil {
		return nil, err
	}

	output := &Output{
		OptimizedText: result.OptimizedText,
		RoutingMode:   string(result.Mode),
		Fallback:      result.Fallback,
	}
	if result.Agent != nil {
		id := result.Agent.ID
		output.AgentID = &id
		output.AgentName = result.Agent.Name
	}
	return output, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	h.logger.Info("job completed", map[string]interface{}{
		"jobKey":      job.Key,
		"routingMode": output.RoutingMode,
		"fallback":    output.Fallback,
	})
}
