package allocatecode

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"clinic-workers/internal/common/errors"
	"clinic-workers/internal/common/logger"
	"clinic-workers/internal/common/metrics"
	"clinic-workers/internal/sequence"
)

const (
	TaskType = "allocate-code"
)

// Allocator issues codes for a kind.
type Allocator interface {
	AllocateCode(ctx context.Context, kind sequence.Kind, owner string) (string, int64, error)
}

type Handler struct {
	config    *Config
	allocator Allocator
	errors    *errors.JobErrorHandler
	logger    logger.Logger
}

func NewHandler(config *Config, allocator Allocator, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		allocator: allocator,
		errors:    errors.NewJobErrorHandler(log),
		logger:    log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.errors.HandleJobError(ctx, client, job, errors.NewValidationError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.errors.HandleJobError(ctx, client, job, err)
		return
	}

	cmd, err := client.NewCompleteJobCommand().JobKey(job.Key).VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{"error": err})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{"error": err})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

// Execute allocates the next code. Allocation errors are returned unchanged so
// the process can abort creating the entity.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	kind, scope, err := sequence.ScopeFor(input.Kind, input.Owner)
	if err != nil {
		return nil, err
	}

	code, n, err := h.allocator.AllocateCode(ctx, kind, input.Owner)
	if err != nil {
		return nil, err
	}

	h.logger.Info("code allocated", map[string]interface{}{"scope": scope, "code": code})
	return &Output{Code: code, Value: n, Scope: scope}, nil
}
