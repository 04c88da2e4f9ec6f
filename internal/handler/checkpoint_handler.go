package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/crowdsense/internal/dto"
	"github.com/prohmpiriya/crowdsense/internal/service"
	"github.com/prohmpiriya/crowdsense/pkg/response"
	"github.com/prohmpiriya/crowdsense/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CheckpointHandler handles token scans from physical checkpoints
type CheckpointHandler struct {
	gate service.CheckpointGate
}

// NewCheckpointHandler creates a new checkpoint handler
func NewCheckpointHandler(gate service.CheckpointGate) *CheckpointHandler {
	return &CheckpointHandler{gate: gate}
}

// ScanEntry handles POST /checkpoints/:checkpoint_id/entry
func (h *CheckpointHandler) ScanEntry(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.checkpoint.entry")
	defer span.End()

	var req dto.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.BindError(c, err)
		return
	}

	checkpointID := c.Param("checkpoint_id")
	span.SetAttributes(attribute.String("checkpoint_id", checkpointID))

	result, err := h.gate.ScanEntry(ctx, req.Token, checkpointID)
	if err != nil {
		fail(c, span, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// ScanExit handles POST /checkpoints/:checkpoint_id/exit
func (h *CheckpointHandler) ScanExit(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.checkpoint.exit")
	defer span.End()

	var req dto.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.BindError(c, err)
		return
	}

	checkpointID := c.Param("checkpoint_id")
	span.SetAttributes(attribute.String("checkpoint_id", checkpointID))

	result, err := h.gate.ScanExit(ctx, req.Token, checkpointID)
	if err != nil {
		fail(c, span, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}
