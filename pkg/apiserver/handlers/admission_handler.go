package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/querywarden/querywarden/pkg/admission"
)

// AdmissionHandler is a thin HTTP binding over the in-process admission
// gate, for callers embedding the node behind a sidecar.
type AdmissionHandler struct {
	controller *admission.Controller
	logger     *zap.Logger
}

func NewAdmissionHandler(controller *admission.Controller, logger *zap.Logger) *AdmissionHandler {
	return &AdmissionHandler{controller: controller, logger: logger}
}

type admissionRequest struct {
	GroupID string `json:"group_id"`
}

type admissionResponse struct {
	Admitted bool   `json:"admitted"`
	GroupID  string `json:"group_id"`
	Reason   string `json:"reason,omitempty"`
}

func (h *AdmissionHandler) Check(c *gin.Context) {
	var req admissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	decision := h.controller.Admit(req.GroupID)
	resp := admissionResponse{
		Admitted: decision.Admitted,
		GroupID:  decision.GroupID,
	}
	status := http.StatusOK
	if !decision.Admitted {
		// Rejection is a normal outcome; the caller turns it into a
		// retryable failure for the client.
		resp.Reason = decision.Reason.String()
		status = http.StatusTooManyRequests
	}
	c.JSON(status, resp)
}
