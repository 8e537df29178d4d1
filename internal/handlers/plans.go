package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ddokjang/plan-service/internal/planner"
)

// Global plan service instance (initialized by the application)
var planService *planner.Service

// InitPlanService initializes the plan service instance
// This should be called during application startup
func InitPlanService(svc *planner.Service) {
	planService = svc
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// GeneratePlans handles plan generation
// POST /v1/plans
func GeneratePlans(c *gin.Context) {
	if planService == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "plan service not initialized"})
		return
	}

	var req planner.PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: string(planner.ErrKindInvalidRequest)})
		return
	}

	resp, perr := planService.GeneratePlans(c.Request.Context(), &req)
	if perr != nil {
		c.JSON(statusForPlanError(perr), ErrorResponse{Error: perr.Message, Kind: string(perr.Kind)})
		return
	}

	// Degraded providers mean the response was built from partial data.
	status := http.StatusOK
	if len(resp.Meta.DegradedProviders) > 0 {
		status = http.StatusPartialContent
	}
	c.JSON(status, resp)
}

// SelectPlan handles plan selection confirmation
// POST /v1/plans/select
func SelectPlan(c *gin.Context) {
	if planService == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "plan service not initialized"})
		return
	}

	var req planner.SelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: string(planner.ErrKindInvalidRequest)})
		return
	}

	resp, perr := planService.SelectPlan(c.Request.Context(), &req)
	if perr != nil {
		c.JSON(statusForPlanError(perr), ErrorResponse{Error: perr.Message, Kind: string(perr.Kind)})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func statusForPlanError(perr *planner.PlanError) int {
	switch perr.Kind {
	case planner.ErrKindInvalidRequest:
		return http.StatusBadRequest
	case planner.ErrKindNoCandidates:
		return http.StatusServiceUnavailable
	case planner.ErrKindBudgetExceeded:
		return http.StatusTooManyRequests
	case planner.ErrKindCircuitOpen:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
